// Package config provides configuration types and loading for loomclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Channels, Memory, Scheduler,
// Subagents, Skills, Tools.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Memory    MemoryConfig    `json:"memory"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Subagents SubagentsConfig `json:"subagents"`
	Skills    SkillsConfig    `json:"skills"`
	Tools     ToolsConfig     `json:"tools"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	StateDir  string `json:"stateDir" envconfig:"STATE_DIR"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name              string  `json:"name" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
	SystemPrompt      string  `json:"systemPrompt,omitempty" envconfig:"SYSTEM_PROMPT"`
	HistoryWindow     int     `json:"historyWindow" envconfig:"HISTORY_WINDOW"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	VLLM       ProviderConfig `json:"vllm"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Slack SlackConfig `json:"slack"`
	Kafka KafkaConfig `json:"kafka"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"SLACK_ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"SLACK_BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"SLACK_APP_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// KafkaConfig configures the Kafka channel.
type KafkaConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"KAFKA_ENABLED"`
	Brokers       string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	InboundTopic  string `json:"inboundTopic" envconfig:"KAFKA_INBOUND_TOPIC"`
	OutboundTopic string `json:"outboundTopic" envconfig:"KAFKA_OUTBOUND_TOPIC"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"KAFKA_CONSUMER_GROUP"`
}

// ---------------------------------------------------------------------------
// Memory – conversation persistence
// ---------------------------------------------------------------------------

// MemoryConfig contains conversation store settings.
type MemoryConfig struct {
	Path      string `json:"path" envconfig:"MEMORY_PATH"`
	Partition string `json:"partition" envconfig:"MEMORY_PARTITION"` // daily, weekly, monthly, none
}

// ---------------------------------------------------------------------------
// Scheduler – cron-based job scheduling
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the cron scheduler.
type SchedulerConfig struct {
	Enabled        bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval   time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxConcLLM     int           `json:"maxConcLLM" envconfig:"MAX_CONC_LLM"`
	MaxConcShell   int           `json:"maxConcShell" envconfig:"MAX_CONC_SHELL"`
	MaxConcDefault int           `json:"maxConcDefault" envconfig:"MAX_CONC_DEFAULT"`
	Jobs           []JobConfig   `json:"jobs,omitempty"`
}

// JobConfig describes a scheduled job in the config file.
type JobConfig struct {
	Name       string         `json:"name"`
	Cron       string         `json:"cron"`
	Kind       string         `json:"kind,omitempty"`     // message, send, tool
	Category   string         `json:"category,omitempty"` // llm, shell, default
	Platform   string         `json:"platform,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Content    string         `json:"content,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	ToolParams map[string]any `json:"toolParams,omitempty"`
}

// ---------------------------------------------------------------------------
// Subagents – background task sessions
// ---------------------------------------------------------------------------

// SubagentsConfig contains settings for spawned background tasks.
type SubagentsConfig struct {
	Dir           string `json:"dir" envconfig:"DIR"`
	MaxConcurrent int    `json:"maxConcurrent" envconfig:"MAX_CONCURRENT"`
}

// ---------------------------------------------------------------------------
// Skills – optional tool bundles
// ---------------------------------------------------------------------------

// SkillsConfig selects which skill bundles are registered at startup.
type SkillsConfig struct {
	Enabled []string `json:"enabled"`
}

// ---------------------------------------------------------------------------
// Tools – tool-specific behaviour
// ---------------------------------------------------------------------------

// ToolsConfig contains tool-specific settings.
type ToolsConfig struct {
	Exec ExecToolConfig `json:"exec"`
}

// ExecToolConfig contains shell execution tool settings.
type ExecToolConfig struct {
	Timeout             time.Duration `json:"timeout"`
	RestrictToWorkspace bool          `json:"restrictToWorkspace" envconfig:"EXEC_RESTRICT_WORKSPACE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace: "~/LoomClaw-Workspace",
			StateDir:  "~/.loomclaw",
		},
		Model: ModelConfig{
			Name:              "gpt-4o",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 10,
			HistoryWindow:     50,
		},
		Memory: MemoryConfig{
			Path:      "~/.loomclaw/memory.db",
			Partition: "daily",
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			TickInterval:   60 * time.Second,
			MaxConcLLM:     3,
			MaxConcShell:   1,
			MaxConcDefault: 5,
		},
		Subagents: SubagentsConfig{
			Dir:           "~/.loomclaw/subagents",
			MaxConcurrent: 8,
		},
		Tools: ToolsConfig{
			Exec: ExecToolConfig{
				Timeout:             60 * time.Second,
				RestrictToWorkspace: true, // Secure default
			},
		},
	}
}
