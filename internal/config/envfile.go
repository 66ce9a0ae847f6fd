package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFileCandidates loads environment variables from the first set
// of env files that exist: an explicit LOOMCLAW_ENV_FILE, then the
// standard locations under the home directory. Variables already set in
// the process always win; godotenv.Load never overrides them.
func LoadEnvFileCandidates() {
	loaded := map[string]bool{}
	for _, p := range envFileCandidates() {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if loaded[abs] {
			continue
		}
		loaded[abs] = true
		_ = godotenv.Load(abs)
	}
}

func envFileCandidates() []string {
	var out []string
	if explicit := strings.TrimSpace(os.Getenv("LOOMCLAW_ENV_FILE")); explicit != "" {
		out = append(out, explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	return append(out,
		filepath.Join(home, ".config", "loomclaw", "env"),
		filepath.Join(home, ".loomclaw", "env"),
		filepath.Join(home, ".loomclaw", ".env"),
	)
}
