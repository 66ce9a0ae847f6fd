// Package memory persists conversation history in SQLite. Each
// (platform, user) pair maps to a conversation scoped by a time
// partition so history windows stay bounded without explicit pruning.
package memory

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

// Partition controls how often a fresh conversation starts for the
// same (platform, user) pair.
type Partition string

const (
	PartitionDaily   Partition = "daily"
	PartitionWeekly  Partition = "weekly"
	PartitionMonthly Partition = "monthly"
	PartitionNone    Partition = "none"
)

// StoredMessage is one persisted conversation turn.
type StoredMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolCalls []bus.ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the SQLite-backed conversation store.
type Store struct {
	db        *sql.DB
	partition Partition
	now       func() time.Time
}

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string, partition Partition) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	switch partition {
	case PartitionDaily, PartitionWeekly, PartitionMonthly, PartitionNone:
	case "":
		partition = PartitionDaily
	default:
		db.Close()
		return nil, fmt.Errorf("unknown partition granularity %q", partition)
	}
	return &Store{db: db, partition: partition, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) partitionKey(t time.Time) string {
	switch s.partition {
	case PartitionWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PartitionMonthly:
		return t.Format("2006-01")
	case PartitionNone:
		return "all"
	default:
		return t.Format("2006-01-02")
	}
}

// conversationID is deterministic so concurrent writers and restarts
// agree on the same row without coordination.
func conversationID(platform, userID, partitionKey string) string {
	sum := sha1.Sum([]byte(platform + "|" + userID + "|" + partitionKey))
	return "conv-" + hex.EncodeToString(sum[:8])
}

// ConversationID returns the id of the current conversation for the
// given (platform, user), creating the row if it does not exist yet.
func (s *Store) ConversationID(platform, userID string) (string, error) {
	now := s.now()
	key := s.partitionKey(now)
	id := conversationID(platform, userID, key)
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, platform, user_id, partition_key, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, platform, userID, key, now.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return id, nil
}

// SaveMessage appends one turn to the current conversation.
func (s *Store) SaveMessage(platform, userID string, msg StoredMessage) error {
	convID, err := s.ConversationID(platform, userID)
	if err != nil {
		return err
	}
	var toolCalls string
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCalls = string(raw)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (conversation_id, role, content, tool_name, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		convID, msg.Role, msg.Content, msg.ToolName, toolCalls, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetHistory returns up to limit most recent turns of the current
// conversation, oldest first.
func (s *Store) GetHistory(platform, userID string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	convID := conversationID(platform, userID, s.partitionKey(s.now()))
	rows, err := s.db.Query(
		`SELECT role, content, tool_name, tool_calls, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id DESC LIMIT ?`,
		convID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var toolCalls string
		if err := rows.Scan(&m.Role, &m.Content, &m.ToolName, &toolCalls, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// MessageCount reports the number of turns in the current conversation.
func (s *Store) MessageCount(platform, userID string) (int, error) {
	convID := conversationID(platform, userID, s.partitionKey(s.now()))
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, convID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
