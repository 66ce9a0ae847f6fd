package channels

import (
	"context"
	"strings"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

// Channel defines the interface for chat platforms (Slack, Kafka, etc).
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send delivers an assistant reply to the platform.
	Send(ctx context.Context, msg *bus.AgentResponse) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.Bus
}

// senderAllowed reports whether senderID passes the allow list.
// An empty list allows everyone.
func senderAllowed(allowFrom []string, senderID string) bool {
	if len(allowFrom) == 0 {
		return true
	}
	id := strings.TrimSpace(senderID)
	for _, allowed := range allowFrom {
		if strings.EqualFold(strings.TrimSpace(allowed), id) {
			return true
		}
	}
	return false
}
