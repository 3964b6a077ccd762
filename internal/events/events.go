// Package events publishes domain events onto the message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Channel is the message queue channel carrying domain events.
const Channel = "events"

// Event names.
const (
	UserLogin           = "user:login"
	UserRegistered      = "user:registered"
	UserReseted         = "user:reseted"
	AuthProfileUpdated  = "auth:profile-updated"
	AuthPasswordUpdated = "auth:password-updated"
)

// Envelope is the wire form of an event.
type Envelope struct {
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher is the subset of the message queue events need.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Bus emits events after the state change they describe has been committed.
type Bus struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewBus returns a Bus. A nil publisher only logs events.
func NewBus(publisher Publisher, logger *slog.Logger) *Bus {
	return &Bus{publisher: publisher, logger: logger, now: time.Now}
}

// Emit publishes name with payload. Delivery failures are logged and
// reported but never undo the committed change.
func (b *Bus) Emit(ctx context.Context, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	b.logger.Info("event", slog.String("name", name))
	if b.publisher == nil {
		return nil
	}

	data, err := json.Marshal(Envelope{Name: name, OccurredAt: b.now().UTC(), Payload: raw})
	if err != nil {
		return err
	}
	if _, err := b.publisher.Publish(ctx, Channel, data, map[string]string{"name": name}); err != nil {
		b.logger.Warn("publish event", slog.String("name", name), slog.Any("error", err))
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}
