package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adminkit/apiserver/internal/mq"
)

// Channel is the message queue channel carrying outgoing mail.
const Channel = "mail"

// Publisher is the subset of the message queue the mail queue needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber is the consuming side of the message queue.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// QueueSender enqueues messages for the worker instead of sending inline.
type QueueSender struct {
	publisher Publisher
}

func NewQueueSender(publisher Publisher) *QueueSender {
	return &QueueSender{publisher: publisher}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := s.publisher.Publish(ctx, Channel, data, map[string]string{"subject": msg.Subject}); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// Worker drains the mail channel into a Sender.
type Worker struct {
	subscriber Subscriber
	sender     Sender
	logger     *slog.Logger
}

func NewWorker(subscriber Subscriber, sender Sender, logger *slog.Logger) *Worker {
	return &Worker{subscriber: subscriber, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscriber.Subscribe(ctx, Channel, w.Handle)
}

// Handle delivers one queued message. Undecodable payloads are dropped
// so they are not redelivered forever.
func (w *Worker) Handle(ctx context.Context, m mq.Message) error {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		w.logger.Error("drop malformed mail message", slog.String("id", m.ID), slog.Any("error", err))
		return nil
	}
	if err := w.sender.Send(ctx, msg); err != nil {
		w.logger.Error("deliver mail", slog.String("id", m.ID), slog.String("to", msg.To), slog.Any("error", err))
		return err
	}
	return nil
}
