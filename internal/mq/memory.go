package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

const memoryBuffer = 256

// Memory is an in-process backend for single-binary deployments and tests.
// Messages published before anyone subscribes are buffered per channel.
type Memory struct {
	mu       sync.Mutex
	channels map[string]chan Message
	done     chan struct{}
	closed   bool
	seq      atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{channels: map[string]chan Message{}, done: make(chan struct{})}
}

var errMemoryClosed = errors.New("memory queue closed")

func (m *Memory) channel(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errMemoryClosed
	}
	ch, ok := m.channels[name]
	if !ok {
		ch = make(chan Message, memoryBuffer)
		m.channels[name] = ch
	}
	return ch, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	ch, err := m.channel(channel)
	if err != nil {
		return "", err
	}
	id := strconv.FormatInt(m.seq.Add(1), 10)
	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case ch <- msg:
		return id, nil
	case <-m.done:
		return "", errMemoryClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages until ctx is done. A failed message is
// retried once and then dropped.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	ch, err := m.channel(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return errMemoryClosed
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}
