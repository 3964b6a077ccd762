package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adminkit/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBuffersUntilSubscribed(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := m.Publish(ctx, "mail", []byte(`{"to":"a@b.c"}`), map[string]string{"subject": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	got := make(chan Message, 1)
	go func() {
		_ = m.Subscribe(ctx, "mail", func(_ context.Context, msg Message) error {
			got <- msg
			return nil
		})
	}()

	select {
	case msg := <-got:
		assert.Equal(t, `{"to":"a@b.c"}`, string(msg.Data))
		assert.Equal(t, "hi", msg.Attributes["subject"])
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestMemoryRetriesOnce(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.Publish(ctx, "events", []byte("x"), nil)
	require.NoError(t, err)
	_, err = m.Publish(ctx, "events", []byte("y"), nil)
	require.NoError(t, err)

	attempts := map[string]int{}
	done := make(chan struct{})
	go func() {
		_ = m.Subscribe(ctx, "events", func(_ context.Context, msg Message) error {
			attempts[string(msg.Data)]++
			if string(msg.Data) == "y" {
				close(done)
				return nil
			}
			return errors.New("boom")
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second message not delivered")
	}
	assert.Equal(t, 2, attempts["x"])
	assert.Equal(t, 1, attempts["y"])
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Publish(context.Background(), "mail", nil, nil)
	assert.ErrorIs(t, err, errMemoryClosed)
}

func TestOpen(t *testing.T) {
	backend, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, backend)

	backend, err = Open(context.Background(), config.MQConfig{Backend: "Memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, backend)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	assert.EqualError(t, err, "rabbitmq url is required")
}
