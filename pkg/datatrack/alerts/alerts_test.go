package alerts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu       sync.Mutex
	messages []string
	fields   []map[string]any
}

func (c *recordingChannel) Notify(_ context.Context, message string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	c.fields = append(c.fields, fields)
	return nil
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestDispatcher(t *testing.T) {
	t.Run("DeliversToChannel", func(t *testing.T) {
		ch := &recordingChannel{}
		d, err := NewDispatcher(ch, nil)
		require.NoError(t, err)

		d.Alert(context.Background(), "slow", map[string]any{"subject": "load"})

		require.Len(t, ch.messages, 1)
		assert.Equal(t, "slow", ch.messages[0])
		assert.Equal(t, "load", ch.fields[0]["subject"])
	})

	t.Run("NilFieldsBecomeEmpty", func(t *testing.T) {
		ch := &recordingChannel{}
		d, err := NewDispatcher(ch, nil)
		require.NoError(t, err)

		d.Alert(context.Background(), "no context", nil)

		require.Len(t, ch.fields, 1)
		assert.NotNil(t, ch.fields[0])
		assert.Empty(t, ch.fields[0])
	})

	t.Run("ChannelErrorIsLogged", func(t *testing.T) {
		logger, buf := newTestLogger()
		d, err := NewDispatcher(ChannelFunc(func(context.Context, string, map[string]any) error {
			return errors.New("smtp down")
		}), logger)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			d.Alert(context.Background(), "boom", nil)
		})
		assert.Contains(t, buf.String(), "failed to send alert")
		assert.Contains(t, buf.String(), "smtp down")
	})

	t.Run("ChannelPanicIsContained", func(t *testing.T) {
		logger, buf := newTestLogger()
		d, err := NewDispatcher(ChannelFunc(func(context.Context, string, map[string]any) error {
			panic("handler exploded")
		}), logger)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			d.Alert(context.Background(), "boom", nil)
		})
		assert.Contains(t, buf.String(), "handler exploded")
	})
}

func TestDispatcherUpdateChannel(t *testing.T) {
	first := &recordingChannel{}
	second := &recordingChannel{}
	d, err := NewDispatcher(first, nil)
	require.NoError(t, err)

	t.Run("RejectsNil", func(t *testing.T) {
		var typedNil *recordingChannel
		var nilFunc ChannelFunc

		assert.ErrorIs(t, d.UpdateChannel(nil), ErrInvalidChannel)
		assert.ErrorIs(t, d.UpdateChannel(typedNil), ErrInvalidChannel)
		assert.ErrorIs(t, d.UpdateChannel(nilFunc), ErrInvalidChannel)
		assert.Same(t, first, d.Channel())
	})

	t.Run("Swaps", func(t *testing.T) {
		require.NoError(t, d.UpdateChannel(second))
		d.Alert(context.Background(), "after swap", nil)

		assert.Empty(t, first.messages)
		assert.Equal(t, []string{"after swap"}, second.messages)
	})

	t.Run("ConcurrentSwapAndAlert", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				d.Alert(context.Background(), "x", nil)
			}()
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					_ = d.UpdateChannel(first)
				} else {
					_ = d.UpdateChannel(second)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 51, len(first.messages)+len(second.messages))
	})
}

func TestNewDispatcherRejectsNil(t *testing.T) {
	d, err := NewDispatcher(nil, nil)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "log", ChannelName(NewLogChannel(nil)))
	assert.Equal(t, "*alerts.recordingChannel", ChannelName(&recordingChannel{}))
}
