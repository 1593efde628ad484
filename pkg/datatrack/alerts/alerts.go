// Package alerts delivers alert messages through exactly one configured
// notification channel. Delivery is best effort: a failing channel is
// logged and never reported back to the caller.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// ErrInvalidChannel is returned when a nil channel is bound to a Dispatcher.
var ErrInvalidChannel = errors.New("alerts: invalid channel")

// Channel is a concrete alert transport.
type Channel interface {
	Notify(ctx context.Context, message string, fields map[string]any) error
}

// Named is implemented by channels that want a readable name in logs.
type Named interface {
	Name() string
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, message string, fields map[string]any) error

// Notify calls f.
func (f ChannelFunc) Notify(ctx context.Context, message string, fields map[string]any) error {
	return f(ctx, message, fields)
}

// Dispatcher binds one Channel and forwards alerts to it.
type Dispatcher struct {
	mu      sync.RWMutex
	channel Channel
	logger  *slog.Logger
}

// NewDispatcher returns a dispatcher bound to ch. A nil logger uses
// slog.Default().
func NewDispatcher(ch Channel, logger *slog.Logger) (*Dispatcher, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channel: ch, logger: logger}, nil
}

// Alert sends message through the bound channel. Errors and panics raised
// by the channel are logged and swallowed.
func (d *Dispatcher) Alert(ctx context.Context, message string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}

	d.mu.RLock()
	ch := d.channel
	d.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("alert channel panicked",
				"channel", ChannelName(ch),
				"message", message,
				"panic", fmt.Sprint(r))
		}
	}()

	if err := ch.Notify(ctx, message, fields); err != nil {
		d.logger.Error("failed to send alert",
			"channel", ChannelName(ch),
			"message", message,
			"error", err)
	}
}

// UpdateChannel swaps the bound channel. A nil channel is rejected and the
// previous one stays bound.
func (d *Dispatcher) UpdateChannel(ch Channel) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = ch
	return nil
}

// Channel returns the currently bound channel.
func (d *Dispatcher) Channel() Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channel
}

// ChannelName returns ch's name for logs.
func ChannelName(ch Channel) string {
	if n, ok := ch.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", ch)
}

func checkChannel(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("%w: nil", ErrInvalidChannel)
	}
	v := reflect.ValueOf(ch)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Interface, reflect.Chan, reflect.Slice:
		if v.IsNil() {
			return fmt.Errorf("%w: nil %T", ErrInvalidChannel, ch)
		}
	}
	return nil
}
