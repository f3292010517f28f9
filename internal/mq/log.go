package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogBackend is an in-process broker for local development. Published
// messages are logged and fanned out to subscribers in the same process.
type LogBackend struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewLogBackend(logger *zap.Logger) *LogBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBackend{logger: logger.Named("mq"), subs: make(map[string][]chan Message)}
}

// Publish logs the message. The body stays at debug level since reset
// notifications carry live links.
func (l *LogBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("log channel is required")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return "", errors.New("log backend closed")
	}

	id := uuid.NewString()
	l.logger.Info("message published",
		zap.String("channel", channel),
		zap.String("message_id", id),
		zap.Any("attributes", attrs),
	)
	l.logger.Debug("message body", zap.String("message_id", id), zap.ByteString("data", data))

	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: attrs}
	for _, ch := range l.subs[channel] {
		select {
		case ch <- msg:
		default:
			l.logger.Warn("subscriber not keeping up, message skipped", zap.String("channel", channel))
		}
	}
	return id, nil
}

// Subscribe delivers messages published on channel after the call until ctx ends.
func (l *LogBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("log channel is required")
	}

	ch := make(chan Message, 64)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("log backend closed")
	}
	l.subs[channel] = append(l.subs[channel], ch)
	l.mu.Unlock()
	defer l.unsubscribe(channel, ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				l.logger.Warn("handler failed", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
	}
}

func (l *LogBackend) unsubscribe(channel string, ch chan Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.subs[channel]
	for i, c := range subs {
		if c == ch {
			l.subs[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (l *LogBackend) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
