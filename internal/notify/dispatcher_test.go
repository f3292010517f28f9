package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hrease/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu      sync.Mutex
	got     []published
	err     error
	started chan struct{}
	release chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.got = append(p.got, published{channel: channel, data: data, attrs: attrs})
	return "id", nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestDispatcherDeliversQueuedNotifications(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, Config{Channel: "hrease.password-reset"}, nil)

	msg := PasswordReset{To: "a@x.com", ResetURL: "https://hr.example.com/reset-password/Mw/abc-123"}
	require.True(t, d.Enqueue(KindPasswordReset, msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	require.Equal(t, 1, pub.count())
	got := pub.got[0]
	assert.Equal(t, "hrease.password-reset", got.channel)
	assert.Equal(t, KindPasswordReset, got.attrs["kind"])

	var decoded PasswordReset
	require.NoError(t, json.Unmarshal(got.data, &decoded))
	assert.Equal(t, msg.ResetURL, decoded.ResetURL)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	pub := &fakePublisher{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(pub, Config{Channel: "c", Workers: 1, QueueSize: 1, Timeout: time.Second}, nil)

	require.True(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "1@x.com"}))
	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first notification")
	}

	assert.True(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "2@x.com"}))
	assert.False(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "3@x.com"}))

	close(pub.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 2, pub.count())
}

func TestDispatcherSwallowsPublishFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, Config{Channel: "c"}, nil)

	assert.True(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "a@x.com"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Close(ctx))
	assert.False(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "a@x.com"}), "closed dispatcher must refuse work")
}

func TestDispatcherBoundsPublishTime(t *testing.T) {
	pub := &fakePublisher{release: make(chan struct{})}
	d := NewDispatcher(pub, Config{Channel: "c", Timeout: 20 * time.Millisecond}, nil)

	require.True(t, d.Enqueue(KindPasswordReset, PasswordReset{To: "a@x.com"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 0, pub.count())
}

func TestDispatcherOverLogBackend(t *testing.T) {
	broker := mq.New(mq.NewLogBackend(nil), mq.BackendLog)
	defer broker.Close()

	received := make(chan mq.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = broker.Subscribe(ctx, "hrease.password-reset", func(_ context.Context, msg mq.Message) error {
			received <- msg
			return nil
		})
	}()

	d := NewDispatcher(broker, Config{Channel: "hrease.password-reset"}, nil)
	defer d.Close(context.Background())

	require.Eventually(t, func() bool {
		d.Enqueue(KindPasswordReset, PasswordReset{To: "a@x.com"})
		select {
		case msg := <-received:
			return msg.Attributes["kind"] == KindPasswordReset
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
