// Package notify hands outbound notifications (password reset links) to the
// message broker without blocking the HTTP request that produced them.
//
// Enqueue never blocks: when the queue is full the notification is dropped
// and counted. Publish failures are logged and counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hrease/apiserver/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
	defaultTimeout   = 5 * time.Second
)

// Publisher is satisfied by *mq.MQ.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

type Config struct {
	Channel   string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	kind string
	data []byte
}

// Dispatcher drains a bounded queue with a fixed pool of workers.
type Dispatcher struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker pool immediately.
func NewDispatcher(pub Publisher, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	d := &Dispatcher{
		pub:     pub,
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		logger:  logger.Named("notify"),
		queue:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Enqueue serializes payload and queues it for delivery. It reports whether
// the notification was accepted.
func (d *Dispatcher) Enqueue(kind string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("encode notification", zap.String("kind", kind), zap.Error(err))
		metrics.ObserveNotification(kind, "failed")
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification dropped: dispatcher closed", zap.String("kind", kind))
		metrics.ObserveNotification(kind, "dropped")
		return false
	}

	select {
	case d.queue <- job{kind: kind, data: data}:
		metrics.ObserveNotification(kind, "queued")
		return true
	default:
		d.logger.Warn("notification dropped: queue full", zap.String("kind", kind))
		metrics.ObserveNotification(kind, "dropped")
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to drain,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification queue not drained"), ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	id, err := d.pub.Publish(ctx, d.channel, j.data, map[string]string{"kind": j.kind})
	if err != nil {
		d.logger.Warn("notification publish failed",
			zap.String("kind", j.kind),
			zap.String("channel", d.channel),
			zap.Error(err),
		)
		metrics.ObserveNotification(j.kind, "failed")
		return
	}
	d.logger.Debug("notification published", zap.String("kind", j.kind), zap.String("message_id", id))
	metrics.ObserveNotification(j.kind, "sent")
}
