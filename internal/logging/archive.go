package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hrease/apiserver/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultFlushInterval = 30 * time.Second
	defaultBatchSize     = 500
	uploadTimeout        = 30 * time.Second
)

// ObjectWriter is satisfied by storage.ObjectStorage.
type ObjectWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

type ArchiveOptions struct {
	Prefix        string
	FlushInterval time.Duration
	BatchSize     int
	// Now overrides the clock used for object keys.
	Now func() time.Time
}

// ArchiveWriter is a zapcore.WriteSyncer that batches log lines into
// NDJSON objects. Write never blocks; lines are dropped when the buffer is full.
type ArchiveWriter struct {
	store    ObjectWriter
	opts     ArchiveOptions
	fallback *zap.Logger

	lines   chan []byte
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

// NewArchiveWriter starts the background flusher. fallback receives upload
// errors and must not itself write to the archive.
func NewArchiveWriter(store ObjectWriter, opts ArchiveOptions, fallback *zap.Logger) *ArchiveWriter {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	if fallback == nil {
		fallback = zap.NewNop()
	}

	w := &ArchiveWriter{
		store:    store,
		opts:     opts,
		fallback: fallback.Named("archive"),
		lines:    make(chan []byte, opts.BatchSize*4),
		flushCh:  make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *ArchiveWriter) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)
	select {
	case w.lines <- line:
	default:
		metrics.IncLogArchiveDropped()
	}
	return len(p), nil
}

// Sync uploads whatever is buffered and waits for it.
func (w *ArchiveWriter) Sync() error {
	ack := make(chan struct{})
	select {
	case w.flushCh <- ack:
		<-ack
	case <-w.done:
	}
	return nil
}

// Close flushes remaining lines and stops the flusher.
func (w *ArchiveWriter) Close(ctx context.Context) error {
	w.closeOnce.Do(func() { close(w.stop) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("log archive not flushed"), ctx.Err())
	}
}

func (w *ArchiveWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var buf bytes.Buffer
	count := 0
	flush := func() {
		if count == 0 {
			return
		}
		w.upload(buf.Bytes())
		buf.Reset()
		count = 0
	}

	for {
		select {
		case line := <-w.lines:
			buf.Write(line)
			count++
			if count >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case ack := <-w.flushCh:
			w.drain(&buf, &count)
			flush()
			close(ack)
		case <-w.stop:
			w.drain(&buf, &count)
			flush()
			return
		}
	}
}

func (w *ArchiveWriter) drain(buf *bytes.Buffer, count *int) {
	for {
		select {
		case line := <-w.lines:
			buf.Write(line)
			*count++
		default:
			return
		}
	}
}

func (w *ArchiveWriter) upload(data []byte) {
	key := w.objectKey()
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	if err := w.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/x-ndjson"); err != nil {
		metrics.ObserveLogArchiveFlush("failed")
		w.fallback.Warn("log archive upload failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.ObserveLogArchiveFlush("success")
}

// objectKey lays batches out as <prefix>/YYYY/MM/DD/<time>-<uuid>.ndjson.
func (w *ArchiveWriter) objectKey() string {
	now := w.opts.Now().UTC()
	name := fmt.Sprintf("%s/%s-%s.ndjson", now.Format("2006/01/02"), now.Format("150405"), uuid.NewString())
	if w.opts.Prefix == "" {
		return name
	}
	return w.opts.Prefix + "/" + name
}
