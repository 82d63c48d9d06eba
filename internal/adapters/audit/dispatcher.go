package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

const (
	DefaultBufferSize    = 1000
	DefaultWriteTimeout  = 5 * time.Second
	DefaultReviewTimeout = 20 * time.Second
)

// Writer persists audit entries
type Writer interface {
	Write(ctx context.Context, entry *core.AuditEntry) error
	Close() error
}

// Config configures the dispatcher
type Config struct {
	BufferSize    int
	WriteTimeout  time.Duration
	ReviewTimeout time.Duration
	// ReviewerName labels review metrics
	ReviewerName string
}

// Dispatcher implements core.AuditSink. Record only enqueues; a single
// goroutine optionally asks the reviewer for an advisory on review-band
// entries and then writes them. A full buffer drops the entry.
type Dispatcher struct {
	cfg       Config
	writer    Writer
	reviewer  core.Reviewer
	entries   chan *core.AuditEntry
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewDispatcher starts a dispatcher. reviewer may be nil.
func NewDispatcher(writer Writer, reviewer core.Reviewer, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReviewTimeout <= 0 {
		cfg.ReviewTimeout = DefaultReviewTimeout
	}
	if cfg.ReviewerName == "" {
		cfg.ReviewerName = "none"
	}

	d := &Dispatcher{
		cfg:      cfg,
		writer:   writer,
		reviewer: reviewer,
		entries:  make(chan *core.AuditEntry, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		logger:   logger,
	}

	d.wg.Add(1)
	go d.asyncWriter()

	return d
}

// Record enqueues an entry without blocking
func (d *Dispatcher) Record(entry *core.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	select {
	case d.entries <- entry:
	default:
		metrics.AuditEvents.WithLabelValues("dropped").Inc()
		d.logger.Warn("Audit buffer full, dropping entry", zap.String("id", entry.ID), zap.String("action", entry.Action))
	}
}

func (d *Dispatcher) asyncWriter() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			// Drain remaining entries
			for {
				select {
				case entry := <-d.entries:
					d.write(entry)
				default:
					return
				}
			}
		case entry := <-d.entries:
			d.write(entry)
		}
	}
}

func (d *Dispatcher) write(entry *core.AuditEntry) {
	if d.reviewer != nil && entry.Recommendation() == core.RecommendReview {
		d.review(entry)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	if err := d.writer.Write(ctx, entry); err != nil {
		metrics.AuditEvents.WithLabelValues("failed").Inc()
		d.logger.Error("Failed to write audit entry", zap.String("id", entry.ID), zap.Error(err))
		return
	}
	metrics.AuditEvents.WithLabelValues("written").Inc()
}

func (d *Dispatcher) review(entry *core.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ReviewTimeout)
	defer cancel()

	opinion, err := d.reviewer.Review(ctx, entry)
	if err != nil {
		metrics.Reviews.WithLabelValues(d.cfg.ReviewerName, "error").Inc()
		d.logger.Warn("Advisory review failed", zap.String("id", entry.ID), zap.Error(err))
		return
	}
	metrics.Reviews.WithLabelValues(d.cfg.ReviewerName, "ok").Inc()
	entry.Advisory = opinion
}

// Close drains queued entries, then closes the writer and any reviewer that
// holds a client connection
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
		err = d.writer.Close()
		if c, ok := d.reviewer.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}
