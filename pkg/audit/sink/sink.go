// Package sink writes audit records to storage asynchronously.
//
// Append seals the record into the hash chain immediately and returns; a
// single worker persists records in sequence order, retrying with
// exponential backoff. A record that cannot be written stays at the head of
// the queue, so later records are never persisted ahead of it and the
// stored chain has no gaps. Each failed retry series is reported on
// Failures as an *audit.SinkError.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"aegis-hq/firewall/pkg/audit"
)

// ErrSinkClosed is returned by Append after Close.
var ErrSinkClosed = errors.New("audit sink is closed")

// Config configures the sink.
type Config struct {
	// InitialInterval is the first retry delay.
	// Default: 50ms
	InitialInterval time.Duration

	// MaxInterval caps the retry delay.
	// Default: 5s
	MaxInterval time.Duration

	// MaxElapsedTime bounds one retry series before a failure is reported.
	// The record is retried again afterwards.
	// Default: 30s
	MaxElapsedTime time.Duration

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration

	// DrainTimeout bounds how long Close waits for the queue to empty.
	// Default: 10s
	DrainTimeout time.Duration

	// SpillPath receives records still queued when Close gives up, as JSON
	// lines. Empty disables spilling.
	SpillPath string

	// FailureBuffer is the capacity of the Failures channel. Failures are
	// dropped when it is full.
	// Default: 16
	FailureBuffer int
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		WriteTimeout:    5 * time.Second,
		DrainTimeout:    10 * time.Second,
		FailureBuffer:   16,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = d.MaxElapsedTime
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.FailureBuffer <= 0 {
		c.FailureBuffer = d.FailureBuffer
	}
}

// Stats is a snapshot of sink activity.
type Stats struct {
	Appended int64 `json:"appended"`
	Written  int64 `json:"written"`
	Pending  int   `json:"pending"`
	Failures int64 `json:"failures"`
	Spilled  int64 `json:"spilled"`
}

// Sink is an ordered asynchronous audit writer.
type Sink struct {
	storage audit.Storage
	config  Config
	logger  *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*audit.Record
	lastSeq  int64
	lastHash string
	closed   bool
	stats    Stats

	failures chan *audit.SinkError
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a sink that continues the chain already in storage and starts
// its worker.
func New(ctx context.Context, storage audit.Storage, config Config) (*Sink, error) {
	config.applyDefaults()

	last, err := storage.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}

	s := &Sink{
		storage:  storage,
		config:   config,
		logger:   slog.Default().With("component", "audit.sink"),
		lastHash: audit.GenesisHash,
		failures: make(chan *audit.SinkError, config.FailureBuffer),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	if last != nil {
		s.lastSeq, s.lastHash = last.Sequence, last.Hash
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(workerCtx)

	s.logger.Info("Audit sink started", "head_sequence", s.lastSeq)
	return s, nil
}

// Append seals r into the chain and queues it for writing. r is modified in
// place: Sequence, PrevHash and Hash are assigned.
func (s *Sink) Append(r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if err := audit.Seal(r, s.lastSeq, s.lastHash); err != nil {
		return err
	}
	s.lastSeq, s.lastHash = r.Sequence, r.Hash

	// The queued copy is never handed back to callers.
	queued := *r
	s.queue = append(s.queue, &queued)
	s.stats.Appended++
	s.cond.Broadcast()
	return nil
}

// Failures reports write failures. The channel is closed by Close.
func (s *Sink) Failures() <-chan *audit.SinkError {
	return s.failures
}

// Stats returns a snapshot of sink counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Pending = len(s.queue)
	return out
}

// Flush blocks until every record appended so far is written or ctx ends.
func (s *Sink) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Close stops accepting records, waits up to DrainTimeout for the queue to
// drain, then stops the worker. Records still queued are spilled to
// SpillPath when configured.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DrainTimeout)
	drainErr := s.Flush(ctx)
	cancel()

	s.cancel()
	<-s.done
	close(s.failures)

	s.mu.Lock()
	remaining := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(remaining) == 0 {
		s.logger.Info("Audit sink closed")
		return nil
	}

	s.logger.Error("Audit sink closed with unwritten records",
		"pending", len(remaining),
		"first_sequence", remaining[0].Sequence,
		"error", drainErr,
	)
	if s.config.SpillPath == "" {
		return fmt.Errorf("%d audit records not written: %w", len(remaining), drainErr)
	}
	if err := spill(s.config.SpillPath, remaining); err != nil {
		return fmt.Errorf("spill %d audit records: %w", len(remaining), err)
	}
	s.mu.Lock()
	s.stats.Spilled += int64(len(remaining))
	s.mu.Unlock()
	s.logger.Warn("Unwritten audit records spilled", "path", s.config.SpillPath, "count", len(remaining))
	return nil
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && ctx.Err() == nil {
			s.waitLocked(ctx)
		}
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		head := s.queue[0]
		s.mu.Unlock()

		if err := s.write(ctx, head); err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		s.mu.Lock()
		s.queue = s.queue[1:]
		s.stats.Written++
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// waitLocked waits on cond until signalled or ctx is cancelled.
func (s *Sink) waitLocked(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	s.cond.Wait()
	stop()
}

func (s *Sink) write(ctx context.Context, r *audit.Record) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.config.InitialInterval
	eb.MaxInterval = s.config.MaxInterval

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		wctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
		defer cancel()
		err := s.storage.Append(wctx, r)
		if errors.Is(err, audit.ErrSequenceConflict) || errors.Is(err, audit.ErrChainMismatch) ||
			errors.Is(err, audit.ErrDuplicateEvaluation) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(s.config.MaxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Audit write failed, retrying",
				"sequence", r.Sequence,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	s.stats.Failures++
	s.mu.Unlock()

	s.logger.Error("Audit write failed",
		"sequence", r.Sequence,
		"evaluation_id", r.EvaluationID,
		"attempts", attempts,
		"error", err,
	)
	select {
	case s.failures <- &audit.SinkError{Sequence: r.Sequence, EvaluationID: r.EvaluationID, Attempts: attempts, Cause: err}:
	default:
	}

	// Pause before the next series so a permanent fault does not spin.
	select {
	case <-ctx.Done():
	case <-time.After(s.config.MaxInterval):
	}
	return err
}

func spill(path string, records []*audit.Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// ReadSpill loads records previously spilled to path.
func ReadSpill(path string) ([]*audit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*audit.Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r audit.Record
		if err := dec.Decode(&r); err != nil {
			return out, err
		}
		out = append(out, &r)
	}
	return out, nil
}

// Replay appends spilled records to storage in order. Records already stored
// are skipped.
func Replay(ctx context.Context, storage audit.Storage, records []*audit.Record) (int, error) {
	written := 0
	for _, r := range records {
		if err := storage.Append(ctx, r); err != nil {
			return written, fmt.Errorf("replay sequence %d: %w", r.Sequence, err)
		}
		written++
	}
	return written, nil
}
