package audit

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"warden/internal/ids"
)

// Config tunes the trail's worker pool.
type Config struct {
	// Shards is the number of ordered queues, each drained by one worker.
	Shards int
	// QueueSize is the buffered capacity of every shard.
	QueueSize int
	// WriteTimeout bounds one sink write.
	WriteTimeout time.Duration
	// EnqueueTimeout bounds how long Append waits for room in a full shard.
	EnqueueTimeout time.Duration
}

// DefaultConfig returns sizing for a single mid-sized instance.
func DefaultConfig() Config {
	return Config{Shards: 8, QueueSize: 1024, WriteTimeout: 5 * time.Second, EnqueueTimeout: 50 * time.Millisecond}
}

// Trail fans entries out to sinks asynchronously. Entries with the same OrderingKey
// land on the same shard and are written in Append order.
type Trail struct {
	sinks   []Sink
	log     *slog.Logger
	metrics *Metrics
	cfg     Config
	now     func() time.Time

	shards []chan Entry
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	done     chan struct{}
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trail) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMetrics sets the failure counters.
func WithMetrics(m *Metrics) Option {
	return func(t *Trail) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithClock sets the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrail starts cfg.Shards workers writing to sinks.
func NewTrail(cfg Config, sinks []Sink, opts ...Option) *Trail {
	def := DefaultConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}

	t := &Trail{
		sinks:   sinks,
		log:     slog.Default(),
		metrics: NewMetrics(nil),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		shards:  make([]chan Entry, cfg.Shards),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	for i := range t.shards {
		t.shards[i] = make(chan Entry, cfg.QueueSize)
		t.wg.Add(1)
		go t.worker(t.shards[i])
	}
	return t
}

// Append stamps and enqueues e. When the shard is full it waits at most EnqueueTimeout
// (less if ctx ends first), then drops the entry and counts it. A stalled sink therefore
// never holds up the caller for longer than that. It never returns an error.
func (t *Trail) Append(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = ids.New(t.now())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		t.drop(e, "closed")
		return
	}
	t.inflight.Add(1)
	t.mu.RUnlock()
	defer t.inflight.Done()

	q := t.shards[t.shardFor(e.OrderingKey())]
	select {
	case q <- e:
		return
	default:
	}

	timer := time.NewTimer(t.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case q <- e:
	case <-timer.C:
		t.drop(e, "backpressure")
	case <-ctx.Done():
		t.drop(e, "backpressure")
	case <-t.done:
		t.drop(e, "closed")
	}
}

// Close stops accepting entries and drains queued ones, up to ctx.
func (t *Trail) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	t.inflight.Wait()
	for _, q := range t.shards {
		close(q)
	}

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit: drain incomplete"), ctx.Err())
	}
}

func (t *Trail) worker(q <-chan Entry) {
	defer t.wg.Done()
	for e := range q {
		t.write(e)
	}
}

func (t *Trail) write(e Entry) {
	for _, s := range t.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.WriteTimeout)
		err := s.Write(ctx, e)
		cancel()
		if err != nil {
			t.metrics.appendFailures.WithLabelValues(s.Name()).Inc()
			t.log.Error("audit.append.fail",
				"sink", s.Name(),
				"action", string(e.Action),
				"entry_id", e.ID,
				"err", err,
			)
		}
	}
}

func (t *Trail) drop(e Entry, reason string) {
	t.metrics.dropped.Inc()
	t.log.Warn("audit.append.dropped", "reason", reason, "action", string(e.Action), "entry_id", e.ID)
}

func (t *Trail) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(t.shards)))
}
