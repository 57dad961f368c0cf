package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type failingSink struct{}

func (failingSink) Name() string                       { return "broken" }
func (failingSink) Write(context.Context, Entry) error { return errors.New("down") }

// gateSink blocks every write until release is closed.
type gateSink struct {
	release chan struct{}
	mem     *MemorySink
}

func (g *gateSink) Name() string { return "gate" }
func (g *gateSink) Write(ctx context.Context, e Entry) error {
	<-g.release
	return g.mem.Write(ctx, e)
}

func TestTrail_PreservesPerIdentityOrder(t *testing.T) {
	t.Parallel()

	mem := NewMemorySink()
	tr := NewTrail(Config{Shards: 4, QueueSize: 16}, []Sink{mem}, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for u := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				tr.Append(context.Background(), Entry{
					IdentityID: fmt.Sprintf("user-%d", u),
					Action:     ActionTokenRefresh,
					Metadata:   map[string]any{"seq": i},
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close(context.Background()))

	entries := mem.Entries()
	require.Len(t, entries, 400)

	next := map[string]int{}
	for _, e := range entries {
		require.NotEmpty(t, e.ID)
		require.False(t, e.CreatedAt.IsZero())
		require.Equal(t, next[e.IdentityID], e.Metadata["seq"], "identity %s out of order", e.IdentityID)
		next[e.IdentityID]++
	}
}

func TestTrail_SinkFailureIsCountedNotPropagated(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	mem := NewMemorySink()
	tr := NewTrail(Config{Shards: 1}, []Sink{failingSink{}, mem}, WithLogger(quietLogger()), WithMetrics(m))

	tr.Append(context.Background(), Entry{IdentityID: "u", Action: ActionLogout})
	require.NoError(t, tr.Close(context.Background()))

	require.Len(t, mem.Entries(), 1, "healthy sink still receives the entry")
	require.Equal(t, 1.0, testutil.ToFloat64(m.appendFailures.WithLabelValues("broken")))
}

func TestTrail_BackpressureDropsWhenContextEnds(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	gate := &gateSink{release: make(chan struct{}), mem: NewMemorySink()}
	tr := NewTrail(Config{Shards: 1, QueueSize: 1}, []Sink{gate}, WithLogger(quietLogger()), WithMetrics(m))

	// One entry parks in the worker, one fills the queue.
	tr.Append(context.Background(), Entry{IdentityID: "u", Action: ActionLoginSuccess})
	require.Eventually(t, func() bool { return len(tr.shards[0]) == 0 }, time.Second, time.Millisecond)
	tr.Append(context.Background(), Entry{IdentityID: "u", Action: ActionLoginSuccess})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	tr.Append(ctx, Entry{IdentityID: "u", Action: ActionLoginFailure})
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.dropped))

	close(gate.release)
	require.NoError(t, tr.Close(context.Background()))
	require.Len(t, gate.mem.Entries(), 2)
}

func TestTrail_StalledSinkDoesNotBlockWithoutDeadline(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	gate := &gateSink{release: make(chan struct{}), mem: NewMemorySink()}
	tr := NewTrail(Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond}, []Sink{gate},
		WithLogger(quietLogger()), WithMetrics(m))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 6 {
			tr.Append(context.Background(), Entry{IdentityID: "u", Action: ActionLoginSuccess})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a stalled sink")
	}
	// At most one entry in the worker and one in the queue; the rest are dropped.
	require.GreaterOrEqual(t, testutil.ToFloat64(m.dropped), 4.0)

	close(gate.release)
	require.NoError(t, tr.Close(context.Background()))
}

func TestNewTrail_DefaultsEnqueueTimeout(t *testing.T) {
	t.Parallel()

	tr := NewTrail(Config{}, nil, WithLogger(quietLogger()))
	defer func() { _ = tr.Close(context.Background()) }()
	require.Equal(t, DefaultConfig().EnqueueTimeout, tr.cfg.EnqueueTimeout)
}

func TestTrail_AppendAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	mem := NewMemorySink()
	tr := NewTrail(Config{}, []Sink{mem}, WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()))

	tr.Append(context.Background(), Entry{Action: ActionLogout})
	require.Empty(t, mem.Entries())
	require.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
}

func TestEntry_OrderingKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "id-1", Entry{IdentityID: "id-1", IP: "1.1.1.1"}.OrderingKey())
	require.Equal(t, "principal:alice", Entry{Metadata: map[string]any{MetaPrincipal: "alice"}, IP: "1.1.1.1"}.OrderingKey())
	require.Equal(t, "ip:1.1.1.1", Entry{IP: "1.1.1.1"}.OrderingKey())
}

func TestAction_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, ActionSuspiciousLoginNewUserAgent.Valid())
	require.False(t, Action("PASSWORD_RESET").Valid())
}
