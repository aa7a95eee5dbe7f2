package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/events/normalize"
	"github.com/engintel/platform/internal/store/tsdb"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []tsdb.Event
	failN    int // fail the first failN calls, then succeed
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev tsdb.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return false, errs.New(errs.UpstreamUnavailable, "simulated failure")
	}
	f.inserted = append(f.inserted, ev)
	return true, nil
}

func newTestPipeline(t *testing.T, store EventStore) *Pipeline {
	t.Helper()
	p, err := NewPipeline(config.IngestConfig{
		QueueSize:     8,
		Workers:       2,
		MaxLogRetries: 2,
	}, store, nil, nil, nil)
	require.NoError(t, err)
	return p
}

type fakeDepthGauge struct {
	mu    sync.Mutex
	depth int64
	incrs int
}

func (g *fakeDepthGauge) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.incrs++
	g.depth += delta
	return g.depth, nil
}

func (g *fakeDepthGauge) GetInt(ctx context.Context, key string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth, nil
}

func TestPipeline_Submit_RejectsWhenSharedDepthExceeded(t *testing.T) {
	t.Parallel()
	gauge := &fakeDepthGauge{depth: 10}
	p, err := NewPipeline(config.IngestConfig{
		QueueSize: 8, Workers: 1, MaxLogRetries: 1, SharedQueueLimit: 5,
	}, &fakeStore{}, gauge, nil, nil)
	require.NoError(t, err)

	err = p.Submit(context.Background(), normalize.Event{EventID: "evt-x", Source: normalize.SourceCodeHost})
	require.Error(t, err)
	require.Equal(t, errs.QuotaExceeded, errs.KindOf(err))
}

func TestPipeline_Submit_IncrementsDepthGauge(t *testing.T) {
	t.Parallel()
	gauge := &fakeDepthGauge{}
	p, err := NewPipeline(config.IngestConfig{
		QueueSize: 8, Workers: 2, MaxLogRetries: 1, SharedQueueLimit: 100,
	}, &fakeStore{}, gauge, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, p.Submit(context.Background(), normalize.Event{EventID: "evt-y", Source: normalize.SourceCodeHost}))

	require.Eventually(t, func() bool {
		gauge.mu.Lock()
		defer gauge.mu.Unlock()
		return gauge.incrs >= 2 // one Submit increment, one process decrement
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, p.Stop())
}

func TestPipeline_ProcessesSubmittedEvent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	p := newTestPipeline(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	ev := normalize.Event{EventID: "evt-1", Source: normalize.SourceCodeHost, EventType: "push"}
	require.NoError(t, p.Submit(context.Background(), ev))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.inserted) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, p.Stop())
}

func TestPipeline_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	store := &fakeStore{failN: 2}
	p := newTestPipeline(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	ev := normalize.Event{EventID: "evt-2", Source: normalize.SourceCodeHost, EventType: "push"}
	require.NoError(t, p.Submit(context.Background(), ev))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.inserted) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, p.Stop())
}

func TestPipeline_Submit_ContextCancelled(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})

	// No workers running: fill the queue to capacity so the next Submit
	// must block, then prove a cancelled context unblocks it with an error.
	for i := 0; i < cap(p.queue); i++ {
		require.NoError(t, p.Submit(context.Background(), normalize.Event{EventID: "filler"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Submit(ctx, normalize.Event{EventID: "evt-3"})
	require.Error(t, err)
	require.Equal(t, errs.Timeout, errs.KindOf(err))
}

func TestDeadLetterSink_NoPath_NoOp(t *testing.T) {
	t.Parallel()
	sink, err := newDeadLetterSink("")
	require.NoError(t, err)
	require.NoError(t, sink.Write(normalize.Event{EventID: "x"}, errors.New("boom")))
	require.NoError(t, sink.Close())
}
