package ingest

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/events/normalize"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/tsdb"
)

// EventStore is the subset of tsdb.Store the pipeline depends on.
type EventStore interface {
	InsertEvent(ctx context.Context, ev tsdb.Event) (inserted bool, err error)
}

// DepthGauge publishes the ingestion queue depth to a store shared across
// replicas (internal/cache.Client), so backpressure can account for load on
// sibling replicas, not just this process's own channel. Optional: a nil
// gauge disables the shared check and falls back to the local channel's
// own blocking behavior.
type DepthGauge interface {
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

const depthGaugeKey = "ingest:queue_depth"

// Pipeline is the bounded channel + worker pool that drains webhook and
// broker submissions into the time-series log. Events that still fail after
// MaxLogRetries retries (MaxLogRetries+1 attempts in all) are appended to the
// dead-letter sink instead of blocking the queue forever.
type Pipeline struct {
	store   EventStore
	queue   chan normalize.Event
	workers int
	retries int

	deadLetter *deadLetterSink
	depth      DepthGauge
	sharedCap  int64

	embed      Embedder
	embedStore EmbeddingStore

	wg sync.WaitGroup
}

// NewPipeline builds a Pipeline sized per cfg and backed by store. depth may
// be nil to disable the fleet-wide backpressure check. embed/embedStore may
// both be nil to disable the embedding fan-out step (spec.md §4.2(c))
// entirely; a nil Pipeline dependency simply means the per-event state
// machine never advances past LOGGED to EMBEDDED/EMBED_FAILED.
func NewPipeline(cfg config.IngestConfig, store EventStore, depth DepthGauge, embed Embedder, embedStore EmbeddingStore) (*Pipeline, error) {
	sink, err := newDeadLetterSink(cfg.DeadLetterPath)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		store:      store,
		queue:      make(chan normalize.Event, cfg.QueueSize),
		workers:    cfg.Workers,
		retries:    cfg.MaxLogRetries,
		deadLetter: sink,
		depth:      depth,
		sharedCap:  int64(cfg.SharedQueueLimit),
		embed:      embed,
		embedStore: embedStore,
	}, nil
}

// Submit enqueues ev, blocking until there is queue capacity or ctx is
// cancelled — this is the ingestion pipeline's backpressure mechanism
// (spec.md §9: the queue is bounded, not unbounded). When a shared
// DepthGauge and a non-zero SharedQueueLimit are configured, Submit also
// rejects eagerly once the fleet-wide depth reaches the limit, independent
// of whether this replica's own channel still has room.
func (p *Pipeline) Submit(ctx context.Context, ev normalize.Event) error {
	if p.depth != nil && p.sharedCap > 0 {
		depth, err := p.depth.GetInt(ctx, depthGaugeKey)
		if err == nil && depth >= p.sharedCap {
			return errs.New(errs.QuotaExceeded, "fleet-wide ingestion queue depth limit reached")
		}
	}
	select {
	case p.queue <- ev:
		if p.depth != nil {
			_, _ = p.depth.IncrBy(ctx, depthGaugeKey, 1)
		}
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.Timeout, "submit event to ingestion queue", ctx.Err())
	}
}

// Start launches the worker pool and returns immediately; the workers run
// until ctx is cancelled. Stop waits for every worker to finish.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop waits for all workers to exit after the context driving Start is
// cancelled, then closes the dead-letter sink.
func (p *Pipeline) Stop() error {
	p.wg.Wait()
	return p.deadLetter.Close()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, ev)
		case <-ctx.Done():
			p.drain(ctx)
			return
		}
	}
}

// drain flushes whatever is already buffered in the queue (non-blocking)
// once shutdown begins, so already-accepted events aren't silently lost.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(context.WithoutCancel(ctx), ev)
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, ev normalize.Event) {
	ctx, end := logging.Phase(ctx, "ingest_event")
	var err error
	defer end(&err)
	if p.depth != nil {
		defer func() { _, _ = p.depth.IncrBy(context.WithoutCancel(ctx), depthGaugeKey, -1) }()
	}

	for attempt := 0; attempt <= p.retries; attempt++ {
		inserted, insertErr := p.store.InsertEvent(ctx, tsdb.Event{
			EventID:    ev.EventID,
			Timestamp:  ev.Timestamp,
			Source:     string(ev.Source),
			EventType:  ev.EventType,
			ProjectID:  ev.ProjectID,
			ActorID:    ev.ActorID,
			EntityID:   ev.EntityID,
			EntityType: ev.EntityType,
			Metadata:   string(ev.Metadata),
		})
		if insertErr == nil {
			if inserted {
				// Best-effort, never blocks (b): a duplicate re-delivery
				// (inserted == false) is skipped since it was already
				// embedded on first delivery.
				p.embedFanout(ctx, ev)
			}
			return
		}
		err = insertErr
		if errs.KindOf(insertErr) == errs.InvalidInput {
			break // not retryable
		}
		time.Sleep(backoffDelay(attempt))
	}

	if writeErr := p.deadLetter.Write(ev, err); writeErr != nil {
		err = writeErr
	}
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 100 * time.Millisecond
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// deadLetterSink is an append-only log of events that could not be written
// to the time-series store after every retry, so ingestion never silently
// drops data and operators can replay the file.
type deadLetterSink struct {
	mu sync.Mutex
	f  *os.File
}

func newDeadLetterSink(path string) (*deadLetterSink, error) {
	if path == "" {
		return &deadLetterSink{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "open dead-letter sink", err)
	}
	return &deadLetterSink{f: f}, nil
}

type deadLetterRecord struct {
	Event normalize.Event `json:"event"`
	Error string          `json:"error"`
	At    time.Time       `json:"at"`
}

func (s *deadLetterSink) Write(ev normalize.Event, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	rec := deadLetterRecord{Event: ev, At: time.Now().UTC()}
	if cause != nil {
		rec.Error = cause.Error()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal dead-letter record", err)
	}
	line = append(line, '\n')
	_, err = s.f.Write(line)
	return err
}

func (s *deadLetterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
