package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/events/normalize"
	"github.com/engintel/platform/internal/logging"
)

// Embedder is the subset of internal/embedding.Client the fan-out step
// depends on, narrowed so tests can fake it without a live provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string, kind embedding.Kind) ([][]float32, error)
}

// EmbeddingStore is the subset of internal/store/relational.Store the
// fan-out step depends on.
type EmbeddingStore interface {
	UpsertEmbedding(ctx context.Context, id, embeddingType, sourceID, sourceTable, title, content string, metadata map[string]any, vector []float32) error
}

// embedFanout implements spec.md §4.2(c): best-effort, non-blocking for the
// log write that already committed in process(). Both dependencies are
// optional (nil disables the fan-out entirely, same as DepthGauge); any
// failure here is logged and otherwise swallowed — it never retries and
// never reaches the dead-letter sink, since the log insert is the
// pipeline's durability boundary (spec.md §4.2 "Failure semantics"), not
// this step.
func (p *Pipeline) embedFanout(ctx context.Context, ev normalize.Event) {
	if p.embed == nil || p.embedStore == nil {
		return
	}
	title, content, ok := normalize.DurableText(ev)
	if !ok {
		return
	}

	var fanoutErr error
	ctx, done := logging.Phase(ctx, "embed_fanout")
	defer done(&fanoutErr)

	vectors, err := p.embed.Embed(ctx, []string{content}, embedding.KindPassage)
	if err != nil {
		fanoutErr = err
		return
	}
	if len(vectors) == 0 {
		return
	}

	embeddingType := string(ev.Source) + "_" + ev.EntityType
	metadata := map[string]any{
		"project_id": ev.ProjectID,
		"actor_id":   ev.ActorID,
		"event_type": ev.EventType,
	}
	if err := p.embedStore.UpsertEmbedding(ctx, uuid.NewString(), embeddingType, ev.EntityID, "events", title, content, metadata, vectors[0]); err != nil {
		fanoutErr = err
	}
}
