// Package embedding implements the C2 embedding client: a hosted-endpoint
// wrapper that batches, retries with capped exponential backoff, and trips a
// circuit breaker on sustained upstream failure — grounded on
// ODSapper-CLIAIRMONITOR's internal/memory/embedding_lmstudio.go for the
// provider shape and on the gobreaker usage in
// jordigilh-kubernaut/test/integration/notification/suite_test.go for the
// Settings/ReadyToTrip wiring.
package embedding

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
)

// Kind selects the embedding task type (spec.md §4.5); some hosted models
// distinguish "passage" (content being indexed) from "query" (search text)
// embeddings.
type Kind string

const (
	KindPassage Kind = "passage"
	KindQuery   Kind = "query"
)

// Client is the C2 embedding client contract.
type Client struct {
	api       *openai.Client
	model     string
	dimension int
	batchSize int
	breaker   *gobreaker.CircuitBreaker
}

// New builds a Client from the embedding provider configuration.
func New(cfg config.EmbeddingConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	api := openai.NewClient(opts...)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-client",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 96
	}
	return &Client{api: &api, model: cfg.Model, dimension: cfg.Dimension, batchSize: batchSize, breaker: breaker}
}

// Embed returns one embedding vector per input text, preserving order. Inputs
// larger than the configured batch size are split into multiple upstream
// calls. Every returned vector's length is asserted equal to the configured
// dimension; a mismatch is a fatal configuration error (spec.md §4.5
// invariant), not a retryable one.
func (c *Client) Embed(ctx context.Context, texts []string, kind Kind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end], kind)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string, kind Kind) ([][]float32, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.embedWithRetry(ctx, batch, kind)
	})
	if err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.Internal {
			return nil, err // dimension mismatch: fatal, not transient
		}
		return nil, errs.Wrap(errs.UpstreamUnavailable, "embed batch", err)
	}
	return result.([][]float32), nil
}

func (c *Client) embedWithRetry(ctx context.Context, batch []string, kind Kind) ([][]float32, error) {
	boff := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)

	var vecs [][]float32
	op := func() error {
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: c.model,
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			User:  openai.String(string(kind)),
		})
		if err != nil {
			return err
		}
		vecs = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, f := range d.Embedding {
				vec[j] = float32(f)
			}
			if c.dimension > 0 && len(vec) != c.dimension {
				return backoff.Permanent(errs.New(errs.Internal,
					"embedding dimension mismatch: expected "+strconv.Itoa(c.dimension)+", got "+strconv.Itoa(len(vec))))
			}
			vecs[i] = vec
		}
		return nil
	}
	if err := backoff.Retry(op, boff); err != nil {
		return nil, err
	}
	return vecs, nil
}
