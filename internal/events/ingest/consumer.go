package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/events/normalize"
	"github.com/engintel/platform/internal/logging"
)

// brokerMessage is the wire shape of one topic message, grounded on
// original_source/agent/kafka_consumer.py's MSK record handling: a base64
// JSON value decoding to {event_id, source, event_type, timestamp, raw}.
type brokerMessage struct {
	EventID   string          `json:"event_id"`
	Source    string          `json:"source"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Raw       json.RawMessage `json:"raw"`
}

// Consumer polls kafka-go readers (one per configured topic) and feeds
// decoded events into a Pipeline, in place of the upstream Lambda/MSK
// trigger the kafka_consumer.py reference used.
type Consumer struct {
	readers  []*kafka.Reader
	pipeline *Pipeline
}

// NewConsumer builds one kafka.Reader per topic, sharing a consumer group so
// partitions are balanced across process replicas.
func NewConsumer(cfg config.BrokerConfig, pipeline *Pipeline) *Consumer {
	readers := make([]*kafka.Reader, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.ConsumerGroup,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}))
	}
	return &Consumer{readers: readers, pipeline: pipeline}
}

// Run polls every configured reader until ctx is cancelled. Each reader runs
// in its own goroutine; Run blocks until all of them return.
func (c *Consumer) Run(ctx context.Context) error {
	errCh := make(chan error, len(c.readers))
	for _, reader := range c.readers {
		reader := reader
		go func() { errCh <- c.pollOne(ctx, reader) }()
	}
	var firstErr error
	for range c.readers {
		if err := <-errCh; err != nil && firstErr == nil && !errors.Is(err, context.Canceled) {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Consumer) pollOne(ctx context.Context, reader *kafka.Reader) error {
	defer reader.Close()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return errs.Wrap(errs.UpstreamUnavailable, "fetch broker message", err)
		}

		ev, err := decodeMessage(msg.Value)
		if err != nil {
			_, done := logging.Phase(ctx, "broker_decode")
			done(&err)
			_ = reader.CommitMessages(ctx, msg) // poison message: commit and drop, never reprocess forever
			continue
		}

		// Backpressure: keep retrying this message before fetching the next,
		// so a later commit never passes an offset that was not submitted.
		for {
			err = c.pipeline.Submit(ctx, ev)
			if err == nil {
				break
			}
			_, done := logging.Phase(ctx, "broker_submit")
			done(&err)
			select {
			case <-ctx.Done():
				return nil // left uncommitted: redelivered to the group on restart
			case <-time.After(time.Second):
			}
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return errs.Wrap(errs.UpstreamUnavailable, "commit broker message", err)
		}
	}
}

func decodeMessage(value []byte) (normalize.Event, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(value))
	if err != nil {
		decoded = value // tolerate readers that already deliver raw JSON
	}
	var bm brokerMessage
	if err := json.Unmarshal(decoded, &bm); err != nil {
		return normalize.Event{}, errs.Wrap(errs.InvalidInput, "decode broker message", err)
	}

	ts := parseBrokerTimestamp(bm.Timestamp)
	var raw map[string]any
	_ = json.Unmarshal(bm.Raw, &raw)

	return normalize.Event{
		EventID:    bm.EventID,
		Timestamp:  ts,
		Source:     normalize.Source(bm.Source),
		EventType:  bm.EventType,
		EntityType: entityTypeFor(bm.EventType),
		Metadata:   bm.Raw,
	}, nil
}

func entityTypeFor(eventType string) string {
	switch eventType {
	case "push":
		return "commit"
	case "pull_request":
		return "pull_request"
	case "issues", "jira:issue_created", "jira:issue_updated":
		return "issue"
	default:
		return eventType
	}
}

func parseBrokerTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if ms, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return ms
	}
	return time.Now().UTC()
}
