// Command ingestor runs the C5 ingestion pipeline: a chi HTTP server
// exposing /webhooks/<source> plus a broker consumer, both feeding the
// same bounded worker pool that writes into the time-series log.
// Grounded on the same graceful-shutdown shape as cmd/apiserver.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/log"

	"github.com/engintel/platform/internal/cache"
	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/events/ingest"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

func main() {
	dbgF := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx := logging.NewContext(context.Background(), "ingestor", *dbgF)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tsStore := tsdb.New(cfg.TimeSeries, cfg.Ingest.OperationDeadline)
	relStore := relational.New(cfg.Relational, cfg.Ingest.OperationDeadline)
	embedClient := embedding.New(cfg.Embedding)

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatal(ctx, err)
	}

	// The embedding fan-out (spec.md §4.2(c)) is best-effort: embedClient and
	// relStore are passed straight through rather than gated on any feature
	// flag, since a failing upstream only ever logs and never blocks or
	// retries the log write that is the pipeline's actual durability
	// boundary.
	pipeline, err := ingest.NewPipeline(cfg.Ingest, tsStore, redisClient, embedClient, relStore)
	if err != nil {
		log.Fatal(ctx, err)
	}
	pipeline.Start(ctx)

	webhookRouter := ingest.NewWebhookRouter(pipeline, cfg.Ingest.WebhookSecrets)
	r := chi.NewRouter()
	webhookRouter.Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	consumer := ingest.NewConsumer(cfg.Broker, pipeline)
	consumerErrc := make(chan error, 1)
	if len(cfg.Broker.Brokers) > 0 {
		go func() { consumerErrc <- consumer.Run(ctx) }()
	}

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "addr", V: cfg.HTTPAddr}, log.KV{K: "event", V: "listening"})
		errc <- httpSrv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			log.Print(ctx, log.KV{K: "error", V: err.Error()})
		}
	case err := <-consumerErrc:
		log.Print(ctx, log.KV{K: "error", V: "broker consumer stopped: " + err.Error()})
	case sig := <-sigc:
		log.Print(ctx, log.KV{K: "signal", V: sig.String()}, log.KV{K: "event", V: "shutting down"})
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if err := pipeline.Stop(); err != nil {
		log.Print(ctx, log.KV{K: "error", V: err.Error()})
	}
	log.Print(ctx, log.KV{K: "event", V: "exited"})
}
