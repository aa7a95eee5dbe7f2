// Command materializer runs the C6 analytics materialiser on a fixed
// interval, syncing tasks, task events, participants, and CI pipeline runs
// from the time-series log into the relational store for the DORA and
// resource-planning specialists to query.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/materialize"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

func main() {
	dbgF := flag.Bool("debug", false, "enable debug logging")
	onceF := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx := logging.NewContext(context.Background(), "materializer", *dbgF)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tsStore := tsdb.New(cfg.TimeSeries, cfg.Ingest.OperationDeadline)
	relStore := relational.New(cfg.Relational, cfg.Ingest.OperationDeadline)
	m := materialize.New(tsStore, relStore)

	runOnce := func() {
		result, err := m.RunFullSync(ctx, cfg.Materialize.SinceHours)
		if err != nil {
			log.Print(ctx, log.KV{K: "error", V: err.Error()})
		}
		log.Print(ctx, log.KV{K: "success", V: result.Success}, log.KV{K: "event", V: "full_sync_complete"})
	}

	if *onceF {
		runOnce()
		return
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Materialize.Interval)
	defer ticker.Stop()

	runOnce()
	for {
		select {
		case <-ticker.C:
			runOnce()
		case sig := <-sigc:
			log.Print(ctx, log.KV{K: "signal", V: sig.String()}, log.KV{K: "event", V: "exited"})
			return
		}
	}
}
