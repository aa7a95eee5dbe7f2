// Command apiserver wires the C11 supervisor, the C13 in-memory thread
// store, and every C7 tool group behind the C12 HTTP/SSE transport.
// Grounded on the signal-handling/graceful-shutdown shape of
// goadesign-goa-ai's example/cmd/assistant/main.go, adapted from its
// goa-generated server bootstrap to a plain net/http.Server since this
// platform exposes its own chi router rather than goa-generated endpoints.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"goa.design/clue/log"

	"github.com/engintel/platform/internal/agent/memory/inmem"
	"github.com/engintel/platform/internal/agent/supervisor"
	"github.com/engintel/platform/internal/cache"
	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/graphrag"
	"github.com/engintel/platform/internal/httpapi"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/llm/anthropic"
	"github.com/engintel/platform/internal/llm/bedrock"
	"github.com/engintel/platform/internal/llm/openai"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/modelrouter"
	"github.com/engintel/platform/internal/pipelines"
	"github.com/engintel/platform/internal/rag"
	"github.com/engintel/platform/internal/store/graph"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
	"github.com/engintel/platform/internal/tools"
)

func main() {
	dbgF := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx := logging.NewContext(context.Background(), "apiserver", *dbgF)

	tsStore := tsdb.New(cfg.TimeSeries, cfg.Ingest.OperationDeadline)
	relStore := relational.New(cfg.Relational, cfg.Ingest.OperationDeadline)
	graphStore := graph.New(cfg.Graph, cfg.Ingest.OperationDeadline)
	embedClient := embedding.New(cfg.Embedding)

	clients, err := buildLLMClients(ctx, *cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatal(ctx, err)
	}
	router := modelrouter.NewCachingRouter(modelrouter.New(cfg.LLM), redisClient)

	// quick_expert_search/find_developer_by_skills both need the same
	// relational+embedding-backed resolver, so RegisterVectorTools must run
	// before RegisterPipelineTools wires the pipelines that re-enter it.
	registry := tools.NewRegistry()
	tools.RegisterTimeSeriesTools(registry, tsStore)
	tools.RegisterRelationalTools(registry, relStore)
	tools.RegisterVectorTools(registry, relStore, embedClient)
	tools.RegisterGraphTools(registry, graphStore)

	strongClient := clients[cfg.LLM.General.Provider]
	ragPipeline := rag.New(embedClient, relStore, clients[cfg.LLM.QuickLookup.Provider], strongClient, cfg.Embedding.Provider)
	graphRAGPipeline := graphrag.New(embedClient, relStore, relStore, graphStore, strongClient)
	nlQueryPipeline := pipelines.NewNLQueryPipeline(tsStore, clients[cfg.LLM.CodeAnalysis.Provider])
	prepPipeline := pipelines.NewPrepPipeline(relStore, tsStore, strongClient)
	tools.RegisterPipelineTools(registry, ragPipeline, graphRAGPipeline, nlQueryPipeline, prepPipeline, tsStore)

	if lambdaClient, err := buildLambdaClient(ctx, *cfg); err != nil {
		log.Print(ctx, log.KV{K: "warn", V: "executor tools disabled: " + err.Error()})
	} else {
		tools.RegisterExecutorTools(registry, lambdaClient, cfg.Executor.FunctionName)
		if err := tools.RegisterMergeTool(registry, lambdaClient, cfg.Executor.FunctionName, tools.NoopEmailSender{}, cfg.Executor.AuditLogPath); err != nil {
			log.Print(ctx, log.KV{K: "warn", V: "merge tool registration failed: " + err.Error()})
		}
	}

	deps := supervisor.Dependencies{
		Router:  router,
		Clients: supervisor.Clients(clients),
		Tools:   registry,
		Memory:  inmem.New(),
		NLQuery: nlQueryPipeline,
	}
	server := httpapi.NewServer(deps)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.NewRouter(nil),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // chat turns can run a full specialist loop
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
			log.Fatal(ctx, err)
		}
	case sig := <-sigc:
		log.Print(ctx, log.KV{K: "signal", V: sig.String()}, log.KV{K: "event", V: "shutting down"})
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Print(ctx, log.KV{K: "error", V: err.Error()})
		}
	}
	log.Print(ctx, log.KV{K: "event", V: "exited"})
}

// buildLLMClients constructs one llm.Client per configured provider name
// (anthropic/openai/bedrock), so the supervisor can dispatch a
// ModelSelection.Provider to the right SDK regardless of which TaskType
// chose it.
func buildLLMClients(ctx context.Context, cfg config.Config) (map[string]llm.Client, error) {
	clients := map[string]llm.Client{}

	if cfg.LLM.AnthropicAPIKey != "" {
		c, err := anthropic.New(cfg.LLM.AnthropicAPIKey, cfg.LLM.General.Model, 4096, float64(cfg.LLM.General.Temperature))
		if err != nil {
			return nil, fmt.Errorf("build anthropic client: %w", err)
		}
		clients["anthropic"] = c
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		c, err := openai.New(cfg.LLM.OpenAIAPIKey, cfg.LLM.General.Model, cfg.LLM.BaseURL, cfg.LLM.General.Temperature)
		if err != nil {
			return nil, fmt.Errorf("build openai client: %w", err)
		}
		clients["openai"] = c
	}
	if cfg.LLM.BedrockRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.LLM.BedrockRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config for bedrock: %w", err)
		}
		c, err := bedrock.New(bedrockruntime.NewFromConfig(awsCfg), cfg.LLM.General.Model, cfg.LLM.General.Temperature)
		if err != nil {
			return nil, fmt.Errorf("build bedrock client: %w", err)
		}
		clients["bedrock"] = c
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM provider credentials configured")
	}
	return clients, nil
}

func buildLambdaClient(ctx context.Context, cfg config.Config) (*lambda.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config for lambda: %w", err)
	}
	return lambda.NewFromConfig(awsCfg), nil
}
