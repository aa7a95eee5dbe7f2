// Package config loads the platform's environment-variable configuration
// into a single explicit Config value. Nothing here is a package-level
// singleton: callers load a Config once in main() and pass it (or the
// AppContext built from it) into every constructor.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// StoreDSN groups the connection settings for one of the three store
// adapters (time-series, relational, graph).
type StoreDSN struct {
	Host     string `envconfig:"HOST"`
	Port     int    `envconfig:"PORT"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	Database string `envconfig:"DB"`
	// URI is used instead of Host/Port/User/Password/Database for drivers
	// (neo4j) that take a single connection URI.
	URI string `envconfig:"URI"`
	TLS bool   `envconfig:"TLS"`
}

// ModelProfile names the LLM provider + model identifier used for one
// TaskType classification bucket (§4.6 of the spec).
type ModelProfile struct {
	Provider    string  `envconfig:"PROVIDER" default:"anthropic"`
	Model       string  `envconfig:"MODEL"`
	Temperature float32 `envconfig:"TEMPERATURE" default:"0.2"`
}

// LLMConfig groups provider credentials and the per-TaskType model profiles.
type LLMConfig struct {
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	BedrockRegion   string `envconfig:"BEDROCK_REGION"`
	BaseURL         string `envconfig:"BASE_URL"`

	CodeAnalysis ModelProfile `envconfig:"CODE_ANALYSIS"`
	Analytics    ModelProfile `envconfig:"ANALYTICS"`
	Planning     ModelProfile `envconfig:"PLANNING"`
	QuickLookup  ModelProfile `envconfig:"QUICK_LOOKUP"`
	General      ModelProfile `envconfig:"GENERAL"`
}

// EmbeddingConfig groups the hosted embedding provider's credentials.
type EmbeddingConfig struct {
	Provider  string `envconfig:"PROVIDER" default:"openai"`
	APIKey    string `envconfig:"API_KEY"`
	BaseURL   string `envconfig:"BASE_URL"`
	Model     string `envconfig:"MODEL"`
	Dimension int    `envconfig:"DIMENSION" default:"1536"`
	BatchSize int    `envconfig:"BATCH_SIZE" default:"96"`
}

// BrokerConfig groups the streaming-broker consumer's settings.
type BrokerConfig struct {
	Brokers        []string `envconfig:"BOOTSTRAP"`
	Topics         []string `envconfig:"TOPICS"`
	ConsumerGroup  string   `envconfig:"GROUP" default:"engintel-ingest"`
	TLS            bool     `envconfig:"TLS"`
	PollBufferSize int      `envconfig:"POLL_BUFFER" default:"256"`
}

// IngestConfig groups the queue/worker-pool sizing for C5.
type IngestConfig struct {
	QueueSize         int           `envconfig:"QUEUE_SIZE" default:"1024"`
	Workers           int           `envconfig:"WORKERS" default:"8"`
	OperationDeadline time.Duration `envconfig:"OP_DEADLINE" default:"10s"`
	MaxLogRetries     int           `envconfig:"MAX_LOG_RETRIES" default:"5"`
	DeadLetterPath    string        `envconfig:"DEAD_LETTER_PATH" default:"/var/log/engintel/dead-letter.log"`
	// SharedQueueLimit bounds the fleet-wide (Redis-tracked) queue depth
	// across all replicas, on top of each replica's local channel capacity
	// (QueueSize). 0 disables the shared check.
	SharedQueueLimit int `envconfig:"SHARED_QUEUE_LIMIT" default:"0"`
	WebhookSecrets   map[string]string
}

// MaterializeConfig groups the analytics materialiser's schedule (C6).
type MaterializeConfig struct {
	Interval   time.Duration `envconfig:"INTERVAL" default:"15m"`
	SinceHours int           `envconfig:"SINCE_HOURS" default:"24"`
}

// RedisConfig groups the settings for the shared cache/queue-depth Redis
// instance (classification cache in internal/modelrouter, work-queue depth
// gauge and backpressure signal in internal/events/ingest).
type RedisConfig struct {
	URL string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	TTL time.Duration `envconfig:"TTL" default:"10m"`
}

// ExecutorConfig groups the hosted-executor Lambda invocation settings used
// by the "external actions" tool group (internal/tools/executor_tools.go,
// internal/tools/merge_tool.go).
type ExecutorConfig struct {
	FunctionName string `envconfig:"FUNCTION_NAME" default:"engintel-executor"`
	AuditLogPath string `envconfig:"AUDIT_LOG_PATH" default:"/var/log/engintel/tool-audit.log"`
}

// Config is the root configuration value. Built once via Load.
type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	Debug     bool   `envconfig:"DEBUG"`
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`

	TimeSeries StoreDSN `envconfig:"TSDB"`
	Relational StoreDSN `envconfig:"PG"`
	Graph      StoreDSN `envconfig:"GRAPH"`

	LLM         LLMConfig
	Embedding   EmbeddingConfig
	Broker      BrokerConfig
	Ingest      IngestConfig
	Executor    ExecutorConfig
	Materialize MaterializeConfig
	Redis     RedisConfig

	// WebhookSecretGitHub / WebhookSecretJira / WebhookSecretDocs are the
	// per-source HMAC shared secrets named in spec.md §6. Held separately
	// from IngestConfig.WebhookSecrets (populated from these) so envconfig
	// can bind them directly from flat env vars.
	WebhookSecretGitHub string `envconfig:"WEBHOOK_SECRET_GITHUB"`
	WebhookSecretJira   string `envconfig:"WEBHOOK_SECRET_JIRA"`
	WebhookSecretDocs   string `envconfig:"WEBHOOK_SECRET_DOCS"`
}

// Load reads a local .env file (if present, ignored otherwise) then binds
// environment variables with the ENGINTEL prefix into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional in prod; dev convenience only

	var cfg Config
	if err := envconfig.Process("ENGINTEL", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Ingest.WebhookSecrets = map[string]string{
		"code-host":     cfg.WebhookSecretGitHub,
		"issue-tracker": cfg.WebhookSecretJira,
		"docs":          cfg.WebhookSecretDocs,
	}
	return &cfg, nil
}
