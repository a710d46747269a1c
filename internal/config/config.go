package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Blob         BlobConfig         `mapstructure:"blob"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Callback     CallbackConfig     `mapstructure:"callback"`
	StorageRetry StorageRetryConfig `mapstructure:"storage_retry"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Submission   SubmissionConfig   `mapstructure:"submission"`
	Events       EventsConfig       `mapstructure:"events"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// EmbeddedWorkers runs the worker pool inside the API process.
	EmbeddedWorkers bool `mapstructure:"embedded_workers"`
}

// AuthConfig enables bearer-token authentication on the job routes when
// JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// Backend names shared by several sections.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMinio    = "minio"
)

// LedgerConfig selects the job ledger backend.
type LedgerConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=memory redis postgres sqlite"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// QueueConfig selects the work queue backend.
type QueueConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory redis"`
	Name    string `mapstructure:"name" validate:"required,excludesall=: "`
}

// RedisConfig is shared by the Redis ledger and queue.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// BlobConfig selects the blob store and names the buckets.
type BlobConfig struct {
	Backend      string `mapstructure:"backend" validate:"oneof=memory minio"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Region       string `mapstructure:"region"`
	InputBucket  string `mapstructure:"input_bucket" validate:"required,min=3,max=63"`
	OutputBucket string `mapstructure:"output_bucket" validate:"required,min=3,max=63"`
}

// WorkerConfig controls the worker pool.
type WorkerConfig struct {
	Count      int           `mapstructure:"count" validate:"gte=1,lte=256"`
	PopTimeout time.Duration `mapstructure:"pop_timeout" validate:"gte=0"`
	// StuckJobAge enables the stale sweep when positive.
	StuckJobAge        time.Duration `mapstructure:"stuck_job_age" validate:"gte=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gte=0"`
	// RecoverOnStart re-queues unacknowledged queue items at startup.
	RecoverOnStart bool `mapstructure:"recover_on_start"`
}

// CallbackConfig controls callback delivery.
type CallbackConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// StorageRetryConfig bounds caller-side retries of transient storage errors.
type StorageRetryConfig struct {
	MaxRetries uint64        `mapstructure:"max_retries" validate:"lte=20"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
}

// Engine kinds.
const (
	EngineCommand = "command"
	EngineGemini  = "gemini"
)

// EngineConfig selects and configures the processing engine.
type EngineConfig struct {
	Kind         string        `mapstructure:"kind" validate:"oneof=command gemini"`
	Command      string        `mapstructure:"command"`
	Args         []string      `mapstructure:"args"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	WorkDir      string        `mapstructure:"work_dir"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	ModelName    string        `mapstructure:"model_name"`
	MaxRetries   uint64        `mapstructure:"max_retries"`
}

// Payload kinds accepted by the submission service.
const (
	PayloadBytes = "bytes"
	PayloadURL   = "url"
)

// SubmissionConfig holds payload rules.
type SubmissionConfig struct {
	PayloadKind        string   `mapstructure:"payload_kind" validate:"oneof=bytes url"`
	AllowedURLPrefixes []string `mapstructure:"allowed_url_prefixes" validate:"dive,url"`
}

// EventsConfig enables publishing job outcomes to NATS when NATSURL is set.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}
