package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "JOBPIPE"

// ConfigFileEnv names an explicit config file to read.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

var defaults = map[string]any{
	"server.port":              8080,
	"server.log_level":         "info",
	"server.max_payload_bytes": 50 << 20,
	"server.shutdown_timeout":  "15s",
	"server.embedded_workers":  true,

	"auth.jwt_secret": "",

	"ledger.backend":      BackendMemory,
	"ledger.dsn":          "",
	"ledger.auto_migrate": true,

	"queue.backend": BackendMemory,
	"queue.name":    "jobs",

	"redis.addr":       "localhost:6379",
	"redis.password":   "",
	"redis.db":         0,
	"redis.key_prefix": "jobpipe:",

	"blob.backend":       BackendMemory,
	"blob.endpoint":      "",
	"blob.access_key":    "",
	"blob.secret_key":    "",
	"blob.use_ssl":       false,
	"blob.region":        "",
	"blob.input_bucket":  "inputs",
	"blob.output_bucket": "artifacts",

	"worker.count":                4,
	"worker.pop_timeout":          "5s",
	"worker.stuck_job_age":        "0s",
	"worker.stuck_check_interval": "1m",
	"worker.recover_on_start":     true,

	"callback.timeout": "10s",

	"storage_retry.max_retries": 3,
	"storage_retry.base_delay":  "100ms",

	"engine.kind":           EngineCommand,
	"engine.command":        "",
	"engine.args":           []string{},
	"engine.timeout":        "0s",
	"engine.work_dir":       "",
	"engine.gemini_api_key": "",
	"engine.model_name":     "gemini-2.0-flash",
	"engine.max_retries":    3,

	"submission.payload_kind":         PayloadBytes,
	"submission.allowed_url_prefixes": []string{},

	"events.nats_url":       "",
	"events.subject_prefix": "jobs",
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence, then validates it.
func Load() (*Config, error) {
	return load(viper.New(), os.Getenv(ConfigFileEnv))
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/jobpipe")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the requirements each selected
// backend places on other sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var problems []string
	if c.Ledger.Backend == BackendPostgres && c.Ledger.DSN == "" {
		problems = append(problems, "ledger.dsn is required for the postgres ledger")
	}
	if c.Ledger.Backend == BackendSQLite && c.Ledger.DSN == "" {
		c.Ledger.DSN = ":memory:"
	}
	if (c.Ledger.Backend == BackendRedis || c.Queue.Backend == BackendRedis) && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when a redis backend is selected")
	}
	if c.Blob.Backend == BackendMinio && c.Blob.Endpoint == "" {
		problems = append(problems, "blob.endpoint is required for the minio blob store")
	}
	if c.Blob.InputBucket == c.Blob.OutputBucket {
		problems = append(problems, "blob.input_bucket and blob.output_bucket must differ")
	}
	switch c.Engine.Kind {
	case EngineCommand:
		if c.Engine.Command == "" {
			problems = append(problems, "engine.command is required for the command engine")
		}
	case EngineGemini:
		if c.Engine.GeminiAPIKey == "" {
			problems = append(problems, "engine.gemini_api_key is required for the gemini engine")
		}
		if c.Engine.ModelName == "" {
			problems = append(problems, "engine.model_name is required for the gemini engine")
		}
	}
	if c.Worker.StuckJobAge > 0 && c.Worker.StuckCheckInterval <= 0 {
		problems = append(problems, "worker.stuck_check_interval must be positive when worker.stuck_job_age is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NeedsRedis reports whether any selected backend uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Ledger.Backend == BackendRedis || c.Queue.Backend == BackendRedis
}
