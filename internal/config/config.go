// Package config loads service configuration from defaults, an optional
// config file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported values for the backend selectors.
const (
	AIBackendFlow   = "flow"
	AIBackendGemini = "gemini"

	ResultSinkFirestore = "firestore"
	ResultSinkBigQuery  = "bigquery"

	BlobBackendGCS = "gcs"
	BlobBackendDir = "dir"
)

// Config is the complete service configuration.
type Config struct {
	ServiceURL      string `mapstructure:"service_url"`
	AIAPIKey        string `mapstructure:"ai_api_key"`
	AIBackend       string `mapstructure:"ai_backend"`
	GeminiModel     string `mapstructure:"gemini_model"`
	StorageBucket   string `mapstructure:"storage_bucket"`
	BlobBackend     string `mapstructure:"blob_backend"`
	BlobDir         string `mapstructure:"blob_dir"`
	GCPProject      string `mapstructure:"gcp_project"`
	ResultSink      string `mapstructure:"result_sink"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`

	ClassifyConcurrency int           `mapstructure:"classify_concurrency"`
	AITimeout           time.Duration `mapstructure:"ai_timeout"`
	RetailKeywords      string        `mapstructure:"retail_keywords"`
	WholesaleKeywords   string        `mapstructure:"wholesale_keywords"`

	Port        int `mapstructure:"port"`
	WorkerCount int `mapstructure:"worker_count"`
	QueueSize   int `mapstructure:"queue_size"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration: %s is required", e.Key)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// envBindings maps config keys to the environment variables they read,
// in priority order.
var envBindings = map[string][]string{
	"service_url":          {"SERVICE_URL"},
	"ai_api_key":           {"GENKIT_API_KEY", "GEMINI_API_KEY"},
	"ai_backend":           {"AI_BACKEND"},
	"gemini_model":         {"GEMINI_MODEL"},
	"storage_bucket":       {"FIREBASE_STORAGE_BUCKET", "STORAGE_BUCKET"},
	"blob_backend":         {"BLOB_BACKEND"},
	"blob_dir":             {"BLOB_DIR"},
	"gcp_project":          {"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"},
	"result_sink":          {"RESULT_SINK"},
	"bigquery_dataset":     {"BIGQUERY_DATASET"},
	"classify_concurrency": {"CLASSIFY_CONCURRENCY"},
	"ai_timeout":           {"AI_TIMEOUT"},
	"retail_keywords":      {"RETAIL_KEYWORDS"},
	"wholesale_keywords":   {"WHOLESALE_KEYWORDS"},
	"port":                 {"PORT"},
	"worker_count":         {"WORKER_COUNT"},
	"queue_size":           {"QUEUE_SIZE"},
	"log_level":            {"LOG_LEVEL"},
	"log_json":             {"LOG_JSON"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_url", "http://127.0.0.1:4000")
	v.SetDefault("ai_api_key", "")
	v.SetDefault("ai_backend", AIBackendFlow)
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("storage_bucket", "")
	v.SetDefault("blob_backend", BlobBackendGCS)
	v.SetDefault("blob_dir", "")
	v.SetDefault("gcp_project", "")
	v.SetDefault("result_sink", ResultSinkFirestore)
	v.SetDefault("bigquery_dataset", "finance")
	v.SetDefault("classify_concurrency", 8)
	v.SetDefault("ai_timeout", 30*time.Second)
	v.SetDefault("retail_keywords", "individual,person")
	v.SetDefault("wholesale_keywords", "company,ltd,llc")
	v.SetDefault("port", 8080)
	v.SetDefault("worker_count", 5)
	v.SetDefault("queue_size", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Load reads configuration. envFile, when non-empty, is loaded into the
// process environment first; a missing .env file is not an error. configFile,
// when non-empty, must exist.
func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AIBackend = strings.ToLower(strings.TrimSpace(c.AIBackend))
	c.ResultSink = strings.ToLower(strings.TrimSpace(c.ResultSink))
	c.BlobBackend = strings.ToLower(strings.TrimSpace(c.BlobBackend))
	c.ServiceURL = strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/")
}

// Validate checks the settings needed to start the service. It returns a
// *ConfigurationError for the first problem found.
func (c *Config) Validate() error {
	switch c.AIBackend {
	case AIBackendFlow:
		if c.ServiceURL == "" {
			return &ConfigurationError{Key: "service_url"}
		}
	case AIBackendGemini:
	default:
		return &ConfigurationError{Key: "ai_backend", Reason: fmt.Sprintf("unknown backend %q", c.AIBackend)}
	}

	switch c.ResultSink {
	case ResultSinkFirestore, ResultSinkBigQuery:
	default:
		return &ConfigurationError{Key: "result_sink", Reason: fmt.Sprintf("unknown sink %q", c.ResultSink)}
	}

	switch c.BlobBackend {
	case BlobBackendGCS, BlobBackendDir:
	default:
		return &ConfigurationError{Key: "blob_backend", Reason: fmt.Sprintf("unknown backend %q", c.BlobBackend)}
	}

	if c.ClassifyConcurrency < 1 {
		return &ConfigurationError{Key: "classify_concurrency", Reason: "must be at least 1"}
	}
	if c.AITimeout <= 0 {
		return &ConfigurationError{Key: "ai_timeout", Reason: "must be positive"}
	}
	if c.WorkerCount < 1 {
		return &ConfigurationError{Key: "worker_count", Reason: "must be at least 1"}
	}

	return nil
}

// RequireRunSettings checks the values every pipeline run needs: the AI key
// and a blob source.
func (c *Config) RequireRunSettings() error {
	if strings.TrimSpace(c.AIAPIKey) == "" {
		return &ConfigurationError{Key: "ai_api_key"}
	}
	switch c.BlobBackend {
	case BlobBackendDir:
		if c.BlobDir == "" {
			return &ConfigurationError{Key: "blob_dir"}
		}
	default:
		if c.StorageBucket == "" {
			return &ConfigurationError{Key: "storage_bucket"}
		}
	}
	return nil
}

// RequireProject checks that a GCP project is set for cloud-backed stores.
func (c *Config) RequireProject() error {
	if c.GCPProject == "" {
		return &ConfigurationError{Key: "gcp_project"}
	}
	return nil
}
