package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			require.NoError(t, os.Unsetenv(env))
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4000", cfg.ServiceURL)
	assert.Equal(t, AIBackendFlow, cfg.AIBackend)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, ResultSinkFirestore, cfg.ResultSink)
	assert.Equal(t, BlobBackendGCS, cfg.BlobBackend)
	assert.Equal(t, "finance", cfg.BigQueryDataset)
	assert.Equal(t, 8, cfg.ClassifyConcurrency)
	assert.Equal(t, 30*time.Second, cfg.AITimeout)
	assert.Equal(t, "individual,person", cfg.RetailKeywords)
	assert.Equal(t, "company,ltd,llc", cfg.WholesaleKeywords)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_URL", "https://flows.example.com/")
	t.Setenv("GEMINI_API_KEY", "fallback-key")
	t.Setenv("FIREBASE_STORAGE_BUCKET", "uploads")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "proj")
	t.Setenv("RESULT_SINK", "BigQuery")
	t.Setenv("CLASSIFY_CONCURRENCY", "3")
	t.Setenv("AI_TIMEOUT", "5s")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "https://flows.example.com", cfg.ServiceURL)
	assert.Equal(t, "fallback-key", cfg.AIAPIKey)
	assert.Equal(t, "uploads", cfg.StorageBucket)
	assert.Equal(t, "proj", cfg.GCPProject)
	assert.Equal(t, ResultSinkBigQuery, cfg.ResultSink)
	assert.Equal(t, 3, cfg.ClassifyConcurrency)
	assert.Equal(t, 5*time.Second, cfg.AITimeout)
	assert.True(t, cfg.LogJSON)

	t.Setenv("GENKIT_API_KEY", "primary-key")
	cfg, err = Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "primary-key", cfg.AIAPIKey, "GENKIT_API_KEY wins over GEMINI_API_KEY")
}

func TestLoad_DotEnvAndConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GENKIT_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GENKIT_API_KEY") })

	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("worker_count: 2\nblob_backend: dir\nblob_dir: /data\n"), 0o600))

	cfg, err := Load(envFile, configFile)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.AIAPIKey)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, BlobBackendDir, cfg.BlobBackend)
	assert.Equal(t, "/data", cfg.BlobDir)
}

func TestLoad_MissingFiles(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"), "")
	assert.NoError(t, err, "a missing .env is tolerated")

	_, err = Load("", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServiceURL:          "http://localhost:4000",
			AIBackend:           AIBackendFlow,
			ResultSink:          ResultSinkFirestore,
			BlobBackend:         BlobBackendGCS,
			ClassifyConcurrency: 1,
			AITimeout:           time.Second,
			WorkerCount:         1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"valid", func(c *Config) {}, ""},
		{"gemini needs no service url", func(c *Config) { c.AIBackend = AIBackendGemini; c.ServiceURL = "" }, ""},
		{"missing service url", func(c *Config) { c.ServiceURL = "" }, "service_url"},
		{"unknown backend", func(c *Config) { c.AIBackend = "openai" }, "ai_backend"},
		{"unknown sink", func(c *Config) { c.ResultSink = "s3" }, "result_sink"},
		{"unknown blob backend", func(c *Config) { c.BlobBackend = "ftp" }, "blob_backend"},
		{"zero concurrency", func(c *Config) { c.ClassifyConcurrency = 0 }, "classify_concurrency"},
		{"zero timeout", func(c *Config) { c.AITimeout = 0 }, "ai_timeout"},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, "worker_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestRequireRunSettings(t *testing.T) {
	cfg := &Config{BlobBackend: BlobBackendGCS}

	var cfgErr *ConfigurationError
	require.ErrorAs(t, cfg.RequireRunSettings(), &cfgErr)
	assert.Equal(t, "ai_api_key", cfgErr.Key)

	cfg.AIAPIKey = "k"
	require.ErrorAs(t, cfg.RequireRunSettings(), &cfgErr)
	assert.Equal(t, "storage_bucket", cfgErr.Key)

	cfg.StorageBucket = "b"
	assert.NoError(t, cfg.RequireRunSettings())

	cfg.BlobBackend = BlobBackendDir
	require.ErrorAs(t, cfg.RequireRunSettings(), &cfgErr)
	assert.Equal(t, "blob_dir", cfgErr.Key)

	assert.Contains(t, (&ConfigurationError{Key: "x"}).Error(), "x is required")
}

func TestRequireProject(t *testing.T) {
	var cfgErr *ConfigurationError
	require.ErrorAs(t, (&Config{}).RequireProject(), &cfgErr)
	assert.Equal(t, "gcp_project", cfgErr.Key)
	assert.NoError(t, (&Config{GCPProject: "p"}).RequireProject())
}
