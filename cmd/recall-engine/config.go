package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// setConfigDefaults registers the built-in configuration. Values come from
// the config file or RECALL_ENGINE_* environment variables when present.
func setConfigDefaults() {
	data := defaultDataDir()

	viper.SetDefault("sessions.dir", defaultSessionsDir())
	viper.SetDefault("sessions.timezone", "Local")

	viper.SetDefault("index.path", filepath.Join(data, "index.json"))
	viper.SetDefault("index.handoffs_dir", filepath.Join(data, "handoffs"))

	viper.SetDefault("extraction.model", "anthropic/claude-sonnet-4.5")
	viper.SetDefault("extraction.max_retries", 3)
	viper.SetDefault("extraction.timeout", 5*time.Minute)
	viper.SetDefault("extraction.user_agent", "recall-engine/"+version)

	viper.SetDefault("batch.concurrency", 4)
	viper.SetDefault("batch.delay", time.Second)

	viper.SetDefault("retrieval.days_back", 30)
	viper.SetDefault("retrieval.max_results", 5)
}

// pipelineConfig assembles the pipeline configuration from viper.
func pipelineConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Sessions: types.SessionsConfig{
			SessionsDir: viper.GetString("sessions.dir"),
			Timezone:    viper.GetString("sessions.timezone"),
		},
		Index: types.IndexConfig{
			IndexPath:   viper.GetString("index.path"),
			HandoffsDir: viper.GetString("index.handoffs_dir"),
		},
		Extraction: types.ExtractionConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("extraction.model"),
				APIKey:     viper.GetString("extraction.api_key"),
				BaseURL:    viper.GetString("extraction.base_url"),
				MaxRetries: viper.GetInt("extraction.max_retries"),
			},
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("extraction.timeout"),
				UserAgent: viper.GetString("extraction.user_agent"),
			},
			PromptPath: viper.GetString("extraction.prompt_path"),
			SchemaPath: viper.GetString("extraction.schema_path"),
		},
		Batch: types.BatchConfig{
			Concurrency: viper.GetInt("batch.concurrency"),
			Delay:       viper.GetDuration("batch.delay"),
		},
		Retrieval: types.RetrievalConfig{
			DaysBack:   viper.GetInt("retrieval.days_back"),
			MaxResults: viper.GetInt("retrieval.max_results"),
		},
	}
}

// defaultDataDir is where the index and handoff files live unless
// configured otherwise.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall-engine"
	}
	return filepath.Join(home, ".local", "share", "recall-engine")
}

// defaultSessionsDir is where Claude Code keeps its session logs.
func defaultSessionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", "projects")
	}
	return filepath.Join(home, ".claude", "projects")
}
