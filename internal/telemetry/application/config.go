package application

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fleet-telemetry-cloud/internal/queue"
)

// IngestConfig tunes the consumer side of the pipeline. The defaults
// match the queue's delivery contract: small batches, bounded fan-out.
type IngestConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`

	RetentionHours int `yaml:"retention_hours"`
	AckWaitSeconds int `yaml:"ack_wait_seconds"`
	MaxDeliver     int `yaml:"max_deliver"`
	FetchWaitSecs  int `yaml:"fetch_wait_seconds"`
}

// LoadIngestConfig builds config from env, overridden by an optional
// yaml file named by INGEST_CONFIG.
func LoadIngestConfig() (IngestConfig, error) {
	cfg := IngestConfig{
		Workers:        getenvIntDefault("INGEST_WORKERS", 20),
		BatchSize:      getenvIntDefault("INGEST_BATCH_SIZE", 10),
		RetentionHours: getenvIntDefault("QUEUE_RETENTION_HOURS", 96),
		AckWaitSeconds: getenvIntDefault("QUEUE_ACK_WAIT_SECONDS", 120),
		MaxDeliver:     getenvIntDefault("QUEUE_MAX_DELIVER", 5),
		FetchWaitSecs:  getenvIntDefault("QUEUE_FETCH_WAIT_SECONDS", 10),
	}

	if path := os.Getenv("INGEST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg.withDefaults(), nil
}

// QueueOptions maps the config onto broker options.
func (c IngestConfig) QueueOptions() queue.Options {
	c = c.withDefaults()
	return queue.Options{
		Retention:  time.Duration(c.RetentionHours) * time.Hour,
		AckWait:    time.Duration(c.AckWaitSeconds) * time.Second,
		MaxDeliver: c.MaxDeliver,
		FetchWait:  time.Duration(c.FetchWaitSecs) * time.Second,
	}
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.Workers <= 0 {
		c.Workers = 20
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.RetentionHours <= 0 {
		c.RetentionHours = 96
	}
	if c.AckWaitSeconds <= 0 {
		c.AckWaitSeconds = 120
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.FetchWaitSecs <= 0 {
		c.FetchWaitSecs = 10
	}
	return c
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
