package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string `env:"ELASTICSEARCH_ADDR"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" validate:"required"`
}

// DocumentAI identifies the extraction processor and how to reach it.
type DocumentAI struct {
	Credentials  string        `env:"GOOGLE_APPLICATION_CREDENTIALS" validate:"required"`
	ProjectID    string        `env:"PROJECT_ID" validate:"required"`
	Location     string        `env:"LOCATION_ID" validate:"required"`
	ProcessorID  string        `env:"PROCESSOR_ID" validate:"required"`
	ModelVersion string        `env:"MODEL_VERSION"`
	Endpoint     string        `env:"DOCUMENTAI_ENDPOINT" validate:"required"`
	Timeout      time.Duration `env:"EXTRACT_TIMEOUT" validate:"gte=0"`
	Attempts     int           `env:"EXTRACT_ATTEMPTS" validate:"gt=0"`
}

// API describes HTTP-gateway configuration.
type API struct {
	Common
	DocumentAI
	APIKey         string        `env:"API_KEY" validate:"required"`
	BindAddr       string        `env:"API_BIND_ADDR" validate:"required"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" validate:"gt=0"`
	CacheCapacity  int           `env:"RESULT_CACHE_CAPACITY" validate:"gte=0"`
	CacheTTL       time.Duration `env:"RESULT_CACHE_TTL" validate:"gt=0"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS"`
	KafkaTopic     string        `env:"KAFKA_TOPIC" validate:"required"`
	DefaultPage    int           `env:"API_PAGE_SIZE" validate:"gt=0"`
	MaxPage        int           `env:"API_MAX_PAGE_SIZE" validate:"gt=0"`
}

// SearchEnabled reports whether the gateway should expose transcript search.
func (c *API) SearchEnabled() bool {
	return c.ElasticsearchAddr != ""
}

// PublishEnabled reports whether successful extractions go out on Kafka.
func (c *API) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Worker holds configuration for the Kafka -> Elasticsearch indexer.
type Worker struct {
	Common
	KafkaBrokers   []string      `env:"KAFKA_BROKERS"`
	KafkaTopic     string        `env:"KAFKA_TOPIC" validate:"required"`
	KafkaConsumer  string        `env:"KAFKA_CONSUMER_GROUP" validate:"required"`
	DedupeCapacity int           `env:"WORKER_DEDUPE_CAPACITY" validate:"gt=0"`
	DedupeTTL      time.Duration `env:"WORKER_DEDUPE_TTL" validate:"gt=0"`
	BatchSize      int           `env:"WORKER_BATCH_SIZE" validate:"gt=0"`
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration `env:"RETENTION_CRON" validate:"gt=0"`
	MaxAge    time.Duration `env:"RETENTION_MAX_AGE" validate:"gt=0"`
	BatchSize int           `env:"RETENTION_BATCH_SIZE" validate:"gt=0"`
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "transcripts"),
		},
		DocumentAI: DocumentAI{
			Credentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			ProjectID:    getEnv("PROJECT_ID", ""),
			Location:     getEnv("LOCATION_ID", ""),
			ProcessorID:  getEnv("PROCESSOR_ID", ""),
			ModelVersion: getEnv("MODEL_VERSION", ""),
			Endpoint:     getEnv("DOCUMENTAI_ENDPOINT", "us-documentai.googleapis.com:443"),
			Timeout:      getDuration("EXTRACT_TIMEOUT", "60s"),
			Attempts:     getInt("EXTRACT_ATTEMPTS", 1),
		},
		APIKey:         getEnv("API_KEY", ""),
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		MaxUploadBytes: getInt64("MAX_UPLOAD_BYTES", 10<<20),
		CacheCapacity:  getInt("RESULT_CACHE_CAPACITY", 0),
		CacheTTL:       getDuration("RESULT_CACHE_TTL", "1h"),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "transcripts"),
		DefaultPage:    getInt("API_PAGE_SIZE", 20),
		MaxPage:        getInt("API_MAX_PAGE_SIZE", 100),
	}

	if err := validateStruct(c); err != nil {
		return nil, err
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "transcripts"),
		},
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "transcripts"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "transcript-indexer"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if err := validateStruct(c); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "transcripts"),
		},
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if err := validateStruct(c); err != nil {
		return nil, err
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
