package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at process start and handed to each component's
// constructor. Heuristic thresholds are deliberately configuration, not
// constants: they need tuning per document corpus.
type Config struct {
	// Broker (STOMP / ActiveMQ Artemis)
	BrokerAddr      string
	BrokerUser      string
	BrokerPass      string
	BrokerVHost     string
	Queue           string
	DeadLetterQueue string

	// Fetching
	FetchBackend   string // "sftp" or "s3"
	FetchMaxBytes  int64
	SFTPAddr       string
	SFTPUser       string
	SFTPPass       string
	SFTPRemoteBase string
	SFTPTimeout    time.Duration
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string

	// Embedding
	EmbedProvider  string // "openai" (any OpenAI-compatible gateway) or "gemini"
	EmbedHost      string
	EmbedAPIKey    string
	EmbedModel     string
	EmbedBatchSize int

	// Index store
	IndexBackend string // "elasticsearch" or "pgvector"
	ElasticURL   string
	ElasticUser  string
	ElasticPass  string
	IndexName    string
	DatabaseURL  string

	// Cleaning heuristics
	CoverMaxLines        int
	CoverTitleRatio      float64
	HeaderFooterFraction float64
	MinHeaderFooterChars int
	TOCMaxLabelChars     int
	FoldCleanedText      bool

	// Chunking
	MaxChunkChars     int
	ChunkOverlapChars int

	// Orchestration
	Workers              int
	MaxRetryAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Ops server
	OpsPort string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		BrokerAddr:      getEnv("BROKER_ADDR", "localhost:61613"),
		BrokerUser:      getEnv("BROKER_USER", "artemis"),
		BrokerPass:      getEnv("BROKER_PASS", "artemis"),
		BrokerVHost:     getEnv("BROKER_VHOST", "/"),
		Queue:           getEnv("BROKER_QUEUE", "gestor-documental-movimientos"),
		DeadLetterQueue: getEnv("BROKER_DLQ", ""),

		FetchBackend:   getEnv("FETCH_BACKEND", "sftp"),
		FetchMaxBytes:  int64(getEnvInt("FETCH_MAX_BYTES", 50<<20)),
		SFTPAddr:       getEnv("SFTP_ADDR", "localhost:22"),
		SFTPUser:       getEnv("SFTP_USER", "root"),
		SFTPPass:       getEnv("SFTP_PASS", ""),
		SFTPRemoteBase: getEnv("SFTP_REMOTE_BASE", "/mnt/documentos"),
		SFTPTimeout:    getEnvDuration("SFTP_TIMEOUT", 30*time.Second),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "gestor-docs"),

		EmbedProvider:  getEnv("EMBED_PROVIDER", "openai"),
		EmbedHost:      getEnv("EMBED_HOST", "http://localhost:8081/v1"),
		EmbedAPIKey:    getEnv("EMBED_API_KEY", "none"),
		EmbedModel:     getEnv("EMBED_MODEL", "paraphrase-multilingual-MiniLM-L12-v2"),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 32),

		IndexBackend: getEnv("INDEX_BACKEND", "elasticsearch"),
		ElasticURL:   getEnv("ELASTIC_URL", "http://localhost:9200"),
		ElasticUser:  getEnv("ELASTIC_USER", ""),
		ElasticPass:  getEnv("ELASTIC_PASS", ""),
		IndexName:    getEnv("INDEX_NAME", "gestor-documental"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		CoverMaxLines:        getEnvInt("CLEAN_COVER_MAX_LINES", 8),
		CoverTitleRatio:      getEnvFloat("CLEAN_COVER_TITLE_RATIO", 0.6),
		HeaderFooterFraction: getEnvFloat("CLEAN_HEADER_FOOTER_FRACTION", 0.5),
		MinHeaderFooterChars: getEnvInt("CLEAN_MIN_HEADER_FOOTER_CHARS", 6),
		TOCMaxLabelChars:     getEnvInt("CLEAN_TOC_MAX_LABEL_CHARS", 80),
		FoldCleanedText:      getEnvBool("CLEAN_FOLD_TEXT", false),

		MaxChunkChars:     getEnvInt("CHUNK_MAX_CHARS", 1000),
		ChunkOverlapChars: getEnvInt("CHUNK_OVERLAP_CHARS", 200),

		Workers:              getEnvInt("WORKERS", 4),
		MaxRetryAttempts:     getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		RetryInitialInterval: getEnvDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
		RetryMaxInterval:     getEnvDuration("RETRY_MAX_INTERVAL", 10*time.Second),

		OpsPort: getEnv("OPS_PORT", "8080"),
	}

	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = cfg.Queue + ".DLQ"
	}
	if cfg.IndexBackend == "pgvector" && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set for pgvector index backend")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
