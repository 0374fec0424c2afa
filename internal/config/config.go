package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int `validate:"min=1,max=65535"`
	Password string

	// Capture
	Device      string  `validate:"required"`
	FrameWidth  int     `validate:"min=1"`
	FrameHeight int     `validate:"min=1"`
	FrameFPS    float64 `validate:"gt=0"`
	DisplayFPS  float64 `validate:"gt=0"`
	JPEGQuality int     `validate:"min=1,max=100"`
	ViewerQueue int     `validate:"min=1"`

	// Queues
	DetectionQueueSize       int    `validate:"min=1"`
	DetectionResultQueueSize int    `validate:"min=1"`
	ResultQueueSize          int    `validate:"min=1"`
	QueueDropPolicy          string `validate:"oneof=drop_newest drop_oldest"`

	// Sampling: DetectionInterval > 0 selects the interval policy, otherwise every DetectionStride-th frame.
	DetectionStride   int `validate:"min=1"`
	DetectionInterval time.Duration

	// Detection validity
	MinConfidence     float64 `validate:"gte=0,lte=1"`
	MinBoxWidth       int     `validate:"min=1"`
	MinBoxHeight      int     `validate:"min=1"`
	MaxBoxWidth       int     `validate:"gtefield=MinBoxWidth"`
	MaxBoxHeight      int     `validate:"gtefield=MinBoxHeight"`
	MinTextLength     int     `validate:"min=1"`
	MinDistinctRatio  float64 `validate:"gte=0,lte=1"`
	MinPrintableRatio float64 `validate:"gte=0,lte=1"`

	// Enrichment
	CacheCapacity   int           `validate:"min=1"`
	CacheTTL        time.Duration `validate:"gt=0"`
	TargetLang      string        `validate:"required"`
	EnrichRateLimit float64       `validate:"gte=0"`

	// Workers
	DetectionWorkers  int           `validate:"min=1"`
	EnrichmentWorkers int           `validate:"min=1"`
	WorkerTimeout     time.Duration `validate:"gt=0"`
	StopTimeout       time.Duration `validate:"gt=0"`
	StrictFreshness   bool

	// Collaborators
	OCRLanguage     string `validate:"required"`
	GeminiAPIKey    string
	GeminiModelName string

	// Remote cache tier, disabled when RedisAddress is empty
	RedisAddress  string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// History, disabled when HistoryDBPath is empty
	HistoryDBPath        string
	HistoryFlushInterval time.Duration `validate:"gt=0"`
	HistoryBufferLimit   int           `validate:"min=1"`
	HistoryRetention     time.Duration `validate:"gte=0"`

	LogDirectory string `validate:"required"`
}

// Load reads .env (if present) and the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", ""),

		Device:      getEnv("DEVICE", "0"),
		FrameWidth:  getEnvAsInt("FRAME_WIDTH", 640),
		FrameHeight: getEnvAsInt("FRAME_HEIGHT", 480),
		FrameFPS:    getEnvAsFloat("FRAME_FPS", 15),
		DisplayFPS:  getEnvAsFloat("DISPLAY_FPS", 15),
		JPEGQuality: getEnvAsInt("JPEG_QUALITY", 80),
		ViewerQueue: getEnvAsInt("VIEWER_QUEUE_SIZE", 4),

		DetectionQueueSize:       getEnvAsInt("DETECTION_QUEUE_SIZE", 2),
		DetectionResultQueueSize: getEnvAsInt("DETECTION_RESULT_QUEUE_SIZE", 2),
		ResultQueueSize:          getEnvAsInt("RESULT_QUEUE_SIZE", 2),
		QueueDropPolicy:          strings.ToLower(getEnv("QUEUE_DROP_POLICY", "drop_newest")),

		DetectionStride:   getEnvAsInt("DETECTION_STRIDE", 2), // every 2nd frame
		DetectionInterval: getEnvAsMillis("DETECTION_INTERVAL_MS", 0),

		MinConfidence:     getEnvAsFloat("MIN_CONFIDENCE", 0.5),
		MinBoxWidth:       getEnvAsInt("MIN_BOX_WIDTH", 20),
		MinBoxHeight:      getEnvAsInt("MIN_BOX_HEIGHT", 10),
		MaxBoxWidth:       getEnvAsInt("MAX_BOX_WIDTH", 500),
		MaxBoxHeight:      getEnvAsInt("MAX_BOX_HEIGHT", 100),
		MinTextLength:     getEnvAsInt("MIN_TEXT_LENGTH", 2),
		MinDistinctRatio:  getEnvAsFloat("MIN_DISTINCT_RATIO", 0.3),
		MinPrintableRatio: getEnvAsFloat("MIN_PRINTABLE_RATIO", 0.6),

		CacheCapacity:   getEnvAsInt("CACHE_CAPACITY", 512),
		CacheTTL:        time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		TargetLang:      getEnv("TARGET_LANG", "hi"),
		EnrichRateLimit: getEnvAsFloat("ENRICH_RATE_LIMIT", 0),

		DetectionWorkers:  getEnvAsInt("DETECTION_WORKERS", 1),
		EnrichmentWorkers: getEnvAsInt("ENRICHMENT_WORKERS", 1),
		WorkerTimeout:     getEnvAsMillis("WORKER_TIMEOUT_MS", 100),
		StopTimeout:       getEnvAsMillis("STOP_TIMEOUT_MS", 2000),
		StrictFreshness:   getEnvAsBool("STRICT_FRESHNESS", false),

		OCRLanguage:     getEnv("OCR_LANGUAGE", "eng"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModelName: getEnv("GEMINI_MODEL_NAME", "gemini-1.5-flash"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		HistoryDBPath:        getEnv("HISTORY_DB_PATH", ""),
		HistoryFlushInterval: time.Duration(getEnvAsInt("HISTORY_FLUSH_INTERVAL", 30)) * time.Second,
		HistoryBufferLimit:   getEnvAsInt("HISTORY_BUFFER_LIMIT", 50),
		HistoryRetention:     time.Duration(getEnvAsInt("HISTORY_RETENTION_HOURS", 0)) * time.Hour,

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HistoryEnabled reports whether enriched batches are persisted.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDBPath != ""
}

// RemoteCacheEnabled reports whether the Redis cache tier is configured.
func (c *Config) RemoteCacheEnabled() bool {
	return c.RedisAddress != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}
