package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Persistence. An empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// Vessel positions. An empty RedisAddr selects the in-memory source.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPositionsKey string

	// Channel gateway. An empty NATSURL leaves every channel unconfigured.
	NATSURL           string
	NATSSubjectPrefix string

	// Alerting policy.
	SendTimeout         time.Duration
	AlertMinSeverity    domain.Severity
	AlertTTL            time.Duration
	VoiceMinSeverity    domain.Severity
	ExpirySweepInterval time.Duration
	AssessConcurrency   int

	// Historical aftershock catalog.
	CatalogEnabled   bool
	CatalogURL       string
	CatalogTimeout   time.Duration
	CatalogCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	sendTimeout, err := parseDuration("SEND_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	alertTTL, err := parseDuration("ALERT_TTL", "6h")
	if err != nil {
		return nil, err
	}
	sweepInterval, err := parseDuration("EXPIRY_SWEEP_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	catalogTimeout, err := parseDuration("CATALOG_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	alertMin, err := parseSeverity("ALERT_MIN_SEVERITY", "high")
	if err != nil {
		return nil, err
	}
	voiceMin, err := parseSeverity("VOICE_MIN_SEVERITY", "critical")
	if err != nil {
		return nil, err
	}

	redisDB, err := parseInt("REDIS_DB", 0, 0)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("ASSESS_CONCURRENCY", 8, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "earthquake-events"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "maritime-threat-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "tsunami-alert-service"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		RedisPositionsKey: sharedcfg.EnvOrDefault("REDIS_POSITIONS_KEY", "vessel:positions"),

		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: sharedcfg.EnvOrDefault("NATS_SUBJECT_PREFIX", "alerts.send"),

		SendTimeout:         sendTimeout,
		AlertMinSeverity:    alertMin,
		AlertTTL:            alertTTL,
		VoiceMinSeverity:    voiceMin,
		ExpirySweepInterval: sweepInterval,
		AssessConcurrency:   concurrency,

		CatalogEnabled:   os.Getenv("CATALOG_ENABLED") == "true",
		CatalogURL:       sharedcfg.EnvOrDefault("CATALOG_URL", "https://earthquake.usgs.gov/fdsnws/event/1"),
		CatalogTimeout:   catalogTimeout,
		CatalogCacheSize: parseCatalogCacheSize(),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.CatalogEnabled && cfg.CatalogURL == "" {
		return nil, errors.New("CATALOG_ENABLED is true but CATALOG_URL is not set")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseSeverity(key, def string) (domain.Severity, error) {
	s, err := domain.ParseSeverity(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return s, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseCatalogCacheSize() int {
	if s := os.Getenv("CATALOG_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 500
}
