package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir           string
	OutputBaseDir     string
	WorkDir           string
	EncoderPath       string
	EncoderSupportDir string
	EncoderChannel    int

	PollMaxAttempts int
	PollInterval    time.Duration
	Workers         int

	MissingStationPrefix string
	MissingMarker        string
	CalendarFile         string

	LogLevel  string
	LogFormat string
	LogFile   string

	HTTPAddr        string
	ShutdownTimeout time.Duration
	PushgatewayURL  string

	// Archive notifications; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// SQLite run ledger; disabled when empty.
	LedgerPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	channel, err := parsePositiveInt("ENCODER_CHANNEL", 96, 0)
	if err != nil {
		return nil, err
	}
	attempts, err := parsePositiveInt("POLL_MAX_ATTEMPTS", 12, 0)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", 1, 16)
	if err != nil {
		return nil, err
	}

	pollInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("POLL_INTERVAL", "5m"))
	if err != nil || pollInterval < 0 {
		return nil, errors.New("invalid POLL_INTERVAL")
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		DataDir:           sharedcfg.EnvOrDefault("DATA_DIR", "/data/tac"),
		OutputBaseDir:     sharedcfg.EnvOrDefault("BUFR_OUTPUT_BASE_DIR", "/data/bufr/observations"),
		WorkDir:           sharedcfg.EnvOrDefault("WORK_DIR", filepath.Join(os.TempDir(), "synop-bufr-work")),
		EncoderPath:       sharedcfg.EnvOrDefault("ENCODER_PATH", "synop2bufr"),
		EncoderSupportDir: os.Getenv("ENCODER_SUPPORT_DIR"),
		EncoderChannel:    channel,

		PollMaxAttempts: attempts,
		PollInterval:    pollInterval,
		Workers:         workers,

		MissingStationPrefix: sharedcfg.EnvOrDefault("MISSING_STATION_PREFIX", "60"),
		MissingMarker:        sharedcfg.EnvOrDefault("MISSING_MARKER", "NIL"),
		CalendarFile:         os.Getenv("SLOT_CALENDAR_FILE"),

		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "auto"),
		LogFile:   sharedcfg.EnvOrDefault("LOG_FILE", "synop_bufr.log"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "bufr-artifacts"),

		LedgerPath: os.Getenv("LEDGER_PATH"),
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if strings.TrimSpace(cfg.OutputBaseDir) == "" {
		return nil, errors.New("BUFR_OUTPUT_BASE_DIR is required")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, errors.New("WORK_DIR is required")
	}
	if strings.TrimSpace(cfg.EncoderPath) == "" {
		return nil, errors.New("ENCODER_PATH is required")
	}
	if strings.TrimSpace(cfg.MissingStationPrefix) == "" || strings.TrimSpace(cfg.MissingMarker) == "" {
		return nil, errors.New("MISSING_STATION_PREFIX and MISSING_MARKER must not be blank")
	}
	switch cfg.LogFormat {
	case "auto", "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether archive events are published.
func (c *Config) NotificationsEnabled() bool { return len(c.KafkaBrokers) > 0 }

// parsePositiveInt reads a strictly positive integer, bounded by upper when
// upper > 0.
func parsePositiveInt(key string, def, upper int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || (upper > 0 && n > upper) {
		if upper > 0 {
			return 0, fmt.Errorf("invalid %s: must be between 1 and %d", key, upper)
		}
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
