package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"auditlog/pkg/platform/strings"
)

// Env var names.
const (
	EnvAddr           = "AUDITLOG_ADDR"
	EnvLogLevel       = "AUDITLOG_LOG_LEVEL"
	EnvLogFormat      = "AUDITLOG_LOG_FORMAT"
	EnvDebug          = "AUDITLOG_DEBUG"
	EnvBufferSize     = "AUDITLOG_BUFFER_SIZE"
	EnvPersistTimeout = "AUDITLOG_PERSIST_TIMEOUT"
	EnvJSONLPath      = "AUDITLOG_JSONL_PATH"
	EnvGormDSN        = "AUDITLOG_GORM_DSN"
	EnvSQLDSN         = "AUDITLOG_SQL_DSN"
	EnvRedisURL       = "AUDITLOG_REDIS_URL"
	EnvKafkaBrokers   = "AUDITLOG_KAFKA_BROKERS"
	EnvModelName      = "AUDITLOG_MODEL_NAME"
	EnvJWTKey         = "AUDITLOG_JWT_KEY"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string
	JWTKey    string

	Dispatcher Dispatcher
	Sinks      Sinks
}

// Dispatcher tunes event delivery.
type Dispatcher struct {
	BufferSize     int
	PersistTimeout time.Duration
}

// Sinks holds one connection string per backend; empty disables the backend.
type Sinks struct {
	ModelName    string
	Debug        bool
	JSONLPath    string
	GormDSN      string
	SQLDSN       string
	RedisURL     string
	KafkaBrokers []string
}

// Any reports whether at least one backend is configured.
func (s Sinks) Any() bool {
	return s.JSONLPath != "" || s.GormDSN != "" || s.SQLDSN != "" || s.RedisURL != "" || len(s.KafkaBrokers) > 0
}

// Load reads .env from the working directory when present and then builds the
// configuration from the environment. Variables already set win over .env.
func Load() (Server, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Server{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	var errs []error

	bufferSize, err := intEnv(EnvBufferSize, 1024)
	errs = append(errs, err)
	timeout, err := durationEnv(EnvPersistTimeout, 0)
	errs = append(errs, err)
	debug, err := boolEnv(EnvDebug)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}

	return Server{
		Addr:      getenv(EnvAddr, ":9464"),
		LogLevel:  getenv(EnvLogLevel, "info"),
		LogFormat: getenv(EnvLogFormat, "text"),
		JWTKey:    os.Getenv(EnvJWTKey),
		Dispatcher: Dispatcher{
			BufferSize:     bufferSize,
			PersistTimeout: timeout,
		},
		Sinks: Sinks{
			ModelName:    getenv(EnvModelName, "AuditLog"),
			Debug:        debug,
			JSONLPath:    os.Getenv(EnvJSONLPath),
			GormDSN:      os.Getenv(EnvGormDSN),
			SQLDSN:       os.Getenv(EnvSQLDSN),
			RedisURL:     os.Getenv(EnvRedisURL),
			KafkaBrokers: strings.SplitList(os.Getenv(EnvKafkaBrokers)),
		},
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: want a duration like 5s, got %q", key, v)
	}
	return d, nil
}

func boolEnv(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: want true or false, got %q", key, v)
	}
	return b, nil
}
