package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the dispatch service.
type Config struct {
	App        AppConfig
	Kafka      KafkaConfig
	Caches     CacheConfig
	Quota      QuotaConfig
	Dispatch   DispatchConfig
	SMPP       SMPPConfig
	Reporting  ReportingConfig
	Reconciler ReconcilerConfig
	// TestActors lists actor ids whose requests always go through the real
	// send path, test-mode flag notwithstanding.
	TestActors []string
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// KafkaConfig defines broker information and the response event topic.
type KafkaConfig struct {
	Brokers    []string
	EventTopic string
}

// CacheConfig names the distributed cache regions the service reads.
type CacheConfig struct {
	ContactPolicy   string
	TrxDaily        string
	TrxHist         string
	Segment         string
	CustomerDetails string
	ScenarioMeta    string
}

// QuotaConfig throttles quota evaluations against the cache.
type QuotaConfig struct {
	RatePerSecond float64
	RateBurst     int
}

// DispatchConfig tunes the batching pipeline.
type DispatchConfig struct {
	BufferSize           int
	WorkerCount          int
	FlushIntervalSeconds int
	PollTimeoutMillis    int
}

// SMPPConfig stores gateway session settings.
type SMPPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SystemType    string
	TimeoutMillis int
	// UseMockSession swaps the live gateway session for the in-memory one,
	// used in local runs and integration environments without a gateway.
	UseMockSession bool
}

// ReportingConfig locates the relational reporting store.
type ReportingConfig struct {
	DSN   string
	Table string
}

// ReconcilerConfig tunes delivery receipt reconciliation.
type ReconcilerConfig struct {
	FlushIntervalMillis int
	BatchSize           int
	MaxRetries          int
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.EventTopic = ldr.getString("KAFKA_EVENT_TOPIC", "", true)

	cfg.Caches.ContactPolicy = ldr.getString("CACHE_CONTACT_POLICY", "CONTACT_POLICY_SMS", false)
	cfg.Caches.TrxDaily = ldr.getString("CACHE_TRX_DAILY", "CUSTOMER_TRX", false)
	cfg.Caches.TrxHist = ldr.getString("CACHE_TRX_HIST", "CUSTOMER_TRX_HIST", false)
	cfg.Caches.Segment = ldr.getString("CACHE_SEGMENT", "CUSTOMER_CP_SEGMENT", false)
	cfg.Caches.CustomerDetails = ldr.getString("CACHE_CUSTOMER_DETAILS", "CUSTOMER_DETAILS", false)
	cfg.Caches.ScenarioMeta = ldr.getString("CACHE_SCENARIO_META", "SCENARIO_META", false)

	cfg.Quota.RatePerSecond = float64(ldr.getInt("QUOTA_RATE_PER_SECOND", 100, false))
	cfg.Quota.RateBurst = ldr.getInt("QUOTA_RATE_BURST", 100, false)

	cfg.Dispatch.BufferSize = ldr.getInt("DISPATCH_BUFFER_SIZE", 1000, false)
	cfg.Dispatch.WorkerCount = ldr.getInt("DISPATCH_WORKER_COUNT", 4, false)
	cfg.Dispatch.FlushIntervalSeconds = ldr.getInt("DISPATCH_FLUSH_INTERVAL_SECONDS", 10, false)
	cfg.Dispatch.PollTimeoutMillis = ldr.getInt("DISPATCH_POLL_TIMEOUT_MS", 1000, false)

	cfg.SMPP.UseMockSession = ldr.getBool("SMPP_USE_MOCK_SESSION", false, false)
	required := !cfg.SMPP.UseMockSession
	cfg.SMPP.Host = ldr.getString("SMPP_HOST", "", required)
	cfg.SMPP.Port = ldr.getInt("SMPP_PORT", 2775, false)
	cfg.SMPP.Username = ldr.getString("SMPP_USERNAME", "", required)
	cfg.SMPP.Password = ldr.getString("SMPP_PASSWORD", "", required)
	cfg.SMPP.SystemType = ldr.getString("SMPP_SYSTEM_TYPE", "", false)
	cfg.SMPP.TimeoutMillis = ldr.getInt("SMPP_TIMEOUT_MS", 5000, false)

	cfg.Reporting.DSN = ldr.getString("REPORTING_DSN", "file:reporting.db", false)
	cfg.Reporting.Table = ldr.getString("REPORTING_TABLE", "sms_reporting", false)

	cfg.Reconciler.FlushIntervalMillis = ldr.getInt("RECONCILER_FLUSH_INTERVAL_MS", 200, false)
	cfg.Reconciler.BatchSize = ldr.getInt("RECONCILER_BATCH_SIZE", 200, false)
	cfg.Reconciler.MaxRetries = ldr.getInt("RECONCILER_MAX_RETRIES", 2, false)

	cfg.TestActors = ldr.getStringSlice("TEST_ACTOR_IDS", false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
