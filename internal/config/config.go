// Package config loads the core's two external files — the tools
// descriptor and the model catalog (§6) — plus the process-wide tunables
// named throughout spec.md (rate-limit burst, checkpoint interval,
// compression thresholds, token budgets, heartbeat concurrency caps,
// timeouts). Grounded on the teacher's internal/config package: a
// per-concern struct split (config_llm.go, config_session.go, ...) loaded
// from one YAML document via gopkg.in/yaml.v3, with environment overrides
// (loader.go's applyEnvOverrides) and KnownFields(true) strict decoding.
//
// Every field tagged env:"ARIA_..." takes an environment override,
// applied after the YAML decode; untagged fields (JobConcurrency,
// WatchFiles, the two file paths) are set from YAML only. This matches the
// teacher's habit of layering
// environment overrides on top of a parsed config struct rather than
// reading os.Getenv scattered through business logic.
package config

import (
	"time"
)

// Config is the root configuration document for a core process.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Router    RouterConfig    `yaml:"router"`
	Registry  RegistryConfig  `yaml:"registry"`
	Session   SessionConfig   `yaml:"session"`
	Cognition CognitionConfig `yaml:"cognition"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Auth      AuthConfig      `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`

	// ToolsDescriptorPath / ModelCatalogPath point at the two §6 external
	// files. WatchFiles is decoded, but Load does not act on it and no
	// watcher is started from it; Watcher (watch.go) reloads a file only
	// when a caller sets one up.
	ToolsDescriptorPath string `yaml:"tools_descriptor_path"`
	ModelCatalogPath    string `yaml:"model_catalog_path"`
	WatchFiles          bool   `yaml:"watch_files"`
}

// StoreConfig configures the §4.7 store facade backend.
type StoreConfig struct {
	// Driver selects the backend: "memory" (tests/dev) or "postgres".
	Driver          string        `yaml:"driver" env:"ARIA_STORE_DRIVER"`
	DSN             string        `yaml:"dsn" env:"ARIA_STORE_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"ARIA_STORE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"ARIA_STORE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"ARIA_STORE_CONN_MAX_LIFETIME"`
	// VectorPersistPath points chromem-go at an on-disk collection; empty
	// means in-memory only (§4.7 semantic memory backend).
	VectorPersistPath string `yaml:"vector_persist_path" env:"ARIA_STORE_VECTOR_PATH"`
}

// RouterConfig configures the §4.6 model router client.
type RouterConfig struct {
	BaseURL        string        `yaml:"base_url" env:"ARIA_ROUTER_BASE_URL"`
	APIKey         string        `yaml:"api_key" env:"ARIA_ROUTER_API_KEY"`
	Timeout        time.Duration `yaml:"timeout" env:"ARIA_ROUTER_TIMEOUT"`
	CostCeilingUSD float64       `yaml:"cost_ceiling_usd" env:"ARIA_ROUTER_COST_CEILING_USD"`

	// AnthropicBaseURL / AnthropicAPIKey configure the second catalog
	// provider backend (SPEC_FULL.md "Model router client").
	AnthropicBaseURL string `yaml:"anthropic_base_url" env:"ARIA_ANTHROPIC_BASE_URL"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key" env:"ARIA_ANTHROPIC_API_KEY"`

	// DailyTokenBudget is the §4.5 model routing policy's daily cap; once
	// exceeded, paid-tier calls fail with BudgetExceeded until the window
	// resets (UTC midnight).
	DailyTokenBudget int `yaml:"daily_token_budget" env:"ARIA_DAILY_TOKEN_BUDGET"`
}

// RegistryConfig configures the §4.1 skill registry.
type RegistryConfig struct {
	// DefaultMaxPerMinute is used for any skill whose descriptor omits
	// max_per_minute. §9 open question: burst_capacity == max_per_minute.
	DefaultMaxPerMinute int `yaml:"default_max_per_minute" env:"ARIA_REGISTRY_DEFAULT_MAX_PER_MINUTE"`
	FailureThreshold    int `yaml:"failure_threshold" env:"ARIA_REGISTRY_FAILURE_THRESHOLD"`
}

// SessionConfig configures the §4.4 session manager.
type SessionConfig struct {
	CheckpointEveryMessages int           `yaml:"checkpoint_every_messages" env:"ARIA_SESSION_CHECKPOINT_EVERY"`
	ReconcileWindow         time.Duration `yaml:"reconcile_window" env:"ARIA_SESSION_RECONCILE_WINDOW"`
	PruneMaxAgeMinutes      int           `yaml:"prune_max_age_minutes" env:"ARIA_SESSION_PRUNE_MAX_AGE_MINUTES"`
	// MainSessionID identifies the current process's protected main
	// session (§8 scenario 2: ARIA_SESSION_ID).
	MainSessionID string `yaml:"main_session_id" env:"ARIA_SESSION_ID"`
}

// CognitionConfig configures the §4.5 cognition pipeline.
type CognitionConfig struct {
	WorkingMemoryTokenBudget int     `yaml:"working_memory_token_budget" env:"ARIA_MEMORY_TOKEN_BUDGET"`
	CharsPerToken            int     `yaml:"chars_per_token" env:"ARIA_CHARS_PER_TOKEN"`
	CompressionTriggerCount  int     `yaml:"compression_trigger_count" env:"ARIA_COMPRESSION_TRIGGER_COUNT"`
	RawTierSize              int     `yaml:"raw_tier_size" env:"ARIA_RAW_TIER_SIZE"`
	RecentTierSize           int     `yaml:"recent_tier_size" env:"ARIA_RECENT_TIER_SIZE"`
	RecentCompressionRatio   float64 `yaml:"recent_compression_ratio" env:"ARIA_RECENT_COMPRESSION_RATIO"`
	ArchiveCompressionRatio  float64 `yaml:"archive_compression_ratio" env:"ARIA_ARCHIVE_COMPRESSION_RATIO"`
	SentimentLengthThreshold int     `yaml:"sentiment_length_threshold" env:"ARIA_SENTIMENT_LENGTH_THRESHOLD"`
	MaxInFlightPipelines     int     `yaml:"max_in_flight_pipelines" env:"ARIA_MAX_IN_FLIGHT_PIPELINES"`
	PatternWindowDays        int     `yaml:"pattern_window_days" env:"ARIA_PATTERN_WINDOW_DAYS"`
}

// SchedulerConfig configures the §4.3 heartbeat scheduler.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" env:"ARIA_SCHEDULER_TICK_INTERVAL"`
	HardTimeout  time.Duration `yaml:"hard_timeout" env:"ARIA_SCHEDULER_HARD_TIMEOUT"`
	JobConcurrency map[string]int `yaml:"job_concurrency"`
}

// DeliveryConfig configures the "announce" external channel.
type DeliveryConfig struct {
	NATSURL      string `yaml:"nats_url" env:"ARIA_NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"ARIA_NATS_SUBJECT_PREFIX"`
}

// AuthConfig configures the §session-auth-handoff JWT signing.
type AuthConfig struct {
	JWTSigningKey string        `yaml:"jwt_signing_key" env:"ARIA_JWT_SIGNING_KEY"`
	JWTTTL        time.Duration `yaml:"jwt_ttl" env:"ARIA_JWT_TTL"`
}

// ObservabilityConfig configures Prometheus + OpenTelemetry wiring.
type ObservabilityConfig struct {
	MetricsAddr    string `yaml:"metrics_addr" env:"ARIA_METRICS_ADDR"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"ARIA_OTLP_ENDPOINT"`
	ServiceName    string `yaml:"service_name" env:"ARIA_SERVICE_NAME"`
	TracingEnabled bool   `yaml:"tracing_enabled" env:"ARIA_TRACING_ENABLED"`
}

// Default returns a Config with every documented default applied (§2's
// budget numbers and §4's per-component defaults), before file load and
// environment overrides.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:          "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Router: RouterConfig{
			Timeout:          60 * time.Second,
			DailyTokenBudget: 0, // 0 = unbounded
		},
		Registry: RegistryConfig{
			DefaultMaxPerMinute: 60,
			FailureThreshold:    5,
		},
		Session: SessionConfig{
			CheckpointEveryMessages: 5,
			ReconcileWindow:         time.Minute,
			PruneMaxAgeMinutes:      24 * 60,
		},
		Cognition: CognitionConfig{
			WorkingMemoryTokenBudget: 2000,
			CharsPerToken:            4,
			CompressionTriggerCount:  100,
			RawTierSize:              20,
			RecentTierSize:           100,
			RecentCompressionRatio:   0.3,
			ArchiveCompressionRatio:  0.1,
			SentimentLengthThreshold: 280,
			MaxInFlightPipelines:     16,
			PatternWindowDays:        30,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 15 * time.Second,
			HardTimeout:  120 * time.Second,
		},
		Delivery: DeliveryConfig{
			SubjectPrefix: "aria.jobs",
		},
		Auth: AuthConfig{
			JWTTTL: 15 * time.Minute,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			ServiceName: "aria-core",
		},
	}
}
