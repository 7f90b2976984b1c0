package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kode4food/beckn/pkg/api"
)

type (
	// Config holds configuration settings for both protocol roles
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Protocol identity and envelope defaults
		Context api.ContextDefaults
		BPPID   string
		BPPURI  string

		// Orchestration
		PollInterval     time.Duration
		PhaseTimeout     time.Duration
		RequestTimeout   time.Duration
		MaxParallelFlows int
		Billing          api.Billing
		Fulfillment      api.Fulfillment

		Responder    ResponderConfig
		Store        StoreConfig
		Housekeeping HousekeepingConfig
		RateLimit    RateLimitConfig

		ShutdownTimeout time.Duration
	}

	// ResponderConfig controls the simulated provider platform
	ResponderConfig struct {
		SearchDelay     time.Duration
		SelectDelay     time.Duration
		ConfirmDelay    time.Duration
		CallbackTimeout time.Duration
		QuoteUnitPrice  string
		QuoteCurrency   string
		InventoryFile   string
	}

	// StoreConfig selects and configures the transaction state store
	StoreConfig struct {
		Backend  string
		Addr     string
		Password string
		DB       int
		Prefix   string
		TTL      time.Duration
	}

	// HousekeepingConfig controls expiry, archiving, and eviction
	HousekeepingConfig struct {
		BucketURL     string
		Retention     time.Duration
		AbandonAfter  time.Duration
		SweepInterval time.Duration
	}

	// RateLimitConfig bounds intake per initiator
	RateLimitConfig struct {
		RPS   float64
		Burst int
	}
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const (
	DefaultAPIPort = 8000
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultBAPID  = "deg-agent-bap"
	DefaultBAPURI = "http://localhost:8000/beckn"
	DefaultBPPID  = "mock-bpp-london"
	DefaultBPPURI = "http://localhost:8000/mock-bpp"

	DefaultPollInterval     = 500 * time.Millisecond
	DefaultPhaseTimeout     = 10 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
	DefaultMaxParallelFlows = 4

	DefaultSearchDelay     = 2 * time.Second
	DefaultSelectDelay     = time.Second
	DefaultConfirmDelay    = time.Second
	DefaultCallbackTimeout = 10 * time.Second
	DefaultQuoteUnitPrice  = "150.0"
	DefaultQuoteCurrency   = "GBP"

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "beckn"
	DefaultStoreTTL      = 24 * time.Hour

	DefaultRetention     = time.Hour
	DefaultAbandonAfter  = 5 * time.Minute
	DefaultSweepInterval = time.Minute

	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 40

	DefaultShutdownTimeout = 10 * time.Second

	MaxParallelFlows = 1024
	MaxRateBurst     = 100_000
	MaxRedisDB       = 15
)

var (
	ErrInvalidAPIPort      = errors.New("invalid API port")
	ErrInvalidPollInterval = errors.New("poll interval must be positive")
	ErrInvalidPhaseTimeout = errors.New(
		"phase timeout must be >= poll interval",
	)
	ErrInvalidRequestTimeout = errors.New("request timeout must be positive")
	ErrInvalidDelay          = errors.New("responder delays cannot be negative")
	ErrInvalidUnitPrice      = errors.New("quote unit price must be a decimal")
	ErrInvalidStoreBackend   = errors.New("invalid store backend")
	ErrInvalidParallelFlows  = errors.New("max parallel flows must be positive")
	ErrMissingIdentity       = errors.New("bap and bpp identity must be set")
	ErrInvalidSweep          = errors.New(
		"housekeeping durations must be positive",
	)
	ErrInvalidRateLimit = errors.New("rate limit must be positive")
)

// NewDefaultConfig creates a configuration with the defaults of a single
// process hosting both the initiator and the simulated responder
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Context: api.ContextDefaults{
			Domain:      api.DefaultDomain,
			Country:     api.DefaultCountry,
			City:        api.DefaultCity,
			CoreVersion: api.DefaultCoreVersion,
			TTL:         api.DefaultTTL,
			BAPID:       DefaultBAPID,
			BAPURI:      DefaultBAPURI,
		},
		BPPID:            DefaultBPPID,
		BPPURI:           DefaultBPPURI,
		PollInterval:     DefaultPollInterval,
		PhaseTimeout:     DefaultPhaseTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		MaxParallelFlows: DefaultMaxParallelFlows,
		Billing: api.Billing{
			Name:    "DEG Agent",
			Address: "London",
		},
		Fulfillment: api.Fulfillment{
			ID:   "ful_1",
			Type: "Delivery",
		},
		Responder: ResponderConfig{
			SearchDelay:     DefaultSearchDelay,
			SelectDelay:     DefaultSelectDelay,
			ConfirmDelay:    DefaultConfirmDelay,
			CallbackTimeout: DefaultCallbackTimeout,
			QuoteUnitPrice:  DefaultQuoteUnitPrice,
			QuoteCurrency:   DefaultQuoteCurrency,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Addr:    DefaultRedisEndpoint,
			Prefix:  DefaultRedisPrefix,
			TTL:     DefaultStoreTTL,
		},
		Housekeeping: HousekeepingConfig{
			Retention:     DefaultRetention,
			AbandonAfter:  DefaultAbandonAfter,
			SweepInterval: DefaultSweepInterval,
		},
		RateLimit: RateLimitConfig{
			RPS:   DefaultRateLimitRPS,
			Burst: DefaultRateLimitBurst,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("BAP_ID", &c.Context.BAPID)
	loadEnvString("BAP_URI", &c.Context.BAPURI)
	loadEnvString("BPP_ID", &c.BPPID)
	loadEnvString("BPP_URI", &c.BPPURI)
	loadEnvString("BECKN_DOMAIN", &c.Context.Domain)
	loadEnvString("BECKN_COUNTRY", &c.Context.Country)
	loadEnvString("BECKN_CITY", &c.Context.City)
	loadEnvString("BECKN_CORE_VERSION", &c.Context.CoreVersion)
	loadEnvString("BECKN_TTL", &c.Context.TTL)
	loadEnvString("BILLING_NAME", &c.Billing.Name)
	loadEnvString("BILLING_ADDRESS", &c.Billing.Address)
	loadEnvString("FULFILLMENT_ID", &c.Fulfillment.ID)
	loadEnvString("FULFILLMENT_TYPE", &c.Fulfillment.Type)
	loadEnvString("QUOTE_UNIT_PRICE", &c.Responder.QuoteUnitPrice)
	loadEnvString("QUOTE_CURRENCY", &c.Responder.QuoteCurrency)
	loadEnvString("INVENTORY_FILE", &c.Responder.InventoryFile)
	loadEnvString("STORE_BACKEND", &c.Store.Backend)
	loadEnvString("STORE_REDIS_ADDR", &c.Store.Addr)
	loadEnvString("STORE_REDIS_PASSWORD", &c.Store.Password)
	loadEnvString("STORE_REDIS_PREFIX", &c.Store.Prefix)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.Housekeeping.BucketURL)

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_PARALLEL_FLOWS", &c.MaxParallelFlows, 0, MaxParallelFlows,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STORE_REDIS_DB", &c.Store.DB, -1, MaxRedisDB,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RATE_LIMIT_BURST", &c.RateLimit.Burst, 0, MaxRateBurst,
	); err != nil {
		return err
	}
	if err := loadEnvFloat("RATE_LIMIT_RPS", &c.RateLimit.RPS); err != nil {
		return err
	}

	for key, dst := range map[string]*time.Duration{
		"POLL_INTERVAL":    &c.PollInterval,
		"PHASE_TIMEOUT":    &c.PhaseTimeout,
		"REQUEST_TIMEOUT":  &c.RequestTimeout,
		"SEARCH_DELAY":     &c.Responder.SearchDelay,
		"SELECT_DELAY":     &c.Responder.SelectDelay,
		"CONFIRM_DELAY":    &c.Responder.ConfirmDelay,
		"CALLBACK_TIMEOUT": &c.Responder.CallbackTimeout,
		"STORE_TTL":        &c.Store.TTL,
		"RECORD_RETENTION": &c.Housekeeping.Retention,
		"ABANDON_AFTER":    &c.Housekeeping.AbandonAfter,
		"SWEEP_INTERVAL":   &c.Housekeeping.SweepInterval,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
	} {
		if err := loadEnvDuration(key, dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.Context.BAPID == "" || c.Context.BAPURI == "" ||
		c.BPPID == "" || c.BPPURI == "" {
		return ErrMissingIdentity
	}

	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	if c.PhaseTimeout < c.PollInterval {
		return ErrInvalidPhaseTimeout
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	if c.MaxParallelFlows <= 0 {
		return ErrInvalidParallelFlows
	}

	r := c.Responder
	if r.SearchDelay < 0 || r.SelectDelay < 0 || r.ConfirmDelay < 0 {
		return ErrInvalidDelay
	}

	if _, err := decimal.NewFromString(r.QuoteUnitPrice); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUnitPrice, r.QuoteUnitPrice)
	}

	if c.Store.Backend != StoreMemory && c.Store.Backend != StoreRedis {
		return fmt.Errorf("%w: %s", ErrInvalidStoreBackend, c.Store.Backend)
	}

	h := c.Housekeeping
	if h.Retention <= 0 || h.AbandonAfter <= 0 || h.SweepInterval <= 0 {
		return ErrInvalidSweep
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return ErrInvalidRateLimit
	}

	return nil
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if the
// value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

// loadEnvDuration accepts Go duration strings ("500ms", "2s") and treats a
// bare integer as milliseconds
func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return fmt.Errorf("invalid %s: %q", key, s)
		}
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = d
	return nil
}
