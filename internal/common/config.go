package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Redis        RedisConfig        `toml:"redis"`
	Blob         BlobConfig         `toml:"blob"`
	Queue        QueueConfig        `toml:"queue"`
	Worker       WorkerConfig       `toml:"worker"`
	Crawler      CrawlerConfig      `toml:"crawler"`
	Images       ImageConfig        `toml:"images"`
	Cache        CacheConfig        `toml:"cache"`
	Revalidation RevalidationConfig `toml:"revalidation"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Signing      SigningConfig      `toml:"signing"`
	Logging      LoggingConfig      `toml:"logging"`
}

type ServerConfig struct {
	Port            int    `toml:"port"`
	Host            string `toml:"host"`
	ShutdownTimeout string `toml:"shutdown_timeout"` // e.g. "30s" - grace window for in-flight responses
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL          string `toml:"url" validate:"required"` // DB_URL
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig holds the cache entry store settings
type RedisConfig struct {
	URL string `toml:"url"` // e.g. redis://localhost:6379/0
}

// BlobConfig holds the S3-compatible object store settings for image blobs
type BlobConfig struct {
	Endpoint  string `toml:"endpoint"`   // BLOB_ENDPOINT
	Bucket    string `toml:"bucket"`     // BLOB_BUCKET
	AccessKey string `toml:"access_key"` // BLOB_ACCESS_KEY
	SecretKey string `toml:"secret_key"` // BLOB_SECRET_KEY
	PublicURL string `toml:"public_url"` // Base URL served to clients, e.g. https://cdn.example.com
	Region    string `toml:"region"`
}

type QueueConfig struct {
	LeaseTTL     string `toml:"lease_ttl"`     // JOB_LEASE_TTL_MS - lease duration before a running job is reclaimable
	PollInterval string `toml:"poll_interval"` // JOB_POLL_INTERVAL_MS - worker sleep when the queue is empty
	MaxAttempts  int    `toml:"max_attempts"`  // JOB_MAX_ATTEMPTS
	SweepSpec    string `toml:"sweep_spec"`    // Cron spec for the expired-lease sweeper
}

type WorkerConfig struct {
	PoolSize int    `toml:"pool_size"` // WORKER_POOL_SIZE - number of concurrent scraper workers
	Secret   string `toml:"secret"`    // WORKER_SECRET - shared signing key for the job intake
	Host     string `toml:"host"`      // WORKER_HOST - base URL of the scraper intake, e.g. http://worker:8081
	Port     int    `toml:"port"`      // Intake listen port on the work process
}

// CrawlerConfig contains page rendering and extraction settings
type CrawlerConfig struct {
	SiteRoot          string        `toml:"site_root"` // Root URL of the catalog being crawled
	UserAgent         string        `toml:"user_agent"`
	RenderTimeout     time.Duration `toml:"render_timeout"`
	RenderWaitTime    time.Duration `toml:"render_wait_time"`    // Settle time after navigation for JS-heavy pages
	MaxListingPages   int           `toml:"max_listing_pages"`   // Pagination cap while walking a category
	RequestsPerMinute int           `toml:"requests_per_minute"` // Per-host scrape budget
	RequestsPerHour   int           `toml:"requests_per_hour"`
	MaxTreeDepth      int           `toml:"max_tree_depth"` // Navigation parent chain bound
}

type ImageConfig struct {
	MaxBytes     int64  `toml:"max_bytes"`     // IMAGE_MAX_BYTES
	FetchTimeout string `toml:"fetch_timeout"` // IMAGE_FETCH_TIMEOUT_MS
	Concurrency  int    `toml:"concurrency"`   // Bounded batch width
}

// CacheConfig holds per-resource fresh TTLs in seconds. The serve-stale
// window equals the fresh window, so hard expiry lands at 2x the TTL.
type CacheConfig struct {
	NavigationTTL    int `toml:"navigation_ttl"`     // CACHE_TTL_NAVIGATION
	CategoriesTTL    int `toml:"categories_ttl"`     // CACHE_TTL_CATEGORIES
	ProductsTTL      int `toml:"products_ttl"`       // CACHE_TTL_PRODUCTS
	ProductDetailTTL int `toml:"product_detail_ttl"` // CACHE_TTL_PRODUCT_DETAIL
}

type RevalidationConfig struct {
	Enabled   bool `toml:"enabled"`    // REVALIDATION_ENABLED
	PerMinute int  `toml:"per_minute"` // REVALIDATION_RATE_LIMIT_PER_MINUTE
	PerHour   int  `toml:"per_hour"`   // REVALIDATION_RATE_LIMIT_PER_HOUR
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"` // RATE_LIMIT_REQUESTS_PER_MINUTE - API surface
}

type SigningConfig struct {
	SkewWindow string `toml:"skew_window"` // SIGNATURE_SKEW_MS - allowed clock drift on verification
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines
}

// NewDefaultConfig creates a configuration with default values.
// Technical defaults mirror the documented operational defaults; only
// deployment-facing settings belong in datashelf.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            8080,
			Host:            "localhost",
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Blob: BlobConfig{
			Region: "auto",
		},
		Queue: QueueConfig{
			LeaseTTL:     "10m",
			PollInterval: "100ms",
			MaxAttempts:  3,
			SweepSpec:    "* * * * *", // every minute
		},
		Worker: WorkerConfig{
			PoolSize: 4,
			Port:     8081,
		},
		Crawler: CrawlerConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RenderTimeout:     30 * time.Second,
			RenderWaitTime:    2 * time.Second,
			MaxListingPages:   20,
			RequestsPerMinute: 30,
			RequestsPerHour:   600,
			MaxTreeDepth:      6,
		},
		Images: ImageConfig{
			MaxBytes:     10 * 1024 * 1024, // 10 MiB
			FetchTimeout: "15s",
			Concurrency:  4,
		},
		Cache: CacheConfig{
			NavigationTTL:    3600,
			CategoriesTTL:    1800,
			ProductsTTL:      300,
			ProductDetailTTL: 120,
		},
		Revalidation: RevalidationConfig{
			Enabled:   true,
			PerMinute: 10,
			PerHour:   100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
		},
		Signing: SigningConfig{
			SkewWindow: "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path skips the file layer.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// Validate checks that the configuration is complete enough to start a
// serve or work process. The version command skips this.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The keys match the deployment contract: DB_URL, BLOB_*, WORKER_*,
// CACHE_TTL_*, REVALIDATION_*, JOB_*, IMAGE_*, SIGNATURE_SKEW_MS.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DATASHELF_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("DATASHELF_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DATASHELF_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}

	if endpoint := os.Getenv("BLOB_ENDPOINT"); endpoint != "" {
		config.Blob.Endpoint = endpoint
	}
	if bucket := os.Getenv("BLOB_BUCKET"); bucket != "" {
		config.Blob.Bucket = bucket
	}
	if access := os.Getenv("BLOB_ACCESS_KEY"); access != "" {
		config.Blob.AccessKey = access
	}
	if secret := os.Getenv("BLOB_SECRET_KEY"); secret != "" {
		config.Blob.SecretKey = secret
	}
	if publicURL := os.Getenv("BLOB_PUBLIC_URL"); publicURL != "" {
		config.Blob.PublicURL = publicURL
	}

	if secret := os.Getenv("WORKER_SECRET"); secret != "" {
		config.Worker.Secret = secret
	}
	if host := os.Getenv("WORKER_HOST"); host != "" {
		config.Worker.Host = host
	}
	if poolSize := os.Getenv("WORKER_POOL_SIZE"); poolSize != "" {
		if n, err := strconv.Atoi(poolSize); err == nil && n > 0 {
			config.Worker.PoolSize = n
		}
	}

	if leaseTTL := os.Getenv("JOB_LEASE_TTL_MS"); leaseTTL != "" {
		if ms, err := strconv.Atoi(leaseTTL); err == nil && ms > 0 {
			config.Queue.LeaseTTL = (time.Duration(ms) * time.Millisecond).String()
		}
	}
	if pollInterval := os.Getenv("JOB_POLL_INTERVAL_MS"); pollInterval != "" {
		if ms, err := strconv.Atoi(pollInterval); err == nil && ms > 0 {
			config.Queue.PollInterval = (time.Duration(ms) * time.Millisecond).String()
		}
	}
	if maxAttempts := os.Getenv("JOB_MAX_ATTEMPTS"); maxAttempts != "" {
		if n, err := strconv.Atoi(maxAttempts); err == nil && n > 0 {
			config.Queue.MaxAttempts = n
		}
	}

	if maxBytes := os.Getenv("IMAGE_MAX_BYTES"); maxBytes != "" {
		if n, err := strconv.ParseInt(maxBytes, 10, 64); err == nil && n > 0 {
			config.Images.MaxBytes = n
		}
	}
	if fetchTimeout := os.Getenv("IMAGE_FETCH_TIMEOUT_MS"); fetchTimeout != "" {
		if ms, err := strconv.Atoi(fetchTimeout); err == nil && ms > 0 {
			config.Images.FetchTimeout = (time.Duration(ms) * time.Millisecond).String()
		}
	}

	if ttl := os.Getenv("CACHE_TTL_NAVIGATION"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			config.Cache.NavigationTTL = n
		}
	}
	if ttl := os.Getenv("CACHE_TTL_CATEGORIES"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			config.Cache.CategoriesTTL = n
		}
	}
	if ttl := os.Getenv("CACHE_TTL_PRODUCTS"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			config.Cache.ProductsTTL = n
		}
	}
	if ttl := os.Getenv("CACHE_TTL_PRODUCT_DETAIL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			config.Cache.ProductDetailTTL = n
		}
	}

	if enabled := os.Getenv("REVALIDATION_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Revalidation.Enabled = b
		}
	}
	if perMinute := os.Getenv("REVALIDATION_RATE_LIMIT_PER_MINUTE"); perMinute != "" {
		if n, err := strconv.Atoi(perMinute); err == nil && n > 0 {
			config.Revalidation.PerMinute = n
		}
	}
	if perHour := os.Getenv("REVALIDATION_RATE_LIMIT_PER_HOUR"); perHour != "" {
		if n, err := strconv.Atoi(perHour); err == nil && n > 0 {
			config.Revalidation.PerHour = n
		}
	}

	if perMinute := os.Getenv("RATE_LIMIT_REQUESTS_PER_MINUTE"); perMinute != "" {
		if n, err := strconv.Atoi(perMinute); err == nil && n > 0 {
			config.RateLimit.RequestsPerMinute = n
		}
	}

	if skew := os.Getenv("SIGNATURE_SKEW_MS"); skew != "" {
		if ms, err := strconv.Atoi(skew); err == nil && ms > 0 {
			config.Signing.SkewWindow = (time.Duration(ms) * time.Millisecond).String()
		}
	}

	if siteRoot := os.Getenv("DATASHELF_SITE_ROOT"); siteRoot != "" {
		config.Crawler.SiteRoot = siteRoot
	}
	if level := os.Getenv("DATASHELF_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// LeaseTTL parses the queue lease duration, falling back to 10 minutes.
func (c *Config) LeaseTTL() time.Duration {
	return parseDurationOr(c.Queue.LeaseTTL, 10*time.Minute)
}

// PollInterval parses the worker poll interval, falling back to 100ms.
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Queue.PollInterval, 100*time.Millisecond)
}

// ImageFetchTimeout parses the image fetch timeout, falling back to 15s.
func (c *Config) ImageFetchTimeout() time.Duration {
	return parseDurationOr(c.Images.FetchTimeout, 15*time.Second)
}

// SignatureSkew parses the verification skew window, falling back to 5 minutes.
func (c *Config) SignatureSkew() time.Duration {
	return parseDurationOr(c.Signing.SkewWindow, 5*time.Minute)
}

// ShutdownTimeout parses the HTTP drain grace window, falling back to 30s.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
