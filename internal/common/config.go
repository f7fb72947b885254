package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Fetcher     FetcherConfig   `toml:"fetcher"`
	Discovery   DiscoveryConfig `toml:"discovery"`
	Monitor     MonitorConfig   `toml:"monitor"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Sites       SitesConfig     `toml:"sites"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Snapshots   SnapshotsConfig `toml:"snapshots"`
	Email       EmailConfig     `toml:"email"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
	Dir        string   `toml:"dir"`         // log directory, empty = <exe dir>/logs
}

// QueueConfig controls the durable scrape queue
type QueueConfig struct {
	MaxRetries        int    `toml:"max_retries"`        // Failures tolerated before an item is terminal
	RetryBackoff      string `toml:"retry_backoff"`      // Base backoff before a retried item is claimable, doubled per retry
	VisibilityTimeout string `toml:"visibility_timeout"` // Processing items older than this are released
	Retention         string `toml:"retention"`          // Terminal items older than this are purged
}

// ScraperConfig holds RunBatch defaults
type ScraperConfig struct {
	MaxConcurrent          int     `toml:"max_concurrent"`
	Delay                  string  `toml:"delay"`   // pause between item starts
	Timeout                string  `toml:"timeout"` // per item
	MaxItems               int     `toml:"max_items"`
	DomainRateLimit        float64 `toml:"domain_rate_limit"` // requests per second per host, 0 disables
	DomainBurst            int     `toml:"domain_burst"`
	LowConfidenceThreshold float64 `toml:"low_confidence_threshold"` // below this a job needs review
	LLMThreshold           float64 `toml:"llm_threshold"`            // below this the LLM extractor is consulted
	SnapshotHTML           bool    `toml:"snapshot_html"`
	Screenshot             bool    `toml:"screenshot"`
	PDF                    bool    `toml:"pdf"`
	EnableMonitoring       bool    `toml:"enable_monitoring"` // new jobs start a monitor
}

// FetcherConfig selects and configures the content fetcher
type FetcherConfig struct {
	Mode            string            `toml:"mode"` // "http" or "browser"
	UserAgent       string            `toml:"user_agent"`
	Timeout         string            `toml:"timeout"`
	MaxBodySize     int               `toml:"max_body_size"`
	BrowserPoolSize int               `toml:"browser_pool_size"`
	Headless        bool              `toml:"headless"`
	RenderWait      string            `toml:"render_wait"`
	AuthHeaders     map[string]string `toml:"auth_headers"` // applied when a fetch asks to authenticate
}

// DiscoveryConfig holds discovery defaults
type DiscoveryConfig struct {
	MaxURLs              int    `toml:"max_urls"`
	MaxDepth             int    `toml:"max_depth"`
	DelayBetweenRequests int    `toml:"delay_between_requests_ms"`
	RespectRobotsTxt     bool   `toml:"respect_robots_txt"`
	SearchBackend        string `toml:"search_backend"` // "none" or "serpapi"
	SearchEndpoint       string `toml:"search_endpoint"`
	SearchAPIKey         string `toml:"search_api_key"`
	EnqueuePriority      int    `toml:"enqueue_priority"`
}

// MonitorConfig controls the job monitor and sweep
type MonitorConfig struct {
	DefaultIntervalHours int `toml:"default_interval_hours"`
	BatchSize            int `toml:"batch_size"`
	Parallelism          int `toml:"parallelism"`
	MaxJobsPerSweep      int `toml:"max_jobs_per_sweep"`
	WakeLimit            int `toml:"wake_limit"` // monitors claimed per RunDue tick
}

// SchedulerConfig holds cron expressions for background work. Empty disables a task.
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	Sweep         string `toml:"sweep"`
	MonitorWake   string `toml:"monitor_wake"`
	QueueDrain    string `toml:"queue_drain"`
	QueuePurge    string `toml:"queue_purge"`
	SiteDiscovery string `toml:"site_discovery"`
	EmailIntake   string `toml:"email_intake"`
}

// SitesConfig points at site definition files
type SitesConfig struct {
	Dir string `toml:"dir"` // Directory containing site files (*.yaml, *.yml, *.toml)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the extraction fallback provider
type LLMConfig struct {
	Enabled         bool        `toml:"enabled"`
	DefaultProvider LLMProvider `toml:"default_provider"`
	MaxRetries      int         `toml:"max_retries"`
	MaxInputChars   int         `toml:"max_input_chars"`
}

// SnapshotsConfig configures S3-compatible snapshot storage (AWS S3 or Cloudflare R2)
type SnapshotsConfig struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"` // R2: https://<account>.r2.cloudflarestorage.com
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Prefix          string `toml:"prefix"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// EmailConfig configures the job-alert mailbox
type EmailConfig struct {
	Enabled    bool   `toml:"enabled"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Mailbox    string `toml:"mailbox"`
	UseTLS     bool   `toml:"use_tls"`
	MaxPerRun  int    `toml:"max_per_run"`
	MarkSeen   bool   `toml:"mark_seen"`
	LinkFilter string `toml:"link_filter"` // regular expression a link must match to be enqueued
	Priority   int    `toml:"priority"`
}

// WebSocketConfig contains configuration for event streaming
type WebSocketConfig struct {
	AllowedEvents []string `toml:"allowed_events"` // empty allows all
	// Throttle intervals for high-frequency events, event type -> duration string
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Queue: QueueConfig{
			MaxRetries:        3,
			RetryBackoff:      "30s",
			VisibilityTimeout: "10m",
			Retention:         "168h", // 7 days
		},
		Scraper: ScraperConfig{
			MaxConcurrent:          5,
			Delay:                  "250ms",
			Timeout:                "30s",
			MaxItems:               0,
			DomainRateLimit:        1,
			DomainBurst:            2,
			LowConfidenceThreshold: 0.5,
			LLMThreshold:           0.6,
			SnapshotHTML:           true,
		},
		Fetcher: FetcherConfig{
			Mode:            "http",
			UserAgent:       "Mozilla/5.0 (compatible; ScoutBot/1.0; +https://9to5scout.dev/bot)",
			Timeout:         "30s",
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			BrowserPoolSize: 2,
			Headless:        true,
			RenderWait:      "2s",
		},
		Discovery: DiscoveryConfig{
			MaxURLs:              500,
			MaxDepth:             2,
			DelayBetweenRequests: 500,
			RespectRobotsTxt:     true,
			SearchBackend:        "none",
			SearchEndpoint:       "https://serpapi.com/search.json",
		},
		Monitor: MonitorConfig{
			DefaultIntervalHours: 24,
			BatchSize:            10,
			Parallelism:          5,
			MaxJobsPerSweep:      500,
			WakeLimit:            50,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			Sweep:         "0 6 * * *",    // daily at 06:00
			MonitorWake:   "*/5 * * * *",  // every 5 minutes
			QueueDrain:    "*/2 * * * *",  // every 2 minutes
			QueuePurge:    "30 3 * * *",   // daily at 03:30
			SiteDiscovery: "0 */12 * * *", // every 12 hours
			EmailIntake:   "*/15 * * * *",
		},
		Sites: SitesConfig{
			Dir: "./sites",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "2m",
			Temperature: 0.1,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   4096,
			Timeout:     "2m",
			Temperature: 0.1,
		},
		LLM: LLMConfig{
			Enabled:         false,
			DefaultProvider: LLMProviderGemini,
			MaxRetries:      3,
			MaxInputChars:   60000,
		},
		Snapshots: SnapshotsConfig{
			Region: "auto",
			Prefix: "snapshots",
		},
		Email: EmailConfig{
			Port:      993,
			Mailbox:   "INBOX",
			UseTLS:    true,
			MaxPerRun: 50,
			MarkSeen:  true,
			Priority:  5,
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"run_progress": "500ms", // Max 2 progress updates per second per run
			},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies SCOUT_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCOUT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SCOUT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCOUT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if badgerPath := os.Getenv("SCOUT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("SCOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SCOUT_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitString(output, ",")
	}

	// Queue
	if maxRetries := os.Getenv("SCOUT_QUEUE_MAX_RETRIES"); maxRetries != "" {
		if v, err := strconv.Atoi(maxRetries); err == nil {
			config.Queue.MaxRetries = v
		}
	}
	if backoff := os.Getenv("SCOUT_QUEUE_RETRY_BACKOFF"); backoff != "" {
		config.Queue.RetryBackoff = backoff
	}

	// Scraper
	if maxConcurrent := os.Getenv("SCOUT_SCRAPER_MAX_CONCURRENT"); maxConcurrent != "" {
		if v, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Scraper.MaxConcurrent = v
		}
	}
	if delay := os.Getenv("SCOUT_SCRAPER_DELAY"); delay != "" {
		config.Scraper.Delay = delay
	}
	if timeout := os.Getenv("SCOUT_SCRAPER_TIMEOUT"); timeout != "" {
		config.Scraper.Timeout = timeout
	}

	// Fetcher
	if mode := os.Getenv("SCOUT_FETCHER_MODE"); mode != "" {
		config.Fetcher.Mode = mode
	}
	if userAgent := os.Getenv("SCOUT_FETCHER_USER_AGENT"); userAgent != "" {
		config.Fetcher.UserAgent = userAgent
	}

	// Discovery
	if backend := os.Getenv("SCOUT_DISCOVERY_SEARCH_BACKEND"); backend != "" {
		config.Discovery.SearchBackend = backend
	}
	if apiKey := os.Getenv("SCOUT_DISCOVERY_SEARCH_API_KEY"); apiKey != "" {
		config.Discovery.SearchAPIKey = apiKey
	}

	// Monitor
	if interval := os.Getenv("SCOUT_MONITOR_DEFAULT_INTERVAL_HOURS"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			config.Monitor.DefaultIntervalHours = v
		}
	}
	if enabled := os.Getenv("SCOUT_SCHEDULER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = b
		}
	}

	// Sites
	if dir := os.Getenv("SCOUT_SITES_DIR"); dir != "" {
		config.Sites.Dir = dir
	}

	// LLM (GEMINI_API_KEY / ANTHROPIC_API_KEY are accepted as fallbacks)
	if apiKey := os.Getenv("SCOUT_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SCOUT_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := os.Getenv("SCOUT_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("SCOUT_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if provider := os.Getenv("SCOUT_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if enabled := os.Getenv("SCOUT_LLM_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.LLM.Enabled = b
		}
	}

	// Snapshots
	if bucket := os.Getenv("SCOUT_SNAPSHOTS_BUCKET"); bucket != "" {
		config.Snapshots.Bucket = bucket
	}
	if endpoint := os.Getenv("SCOUT_SNAPSHOTS_ENDPOINT"); endpoint != "" {
		config.Snapshots.Endpoint = endpoint
	}
	if accessKey := os.Getenv("SCOUT_SNAPSHOTS_ACCESS_KEY_ID"); accessKey != "" {
		config.Snapshots.AccessKeyID = accessKey
	}
	if secret := os.Getenv("SCOUT_SNAPSHOTS_SECRET_ACCESS_KEY"); secret != "" {
		config.Snapshots.SecretAccessKey = secret
	}

	// Email
	if host := os.Getenv("SCOUT_EMAIL_HOST"); host != "" {
		config.Email.Host = host
	}
	if username := os.Getenv("SCOUT_EMAIL_USERNAME"); username != "" {
		config.Email.Username = username
	}
	if password := os.Getenv("SCOUT_EMAIL_PASSWORD"); password != "" {
		config.Email.Password = password
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks durations and cron expressions
func (c *Config) Validate() error {
	durations := map[string]string{
		"queue.retry_backoff":      c.Queue.RetryBackoff,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"queue.retention":          c.Queue.Retention,
		"scraper.delay":            c.Scraper.Delay,
		"scraper.timeout":          c.Scraper.Timeout,
		"fetcher.timeout":          c.Fetcher.Timeout,
		"fetcher.render_wait":      c.Fetcher.RenderWait,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	schedules := map[string]string{
		"scheduler.sweep":          c.Scheduler.Sweep,
		"scheduler.monitor_wake":   c.Scheduler.MonitorWake,
		"scheduler.queue_drain":    c.Scheduler.QueueDrain,
		"scheduler.queue_purge":    c.Scheduler.QueuePurge,
		"scheduler.site_discovery": c.Scheduler.SiteDiscovery,
		"scheduler.email_intake":   c.Scheduler.EmailIntake,
	}
	for name, value := range schedules {
		if value == "" {
			continue
		}
		if err := ValidateSchedule(value); err != nil {
			return fmt.Errorf("invalid schedule for %s: %w", name, err)
		}
	}

	switch c.Fetcher.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("invalid fetcher.mode %q: must be http or browser", c.Fetcher.Mode)
	}
	return nil
}

// ValidateSchedule validates a standard 5-field cron expression and rejects intervals under a minute
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	now := time.Now()
	next := sched.Next(now)
	if sched.Next(next).Sub(next) < time.Minute {
		return fmt.Errorf("schedule interval must be at least 1 minute")
	}
	return nil
}

// Duration parses a config duration string, returning fallback when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// splitString splits a string by separator and trims whitespace
func splitString(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
