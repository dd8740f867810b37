package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	YtDlp       YtDlpConfig     `toml:"ytdlp"`
	Placement   PlacementConfig `toml:"placement"`
	Mirror      MirrorConfig    `toml:"mirror"`
	Archive     ArchiveConfig   `toml:"archive"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Metrics     MetricsConfig   `toml:"metrics"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Type           string         `toml:"type"`            // "badger" (default) or "postgres"
	StrategiesFile string         `toml:"strategies_file"` // Optional YAML file seeding option strategies
	Badger         BadgerConfig   `toml:"badger"`
	Postgres       PostgresConfig `toml:"postgres"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// PostgresConfig represents PostgreSQL connection configuration
type PostgresConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	SSLMode      string `toml:"ssl_mode"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DSN builds a lib/pq connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// SchedulerConfig controls the download scheduler loop
type SchedulerConfig struct {
	PollInterval           string `toml:"poll_interval"`            // e.g. "5s" - delay between poll cycles
	MaxConcurrentDownloads int    `toml:"max_concurrent_downloads"` // Download slots (metadata fetches are not bounded)
	ErrorBackoff           string `toml:"error_backoff"`            // Delay after an infrastructure error in the loop
}

// YtDlpConfig configures the external yt-dlp tool
type YtDlpConfig struct {
	Binary          string `toml:"binary"`           // Executable name or path
	WorkDir         string `toml:"work_dir"`         // Staging directory for in-progress downloads
	CookiesFile     string `toml:"cookies_file"`     // Netscape cookies file passed when present
	OutputTemplate  string `toml:"output_template"`  // yt-dlp -o template
	VersionFile     string `toml:"version_file"`     // Optional file holding the installed version
	MetadataTimeout string `toml:"metadata_timeout"` // Timeout for a single metadata fetch
}

// PlacementConfig controls where finished files end up
type PlacementConfig struct {
	Root       string `toml:"root"`        // Parent of all output directories
	DefaultDir string `toml:"default_dir"` // Directory (under root) for untagged jobs
	MarkerDir  string `toml:"marker_dir"`  // Directory for zero-byte .done markers
}

// MirrorConfig configures the optional S3 mirror of placed files
type MirrorConfig struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"` // Custom endpoint (MinIO etc.)
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Prefix          string `toml:"prefix"`
}

// ArchiveConfig controls the retention sweep of finished jobs
type ArchiveConfig struct {
	Enabled   bool   `toml:"enabled"`
	Schedule  string `toml:"schedule"`  // Cron schedule (robfig/cron, descriptors allowed)
	Retention string `toml:"retention"` // Finished jobs older than this are archived
}

// WebSocketConfig contains configuration for the push channel
type WebSocketConfig struct {
	SnapshotInterval string `toml:"snapshot_interval"` // Period of full job snapshots while clients are connected
	RefreshThrottle  string `toml:"refresh_throttle"`  // Minimum gap between event-driven refreshes
	// Whitelist of event types that trigger refreshes. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
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
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
			Postgres: PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				Username:     "tubeq",
				Database:     "tubeq",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		Scheduler: SchedulerConfig{
			PollInterval:           "5s",
			MaxConcurrentDownloads: 5,
			ErrorBackoff:           "5s",
		},
		YtDlp: YtDlpConfig{
			Binary:          "yt-dlp",
			WorkDir:         "/tmp/tubeq",
			CookiesFile:     "/tmp/cookies/cookies.txt",
			OutputTemplate:  "%(upload_date)s_%(title)s.%(ext)s",
			VersionFile:     "/etc/yt-dlp-version.txt",
			MetadataTimeout: "2m",
		},
		Placement: PlacementConfig{
			Root:       "/tmp",
			DefaultDir: "youtube",
			MarkerDir:  "/tmp/finished",
		},
		Mirror: MirrorConfig{
			Enabled: false,
			Region:  "us-east-1",
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Schedule:  "@every 1h",
			Retention: "120h", // 5 days
		},
		WebSocket: WebSocketConfig{
			SnapshotInterval: "200ms",
			RefreshThrottle:  "100ms",
			AllowedEvents:    []string{},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tubeq",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env -> CLI
// Later files override earlier files.
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

		// Unmarshal merges with existing values, later values override
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFiles loads .env (without overriding the real environment) and
// .env.local (overriding) when present
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// applyEnvOverrides applies TUBEQ_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TUBEQ_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TUBEQ_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TUBEQ_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("TUBEQ_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("TUBEQ_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if strategiesFile := os.Getenv("TUBEQ_STRATEGIES_FILE"); strategiesFile != "" {
		config.Storage.StrategiesFile = strategiesFile
	}
	if host := os.Getenv("TUBEQ_POSTGRES_HOST"); host != "" {
		config.Storage.Postgres.Host = host
	}
	if port := os.Getenv("TUBEQ_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Storage.Postgres.Port = p
		}
	}
	if user := os.Getenv("TUBEQ_POSTGRES_USERNAME"); user != "" {
		config.Storage.Postgres.Username = user
	}
	if password := os.Getenv("TUBEQ_POSTGRES_PASSWORD"); password != "" {
		config.Storage.Postgres.Password = password
	}
	if database := os.Getenv("TUBEQ_POSTGRES_DATABASE"); database != "" {
		config.Storage.Postgres.Database = database
	}

	// Scheduler configuration
	if pollInterval := os.Getenv("TUBEQ_SCHEDULER_POLL_INTERVAL"); pollInterval != "" {
		config.Scheduler.PollInterval = pollInterval
	}
	if maxDownloads := os.Getenv("TUBEQ_SCHEDULER_MAX_CONCURRENT_DOWNLOADS"); maxDownloads != "" {
		if n, err := strconv.Atoi(maxDownloads); err == nil {
			config.Scheduler.MaxConcurrentDownloads = n
		}
	}

	// yt-dlp configuration
	if binary := os.Getenv("TUBEQ_YTDLP_BINARY"); binary != "" {
		config.YtDlp.Binary = binary
	}
	if workDir := os.Getenv("TUBEQ_YTDLP_WORK_DIR"); workDir != "" {
		config.YtDlp.WorkDir = workDir
	}
	if cookies := os.Getenv("TUBEQ_YTDLP_COOKIES_FILE"); cookies != "" {
		config.YtDlp.CookiesFile = cookies
	}

	// Placement configuration
	if root := os.Getenv("TUBEQ_PLACEMENT_ROOT"); root != "" {
		config.Placement.Root = root
	}
	if markerDir := os.Getenv("TUBEQ_PLACEMENT_MARKER_DIR"); markerDir != "" {
		config.Placement.MarkerDir = markerDir
	}

	// Mirror configuration
	if enabled := os.Getenv("TUBEQ_MIRROR_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Mirror.Enabled = b
		}
	}
	if bucket := os.Getenv("TUBEQ_MIRROR_BUCKET"); bucket != "" {
		config.Mirror.Bucket = bucket
	}
	if endpoint := os.Getenv("TUBEQ_MIRROR_ENDPOINT"); endpoint != "" {
		config.Mirror.Endpoint = endpoint
	}
	if keyID := os.Getenv("TUBEQ_MIRROR_ACCESS_KEY_ID"); keyID != "" {
		config.Mirror.AccessKeyID = keyID
	}
	if secret := os.Getenv("TUBEQ_MIRROR_SECRET_ACCESS_KEY"); secret != "" {
		config.Mirror.SecretAccessKey = secret
	}

	// Archive configuration
	if retention := os.Getenv("TUBEQ_ARCHIVE_RETENTION"); retention != "" {
		config.Archive.Retention = retention
	}

	// Logging configuration
	if level := os.Getenv("TUBEQ_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TUBEQ_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
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

// Validate checks values that would otherwise fail deep inside a service
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "badger", "postgres":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Scheduler.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_downloads must be positive, got %d", c.Scheduler.MaxConcurrentDownloads)
	}
	durations := map[string]string{
		"scheduler.poll_interval":     c.Scheduler.PollInterval,
		"scheduler.error_backoff":     c.Scheduler.ErrorBackoff,
		"ytdlp.metadata_timeout":      c.YtDlp.MetadataTimeout,
		"archive.retention":           c.Archive.Retention,
		"websocket.snapshot_interval": c.WebSocket.SnapshotInterval,
		"websocket.refresh_throttle":  c.WebSocket.RefreshThrottle,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}
	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror is enabled")
	}
	return nil
}

// ParseDurationOrDefault parses a duration string, returning fallback when empty or invalid
func ParseDurationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
