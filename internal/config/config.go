// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wishlistapp/catalog-server/internal/validation"
)

// Storage backends.
const (
	StorageFilesystem = "fs"
	StorageS3         = "s3"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Catalog   CatalogConfig
	Scrape    ScrapeConfig
	Images    ImagesConfig
	Storage   StorageConfig
	Proxy     ProxyConfig
	Reconcile ReconcileConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the base directory for local state.
type DataConfig struct {
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 60s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// CORSOrigins lists allowed origins; empty allows any origin.
	CORSOrigins []string
	// Per-client request rate for the public lookup endpoints.
	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=0"`
}

// DatabaseConfig holds the SQLite location (default: {data}/catalog.db).
type DatabaseConfig struct {
	Path string
}

// CatalogConfig holds authenticated catalog API configuration. Without
// credentials admin lookups are disabled and canonical refreshes fail.
type CatalogConfig struct {
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	Host        string
	Region      string
	Marketplace string
	Timeout     time.Duration
	// MinInterval is the minimum spacing between two catalog calls.
	MinInterval time.Duration `validate:"gte=0"`
}

// Configured reports whether catalog credentials are present.
func (c CatalogConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.PartnerTag != ""
}

// ScrapeConfig holds public product page scraping configuration.
type ScrapeConfig struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	PlaceholderImage string
	// RulesPath points at a JSON extraction rule table, reloaded on change.
	// Empty uses the built-in table.
	RulesPath string
	HostRPS   float64 `validate:"gte=0"`
}

// ImagesConfig holds image cache configuration.
type ImagesConfig struct {
	// IndexPath is the badger directory for cached image records
	// (default: {data}/images).
	IndexPath       string
	DownloadTimeout time.Duration
	MaxDownloadSize int64 `validate:"gte=0"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend string `validate:"oneof=fs s3"`
	// FSRoot is the filesystem backend root (default: {data}/objects).
	FSRoot string
	S3     S3Config
}

// S3Config holds S3/MinIO settings.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// ProxyConfig holds the public image path.
type ProxyConfig struct {
	// Prefix is the path (or absolute URL) cached images are served under.
	Prefix      string
	NativeHosts []string
}

// ReconcileConfig holds promotion policy.
type ReconcileConfig struct {
	MinDistinctUsers int `validate:"min=1"`
}

// SchedulerConfig holds the background refresh job configuration.
type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration `validate:"gt=0"`
	Threshold time.Duration `validate:"gt=0"`
	Limit     int           `validate:"min=1,max=500"`
	ItemDelay time.Duration `validate:"gte=0"`
}

// LoadConfig loads configuration from the process flags and environment.
// Commands may register their own flags on flag.CommandLine before calling it.
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for local state")
	dbPath := fs.String("db-path", "", "SQLite database path (default: {data}/catalog.db)")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	// Storage flags
	storageBackend := fs.String("storage", "", "Object storage backend: fs or s3 (default: fs)")
	proxyPrefix := fs.String("proxy-prefix", "", "Public path for cached images (default: /media)")
	rulesPath := fs.String("scrape-rules", "", "Path to a JSON scrape rule table")

	// Scheduler flags
	schedEnabled := fs.String("refresh-enabled", "", "Run the background refresh job (default: true)")
	schedInterval := fs.String("refresh-interval", "", "Refresh job interval (default: 1h)")
	schedThreshold := fs.String("refresh-threshold", "", "Refresh records older than this (default: 168h)")
	schedLimit := fs.String("refresh-limit", "", "Max records per refresh cycle (default: 100)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins:    getListConfigValue("", "CORS_ORIGINS"),
			RateLimitRPS:   getFloatConfigValue("", "RATE_LIMIT_RPS", 5),
			RateLimitBurst: getIntConfigValue("", "RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			Path: getConfigValue(*dbPath, "DATABASE_PATH", ""),
		},
		Catalog: CatalogConfig{
			AccessKey:   getConfigValue("", "CATALOG_ACCESS_KEY", ""),
			SecretKey:   getConfigValue("", "CATALOG_SECRET_KEY", ""),
			PartnerTag:  getConfigValue("", "CATALOG_PARTNER_TAG", ""),
			Host:        getConfigValue("", "CATALOG_HOST", ""),
			Region:      getConfigValue("", "CATALOG_REGION", ""),
			Marketplace: getConfigValue("", "CATALOG_MARKETPLACE", ""),
		},
		Scrape: ScrapeConfig{
			BaseURL:          getConfigValue("", "SCRAPE_BASE_URL", ""),
			UserAgent:        getConfigValue("", "SCRAPE_USER_AGENT", ""),
			PlaceholderImage: getConfigValue("", "SCRAPE_PLACEHOLDER_IMAGE", ""),
			RulesPath:        getConfigValue(*rulesPath, "SCRAPE_RULES_PATH", ""),
			HostRPS:          getFloatConfigValue("", "SCRAPE_HOST_RPS", 0),
		},
		Images: ImagesConfig{
			IndexPath:       getConfigValue("", "IMAGES_INDEX_PATH", ""),
			MaxDownloadSize: int64(getIntConfigValue("", "IMAGES_MAX_DOWNLOAD_SIZE", 10<<20)),
		},
		Storage: StorageConfig{
			Backend: getConfigValue(*storageBackend, "STORAGE_BACKEND", StorageFilesystem),
			FSRoot:  getConfigValue("", "STORAGE_FS_ROOT", ""),
			S3: S3Config{
				Endpoint:     getConfigValue("", "S3_ENDPOINT", ""),
				Region:       getConfigValue("", "S3_REGION", "us-east-1"),
				Bucket:       getConfigValue("", "S3_BUCKET", "catalog"),
				AccessKey:    getConfigValue("", "S3_ACCESS_KEY", ""),
				SecretKey:    getConfigValue("", "S3_SECRET_KEY", ""),
				UseSSL:       getBoolConfigValue("", "S3_USE_SSL", false),
				UsePathStyle: getBoolConfigValue("", "S3_USE_PATH_STYLE", true),
			},
		},
		Proxy: ProxyConfig{
			Prefix:      getConfigValue(*proxyPrefix, "PROXY_PREFIX", "/media"),
			NativeHosts: getListConfigValue("", "PROXY_NATIVE_HOSTS"),
		},
		Reconcile: ReconcileConfig{
			MinDistinctUsers: getIntConfigValue("", "RECONCILE_MIN_DISTINCT_USERS", 2),
		},
		Scheduler: SchedulerConfig{
			Enabled: getBoolConfigValue(*schedEnabled, "REFRESH_ENABLED", true),
			Limit:   getIntConfigValue(*schedLimit, "REFRESH_LIMIT", 100),
		},
	}

	durations := []struct {
		dst   *time.Duration
		flag  string
		env   string
		def   string
		label string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", "write timeout"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout"},
		{&cfg.Catalog.Timeout, "", "CATALOG_TIMEOUT", "10s", "catalog timeout"},
		{&cfg.Catalog.MinInterval, "", "CATALOG_MIN_INTERVAL", "1s", "catalog min interval"},
		{&cfg.Scrape.Timeout, "", "SCRAPE_TIMEOUT", "15s", "scrape timeout"},
		{&cfg.Images.DownloadTimeout, "", "IMAGES_DOWNLOAD_TIMEOUT", "15s", "image download timeout"},
		{&cfg.Scheduler.Interval, *schedInterval, "REFRESH_INTERVAL", "1h", "refresh interval"},
		{&cfg.Scheduler.Threshold, *schedThreshold, "REFRESH_THRESHOLD", "168h", "refresh threshold"},
		{&cfg.Scheduler.ItemDelay, "", "REFRESH_ITEM_DELAY", "500ms", "refresh item delay"},
	}
	for _, d := range durations {
		s := getConfigValue(d.flag, d.env, d.def)
		v, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.label, s, err)
		}
		*d.dst = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Storage.Backend == StorageS3 && c.Storage.S3.Endpoint == "" {
		return errors.New("S3_ENDPOINT is required for the s3 storage backend")
	}

	if c.Proxy.Prefix == "" || c.Proxy.Prefix == "/" {
		return errors.New("proxy prefix cannot be empty")
	}

	return validation.New().Validate(c)
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and every path derived from it.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	base, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "CatalogServer", "data"))
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	derived := []struct {
		dst  *string
		name string
	}{
		{&c.Database.Path, "catalog.db"},
		{&c.Images.IndexPath, "images"},
		{&c.Storage.FSRoot, "objects"},
	}
	for _, d := range derived {
		expanded, err := expandPath(*d.dst, filepath.Join(base, d.name))
		if err != nil {
			return err
		}
		*d.dst = expanded
	}

	if c.Scrape.RulesPath != "" {
		expanded, err := expandPath(c.Scrape.RulesPath, "")
		if err != nil {
			return err
		}
		c.Scrape.RulesPath = expanded
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// getListConfigValue splits a comma-separated value, dropping empty entries.
func getListConfigValue(flagValue, envKey string) []string {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
