// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/mod/semver"

	"storefront/internal/recent"
	"storefront/internal/transport"
)

// Defaults for optional settings.
const (
	DefaultPort        = "8080"
	DefaultDataDir     = "./data"
	DefaultPolicy      = "replace"
	DefaultSyncTimeout = 10 * time.Second
	DefaultCatalogTTL  = 5 * time.Minute
	DefaultRecentLimit = recent.DefaultLimit
)

// Config holds all service configuration.
// Environment determines whether API credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject   string
	StorefrontID string

	// Storefront API (loaded from secrets in production)
	API APIConfig

	// Engine settings
	DataDir         string
	LoginCartPolicy string // "replace" or "merge"
	SyncTimeout     time.Duration
	CatalogTTL      time.Duration
	TLSFingerprint  transport.Fingerprint
	RecentLimit     int // 1..5; lowers the recently-viewed cap
}

// APIConfig locates and authenticates the remote storefront API.
// In production, this is loaded from Secret Manager as JSON.
type APIConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Version string `json:"api_version,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:            envOrDefault("PORT", DefaultPort),
		Environment:     envOrDefault("ENVIRONMENT", "development"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		StorefrontID:    os.Getenv("STOREFRONT_ID"),
		DataDir:         envOrDefault("DATA_DIR", DefaultDataDir),
		LoginCartPolicy: envOrDefault("LOGIN_CART_POLICY", DefaultPolicy),
	}

	var err error
	if cfg.SyncTimeout, err = envDuration("SYNC_TIMEOUT", DefaultSyncTimeout); err != nil {
		return nil, err
	}
	if cfg.CatalogTTL, err = envDuration("CATALOG_TTL", DefaultCatalogTTL); err != nil {
		return nil, err
	}
	if cfg.RecentLimit, err = envInt("RECENT_LIMIT", DefaultRecentLimit); err != nil {
		return nil, err
	}
	if cfg.TLSFingerprint, err = transport.ParseFingerprint(os.Getenv("TLS_FINGERPRINT")); err != nil {
		return nil, err
	}

	// Load API config based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StorefrontID == "" {
			return nil, fmt.Errorf("STOREFRONT_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading storefront API config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port            string    `json:"port"`
		Environment     string    `json:"environment"`
		LogLevel        string    `json:"log_level"`
		StorefrontID    string    `json:"storefront_id"`
		API             APIConfig `json:"api"`
		DataDir         string    `json:"data_dir"`
		LoginCartPolicy string    `json:"login_cart_policy"`
		SyncTimeout     string    `json:"sync_timeout"`
		CatalogTTL      string    `json:"catalog_ttl"`
		TLSFingerprint  string    `json:"tls_fingerprint"`
		RecentLimit     int       `json:"recent_limit"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:            withDefault(fileConfig.Port, DefaultPort),
		Environment:     withDefault(fileConfig.Environment, "development"),
		LogLevel:        withDefault(fileConfig.LogLevel, "info"),
		StorefrontID:    fileConfig.StorefrontID,
		API:             fileConfig.API,
		DataDir:         withDefault(fileConfig.DataDir, DefaultDataDir),
		LoginCartPolicy: withDefault(fileConfig.LoginCartPolicy, DefaultPolicy),
		RecentLimit:     fileConfig.RecentLimit,
	}
	if cfg.RecentLimit == 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}

	if cfg.SyncTimeout, err = parseDuration("sync_timeout", fileConfig.SyncTimeout, DefaultSyncTimeout); err != nil {
		return nil, err
	}
	if cfg.CatalogTTL, err = parseDuration("catalog_ttl", fileConfig.CatalogTTL, DefaultCatalogTTL); err != nil {
		return nil, err
	}
	if cfg.TLSFingerprint, err = transport.ParseFingerprint(fileConfig.TLSFingerprint); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the API config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{storefront_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StorefrontID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.API); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads the API config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() {
	c.API = APIConfig{
		BaseURL: os.Getenv("API_BASE_URL"),
		APIKey:  os.Getenv("API_KEY"),
		Version: os.Getenv("API_VERSION"),
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base_url %q", c.API.BaseURL)
	}

	if c.API.Version != "" && !semver.IsValid(canonicalVersion(c.API.Version)) {
		return fmt.Errorf("invalid api_version %q: want semver such as v1 or 1.4.0", c.API.Version)
	}

	switch strings.ToLower(c.LoginCartPolicy) {
	case "replace", "merge":
	default:
		return fmt.Errorf("invalid login_cart_policy %q (want replace or merge)", c.LoginCartPolicy)
	}

	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive")
	}
	if c.CatalogTTL <= 0 {
		return fmt.Errorf("catalog_ttl must be positive")
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("recent_limit must be positive")
	}
	if c.RecentLimit > recent.DefaultLimit {
		return fmt.Errorf("recent_limit must be at most %d", recent.DefaultLimit)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	return nil
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envDuration parses a time.Duration environment variable such as "10s".
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// envInt parses an integer environment variable.
func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
