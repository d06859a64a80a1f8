package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/syncapp/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the JSON config file
	ConfigFileName = "config.json"
	// ConfigFileNameYAML is consulted when no JSON config exists
	ConfigFileNameYAML = "config.yaml"
	// DatabaseFileName is the default index database name
	DatabaseFileName = "syncapp.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "SYNCAPP_"
)

// Config holds application configuration
type Config struct {
	// DatabasePath is the sqlite file backing the metadata cache and sync queue
	DatabasePath string `json:"databasePath" yaml:"databasePath"`

	// GDriveSecretFile is the OAuth client secret JSON for Google Drive
	GDriveSecretFile string `json:"gdriveSecretFile" yaml:"gdriveSecretFile"`

	// GDriveTokenPath holds OAuth tokens and change-feed cursors
	GDriveTokenPath string `json:"gdriveTokenPath" yaml:"gdriveTokenPath"`

	AWSRegion   string `json:"awsRegion" yaml:"awsRegion"`
	S3Endpoint  string `json:"s3Endpoint" yaml:"s3Endpoint"`
	GCSEndpoint string `json:"gcsEndpoint" yaml:"gcsEndpoint"`

	// MaxKeys caps the number of objects listed per URL (0 = unlimited)
	MaxKeys int `json:"maxKeys" yaml:"maxKeys"`

	// PageSize is the provider page size for listings
	PageSize int `json:"pageSize" yaml:"pageSize"`

	// MaxRetries is the maximum number of retries for provider calls
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`

	// RetryBaseDelayMs is the base delay for exponential backoff in milliseconds
	RetryBaseDelayMs int `json:"retryBaseDelayMs" yaml:"retryBaseDelayMs"`

	// RetryCeilingUnits bounds the backoff at this multiple of the base delay
	RetryCeilingUnits int `json:"retryCeilingUnits" yaml:"retryCeilingUnits"`

	// Workers is the number of concurrent transfers during process
	Workers int `json:"workers" yaml:"workers"`

	SSHCommand    string `json:"sshCommand" yaml:"sshCommand"`
	SCPCommand    string `json:"scpCommand" yaml:"scpCommand"`
	RemoteCommand string `json:"remoteCommand" yaml:"remoteCommand"`
	SSHCompress   bool   `json:"sshCompress" yaml:"sshCompress"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// LogFile enables JSON file logging when set
	LogFile string `json:"logFile" yaml:"logFile"`

	// Color enables color output on the console
	Color bool `json:"color" yaml:"color"`

	// DefaultOutputFormat is the default output format (json, table, text)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat" yaml:"defaultOutputFormat"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxKeys:             0,
		PageSize:            1000,
		MaxRetries:          8,
		RetryBaseDelayMs:    1000,
		RetryCeilingUnits:   64,
		Workers:             4,
		SSHCommand:          "ssh",
		SCPCommand:          "scp",
		RemoteCommand:       "syncapp",
		SSHCompress:         true,
		LogLevel:            "normal",
		Color:               true,
		DefaultOutputFormat: types.OutputFormatText,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile reads config.json, falling back to config.yaml
func (c *Config) loadFromFile() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(configDir, ConfigFileName))
	if err == nil {
		return json.Unmarshal(data, c)
	}
	if !os.IsNotExist(err) {
		return err
	}

	data, err = os.ReadFile(filepath.Join(configDir, ConfigFileNameYAML))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	strs := map[string]*string{
		"DATABASE_PATH":      &c.DatabasePath,
		"GDRIVE_SECRET_FILE": &c.GDriveSecretFile,
		"GDRIVE_TOKEN_PATH":  &c.GDriveTokenPath,
		"AWS_REGION":         &c.AWSRegion,
		"S3_ENDPOINT":        &c.S3Endpoint,
		"GCS_ENDPOINT":       &c.GCSEndpoint,
		"SSH_COMMAND":        &c.SSHCommand,
		"SCP_COMMAND":        &c.SCPCommand,
		"REMOTE_COMMAND":     &c.RemoteCommand,
		"LOG_LEVEL":          &c.LogLevel,
		"LOG_FILE":           &c.LogFile,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_KEYS":            &c.MaxKeys,
		"PAGE_SIZE":           &c.PageSize,
		"MAX_RETRIES":         &c.MaxRetries,
		"RETRY_BASE_DELAY_MS": &c.RetryBaseDelayMs,
		"RETRY_CEILING_UNITS": &c.RetryCeilingUnits,
		"WORKERS":             &c.Workers,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "SSH_COMPRESS"); v != "" {
		c.SSHCompress = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "COLOR"); v != "" {
		c.Color = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
}

// ResolvePaths fills empty path settings with locations under the config directory
func (c *Config) ResolvePaths() error {
	if c.DatabasePath != "" && c.GDriveTokenPath != "" {
		return nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(configDir, DatabaseFileName)
	}
	if c.GDriveTokenPath == "" {
		c.GDriveTokenPath = filepath.Join(configDir, "gdrive")
	}
	return nil
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DefaultOutputFormat {
	case types.OutputFormatJSON, types.OutputFormatTable, types.OutputFormatText:
	default:
		return fmt.Errorf("invalid output format: %s (must be 'json', 'table' or 'text')", c.DefaultOutputFormat)
	}

	if c.MaxKeys < 0 {
		return fmt.Errorf("max keys must be non-negative, got: %d", c.MaxKeys)
	}

	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("page size must be between 1 and 1000, got: %d", c.PageSize)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 20 {
		return fmt.Errorf("max retries must be between 0 and 20, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelayMs < 1 || c.RetryBaseDelayMs > 60000 {
		return fmt.Errorf("retry base delay must be between 1ms and 60000ms, got: %d", c.RetryBaseDelayMs)
	}

	if c.RetryCeilingUnits < 1 {
		return fmt.Errorf("retry ceiling must be positive, got: %d", c.RetryCeilingUnits)
	}

	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got: %d", c.Workers)
	}

	if strings.TrimSpace(c.RemoteCommand) == "" {
		return fmt.Errorf("remote command must not be empty")
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// StartPageTokenPath returns the change-feed cursor file for a Drive session
func (c *Config) StartPageTokenPath(session string) string {
	return filepath.Join(c.GDriveTokenPath, session+"_start_page_token")
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, "syncapp"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
