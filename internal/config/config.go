// Package config loads pharmacore settings from defaults, an optional
// pharmacore.yaml and PHARMACORE_ environment variables, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pharmacore/internal/blob"
	"pharmacore/internal/core"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "PHARMACORE"

// Config is the flattened settings tree. Keys double as yaml keys and as
// environment suffixes.
type Config struct {
	StorageDriver    string `mapstructure:"STORAGE_DRIVER"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`
	PostgresDSN      string `mapstructure:"POSTGRES_DSN"`
	BlobDriver       string `mapstructure:"BLOB_DRIVER"`
	BlobFSRoot       string `mapstructure:"BLOB_FS_ROOT"`
	BlobS3Bucket     string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region     string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint   string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle  bool   `mapstructure:"BLOB_S3_PATH_STYLE"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	LogFormat        string `mapstructure:"LOG_FORMAT"`
	MetricsNamespace string `mapstructure:"METRICS_NAMESPACE"`
}

var defaults = map[string]any{
	"STORAGE_DRIVER":     string(core.StorageSQLite),
	"SQLITE_PATH":        "pharmacore.db",
	"POSTGRES_DSN":       "",
	"BLOB_DRIVER":        string(blob.DriverFilesystem),
	"BLOB_FS_ROOT":       "./exports",
	"BLOB_S3_BUCKET":     "",
	"BLOB_S3_REGION":     "us-east-1",
	"BLOB_S3_ENDPOINT":   "",
	"BLOB_S3_PATH_STYLE": false,
	"LOG_LEVEL":          "info",
	"LOG_FORMAT":         "json",
	"METRICS_NAMESPACE":  "pharmacore",
}

// Load reads ./pharmacore.yaml when present.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads the given yaml file, which must exist.
func LoadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config file path required")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pharmacore")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Unmarshal only sees env values for bound keys.
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &missing) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.BlobDriver = strings.ToLower(strings.TrimSpace(cfg.BlobDriver))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory:
	case core.StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite storage driver")
		}
	case core.StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be memory, sqlite or postgres, got %q", c.StorageDriver)
	}

	switch blob.Driver(c.BlobDriver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.BlobS3Bucket == "" {
			return errors.New("BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be fs, s3 or memory, got %q", c.BlobDriver)
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if strings.TrimSpace(c.MetricsNamespace) == "" {
		return errors.New("METRICS_NAMESPACE must not be empty")
	}
	return nil
}

// Storage returns the persistence settings.
func (c *Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Blob returns the object store settings. S3 credentials come from the
// default AWS chain.
func (c *Config) Blob() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Bucket:    c.BlobS3Bucket,
			Region:    c.BlobS3Region,
			Endpoint:  c.BlobS3Endpoint,
			PathStyle: c.BlobS3PathStyle,
		},
	}
}

// NewLogger builds the process logger. Console output uses the development
// encoder; json uses the production one.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
