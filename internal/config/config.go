// Package config loads geori settings from a YAML file and GEORI_*
// environment variables. Environment values win over the file; the file
// wins over defaults.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/filestore"
	"github.com/koustreak/geori/internal/logger"
	"go.yaml.in/yaml/v3"
)

// FileName is the config file looked up in the working directory when no
// path is given.
const FileName = "geori.yaml"

// Default values.
const (
	DefaultBatchSize = 1000
	DefaultAddr      = ":8080"
	DefaultRowLimit  = 1000
)

// Config is the full application configuration.
type Config struct {
	Database database.Config  `yaml:"database"`
	Log      logger.Config    `yaml:"log"`
	Store    filestore.Config `yaml:"store"`
	Write    WriteConfig      `yaml:"write"`
	Server   ServerConfig     `yaml:"server"`
}

// WriteConfig holds defaults for loads.
type WriteConfig struct {
	BatchSize  int `yaml:"batch_size"`
	SourceSRID int `yaml:"source_srid"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// MaxRows caps the rows returned by one request.
	MaxRows int `yaml:"max_rows"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConfig(""),
		Log:      *logger.DefaultConfig(),
		Write:    WriteConfig{BatchSize: DefaultBatchSize},
		Server:   ServerConfig{Addr: DefaultAddr, MaxRows: DefaultRowLimit},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path tries FileName and silently skips it when absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse "+path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read "+path, err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = database.DriverPostgres
	}
	if c.Database.Schema == "" {
		c.Database.Schema = database.DefaultSchema
	}
	if c.Write.BatchSize <= 0 {
		c.Write.BatchSize = DefaultBatchSize
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MaxRows <= 0 {
		c.Server.MaxRows = DefaultRowLimit
	}
	if c.Store.Provider == "" {
		c.Store.Provider = filestore.ProviderMinIO
	}
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from GEORI_* variables.
func applyEnv(c *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, key+" must be an integer", err)
		}
		*dst = n
		return nil
	}

	var driver string
	str("GEORI_DRIVER", &driver)
	if driver != "" {
		c.Database.Driver = database.Driver(driver)
	}
	str("GEORI_DSN", &c.Database.DSN)
	str("GEORI_DB_HOST", &c.Database.Host)
	str("GEORI_DB_USER", &c.Database.User)
	str("GEORI_DB_PASSWORD", &c.Database.Password)
	str("GEORI_DB_NAME", &c.Database.Database)
	str("GEORI_DB_SSLMODE", &c.Database.SSLMode)
	str("GEORI_SCHEMA", &c.Database.Schema)
	if err := num("GEORI_DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	if v, ok := lookup("GEORI_CONNECT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "GEORI_CONNECT_TIMEOUT must be a duration", err)
		}
		c.Database.ConnectTimeout = d
	}

	str("GEORI_LOG_LEVEL", &c.Log.Level)
	str("GEORI_LOG_FORMAT", &c.Log.Format)

	str("GEORI_STORE_ENDPOINT", &c.Store.Endpoint)
	str("GEORI_STORE_ACCESS_KEY", &c.Store.AccessKey)
	str("GEORI_STORE_SECRET_KEY", &c.Store.SecretKey)
	str("GEORI_STORE_BUCKET", &c.Store.DefaultBucket)
	if v, ok := lookup("GEORI_STORE_USE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "GEORI_STORE_USE_SSL must be a boolean", err)
		}
		c.Store.UseSSL = b
	}

	if err := num("GEORI_BATCH_SIZE", &c.Write.BatchSize); err != nil {
		return err
	}
	if err := num("GEORI_SOURCE_SRID", &c.Write.SourceSRID); err != nil {
		return err
	}

	str("GEORI_ADDR", &c.Server.Addr)
	return num("GEORI_MAX_ROWS", &c.Server.MaxRows)
}
