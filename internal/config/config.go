// Package config loads the dataconn YAML configuration file.
package config

import (
	"os"

	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/filestore"
	"github.com/koustreak/dataconn/internal/logger"
	"go.yaml.in/yaml/v3"
)

// EnvDSN overrides database.dsn when set, so credentials can stay out of
// the file.
const EnvDSN = "DATACONN_DSN"

// Config is the root of the configuration file.
type Config struct {
	Database  database.Config          `yaml:"database"`
	Log       logger.Config            `yaml:"log"`
	BulkCopy  database.BulkCopyOptions `yaml:"bulk_copy"`
	FileStore *filestore.Config        `yaml:"file_store"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConfig(""),
		Log:      *logger.DefaultConfig(),
	}
}

// Load reads path over Default, applies the environment override and
// validates the database section.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config "+path, err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}
	if dsn := os.Getenv(EnvDSN); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	if cfg.FileStore != nil {
		if err := cfg.FileStore.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ConnectionOptions returns the Connection options implied by the file.
func (c *Config) ConnectionOptions() []database.Option {
	return []database.Option{
		database.WithBulkCopyDefaults(c.BulkCopy),
	}
}
