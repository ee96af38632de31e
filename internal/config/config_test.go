package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
database:
  driver: mysql
  dsn: "app:secret@tcp(localhost:3306)/shop"
  max_conns: 8
  min_conns: 2
  connect_timeout: 5s
  query_timeout: 1m30s
log:
  level: debug
  format: console
bulk_copy:
  copy_type: multiple_rows
  max_batch_size: 250
  notify_after: 1000
file_store:
  provider: minio
  endpoint: localhost:9000
  access_key: minioadmin
  secret_key: minioadmin
  bucket: exports
`

func TestParse(t *testing.T) {
	t.Setenv(EnvDSN, "")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, database.DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.Database.QueryTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxConnLifetime)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "rfc3339", cfg.Log.TimeFormat)

	assert.Equal(t, database.CopyMultipleRows, cfg.BulkCopy.CopyType)
	assert.Equal(t, 250, cfg.BulkCopy.MaxBatchSize)

	require.NotNil(t, cfg.FileStore)
	assert.Equal(t, filestore.ProviderMinIO, cfg.FileStore.Provider)
	assert.Equal(t, "exports", cfg.FileStore.Bucket)

	assert.Len(t, cfg.ConnectionOptions(), 1)
}

func TestParse_EnvOverridesDSN(t *testing.T) {
	t.Setenv(EnvDSN, "postgres://u:p@db:5432/prod")

	cfg, err := Parse([]byte("database:\n  driver: postgres\n  dsn: postgres://ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/prod", cfg.Database.DSN)
	assert.Nil(t, cfg.FileStore)
}

func TestParse_Rejects(t *testing.T) {
	t.Setenv(EnvDSN, "")

	tests := map[string]string{
		"missing dsn":        "database:\n  driver: postgres\n",
		"unknown driver":     "database:\n  driver: oracle\n  dsn: x\n",
		"bad duration":       "database:\n  dsn: x\n  query_timeout: soon\n",
		"unknown copy type":  "database:\n  dsn: x\nbulk_copy:\n  copy_type: turbo\n",
		"file store bucket":  "database:\n  dsn: x\nfile_store:\n  provider: minio\n  endpoint: localhost:9000\n",
		"file store backend": "database:\n  dsn: x\nfile_store:\n  provider: gcs\n  endpoint: e\n  bucket: b\n",
		"not yaml":           "database: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.True(t, errs.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvDSN, "")

	path := filepath.Join(t.TempDir(), "dataconn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "app:secret@tcp(localhost:3306)/shop", cfg.Database.DSN)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsInvalidInput(err))
}
