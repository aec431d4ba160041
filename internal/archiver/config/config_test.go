// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/config"
)

const sampleYAML = `
version: "1.0"
s3:
  bucket: ${TEST_BUCKET}
  region: us-east-1
  prefix: archive
defaults:
  retention_days: 90
  batch_size: 5000
  safety_buffer_days: 1
  max_parallel_databases: 2
  checkpoint_interval: 10
  compression_level: 6
  connection_pool_size: 5
  transaction_timeout_ms: 1800000
databases:
  - name: primary
    host: db.internal
    port: 5432
    user: archiver
    password_env: TEST_DB_PASSWORD
    tables:
      - schema: public
        name: events
        timestamp_column: created_at
        primary_key: id
checkpoint:
  enabled: true
  storage_type: object_store
  frequency: 10
locking:
  type: db_advisory
  ttl_seconds: 3600
  heartbeat_interval_seconds: 30
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_SubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_BUCKET", "my-bucket")
	t.Setenv("TEST_DB_PASSWORD", "secret")

	path := writeConfig(t, sampleYAML)
	cfg, err := config.Load(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "my-bucket", cfg.S3.Bucket)
}

func TestLoad_MissingEnvVarLeavesPlaceholderAndWarns(t *testing.T) {
	require.NoError(t, os.Unsetenv("TEST_BUCKET_MISSING"))
	t.Setenv("TEST_DB_PASSWORD", "secret")

	yaml := `
s3:
  bucket: ${TEST_BUCKET_MISSING}
defaults:
  retention_days: 90
  batch_size: 1000
databases:
  - name: primary
    host: db.internal
    port: 5432
    user: archiver
    password_env: TEST_DB_PASSWORD
    tables:
      - name: events
`
	path := writeConfig(t, yaml)

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	cfg, err := config.Load(path, logger)
	require.NoError(t, err)
	require.Equal(t, "${TEST_BUCKET_MISSING}", cfg.S3.Bucket)
	require.Greater(t, logs.FilterMessageSnippet("environment variable not set").Len(), 0)
}

func TestLoad_UnknownTopLevelKeyWarnsNotFails(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret")

	yaml := `
s3:
  bucket: my-bucket
defaults:
  retention_days: 90
  batch_size: 1000
databases:
  - name: primary
    host: db.internal
    port: 5432
    user: archiver
    password_env: TEST_DB_PASSWORD
    tables:
      - name: events
totally_unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	cfg, err := config.Load(path, logger)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Greater(t, logs.FilterMessageSnippet("unrecognized configuration key").Len(), 0)
}

func TestValidate_RejectsMissingBucket(t *testing.T) {
	cfg := &config.Config{Databases: []config.DatabaseConfig{{Name: "db1"}}}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNoDatabases(t *testing.T) {
	cfg := &config.Config{S3: config.S3Config{Bucket: "b"}}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnsafeTableIdentifier(t *testing.T) {
	cfg := &config.Config{
		S3: config.S3Config{Bucket: "b"},
		Databases: []config.DatabaseConfig{{
			Name:   "db1",
			Tables: []config.TableConfig{{Name: "events; DROP TABLE x"}},
		}},
	}
	require.Error(t, cfg.Validate())
}

func TestCutoffFor_UsesPerTableOverride(t *testing.T) {
	cfg := &config.Config{Defaults: config.Defaults{RetentionDays: 90, SafetyBufferDays: 1}}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	defaultCutoff := cfg.CutoffFor(config.TableConfig{}, now)
	require.Equal(t, now.AddDate(0, 0, -91), defaultCutoff)

	override := 30
	overrideCutoff := cfg.CutoffFor(config.TableConfig{RetentionDays: &override}, now)
	require.Equal(t, now.AddDate(0, 0, -31), overrideCutoff)
}

func TestBatchSizeFor_FallsBackToDefault(t *testing.T) {
	cfg := &config.Config{Defaults: config.Defaults{BatchSize: 5000}}
	require.Equal(t, 5000, cfg.BatchSizeFor(config.TableConfig{}))

	override := 100
	require.Equal(t, 100, cfg.BatchSizeFor(config.TableConfig{BatchSize: &override}))
}

func TestDatabaseConfig_Password(t *testing.T) {
	t.Setenv("TEST_PW", "hunter2")
	db := config.DatabaseConfig{Name: "db1", PasswordEnv: "TEST_PW"}
	pw, err := db.Password()
	require.NoError(t, err)
	require.Equal(t, "hunter2", pw)

	unset := config.DatabaseConfig{Name: "db2", PasswordEnv: "TEST_PW_NOT_SET"}
	_, err = unset.Password()
	require.Error(t, err)
}
