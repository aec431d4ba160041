// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package config loads the archiver's YAML configuration with ${VAR}
// environment substitution, the way storj's cmd/* binaries layer viper over
// a typed config struct. Unknown top-level keys warn rather than fail.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// S3Config is the object-store connection configuration.
type S3Config struct {
	Bucket         string            `yaml:"bucket"`
	Region         string            `yaml:"region"`
	Prefix         string            `yaml:"prefix"`
	Endpoint       string            `yaml:"endpoint"`
	StorageClass   string            `yaml:"storage_class"`
	Encryption     string            `yaml:"encryption"`
	Credentials    map[string]string `yaml:"credentials"`
	RequestsPerSec float64           `yaml:"requests_per_second"`
	MaxRetries     int               `yaml:"max_retries"`
}

// Defaults holds the fleet-wide defaults, overridable per table.
type Defaults struct {
	RetentionDays        int  `yaml:"retention_days"`
	BatchSize            int  `yaml:"batch_size"`
	SleepBetweenBatches  int  `yaml:"sleep_between_batches"`
	VacuumAfter          bool `yaml:"vacuum_after"`
	ParallelDatabases    bool `yaml:"parallel_databases"`
	MaxParallelDatabases int  `yaml:"max_parallel_databases"`
	SafetyBufferDays     int  `yaml:"safety_buffer_days"`
	CheckpointInterval   int  `yaml:"checkpoint_interval"`
	CompressionLevel     int  `yaml:"compression_level"`
	ConnectionPoolSize   int  `yaml:"connection_pool_size"`
	TransactionTimeoutMS int  `yaml:"transaction_timeout_ms"`
}

// TableConfig describes one table to archive, with optional overrides.
type TableConfig struct {
	Schema           string `yaml:"schema"`
	Name             string `yaml:"name"`
	TimestampColumn  string `yaml:"timestamp_column"`
	PrimaryKey       string `yaml:"primary_key"`
	RetentionDays    *int   `yaml:"retention_days"`
	BatchSize        *int   `yaml:"batch_size"`
}

// DatabaseConfig describes one source database and its tables.
type DatabaseConfig struct {
	Name        string        `yaml:"name"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	PasswordEnv string        `yaml:"password_env"`
	Tables      []TableConfig `yaml:"tables"`
}

// CheckpointConfig controls checkpoint persistence.
type CheckpointConfig struct {
	Enabled     bool   `yaml:"enabled"`
	StorageType string `yaml:"storage_type"` // "object_store" or "database"
	Frequency   int    `yaml:"frequency"`
}

// LockingConfig controls distributed lock behavior.
type LockingConfig struct {
	Type                   string `yaml:"type"` // "db_advisory" or "file"
	TTLSeconds             int    `yaml:"ttl_seconds"`
	HeartbeatIntervalSeconds int  `yaml:"heartbeat_interval_seconds"`
	FileLockDir            string `yaml:"file_lock_dir"`
}

// Config is the top-level YAML configuration.
type Config struct {
	Version     string                 `yaml:"version"`
	S3          S3Config               `yaml:"s3"`
	Defaults    Defaults               `yaml:"defaults"`
	Databases   []DatabaseConfig       `yaml:"databases"`
	Monitoring  map[string]interface{} `yaml:"monitoring"`
	Compliance  map[string]interface{} `yaml:"compliance"`
	Checkpoint  CheckpointConfig       `yaml:"checkpoint"`
	Locking     LockingConfig          `yaml:"locking"`

	unknownKeys []string `yaml:"-"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv replaces ${VAR} occurrences with the environment variable's
// value, leaving the placeholder untouched (with a warning) if unset.
func substituteEnv(raw []byte, logger *zap.Logger) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		value, ok := os.LookupEnv(string(name))
		if !ok {
			if logger != nil {
				logger.Warn("environment variable not set, leaving placeholder", zap.String("var", string(name)))
			}
			return match
		}
		return []byte(value)
	})
}

// Load reads, env-substitutes, and parses the YAML configuration at path.
func Load(path string, logger *zap.Logger) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Configuration, archiverrs.Context{"path": path}, err)
	}

	substituted := substituteEnv(raw, logger)

	var known Config
	if err := yaml.Unmarshal(substituted, &known); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Configuration, archiverrs.Context{"path": path}, err)
	}

	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(substituted, &rawMap); err == nil {
		known.unknownKeys = detectUnknownKeys(rawMap, logger)
	}

	if err := known.Validate(); err != nil {
		return nil, err
	}

	return &known, nil
}

var recognizedTopLevelKeys = map[string]bool{
	"version": true, "s3": true, "defaults": true, "databases": true,
	"monitoring": true, "compliance": true, "checkpoint": true, "locking": true,
}

func detectUnknownKeys(rawMap map[string]interface{}, logger *zap.Logger) []string {
	var unknown []string
	for key := range rawMap {
		if !recognizedTopLevelKeys[key] {
			unknown = append(unknown, key)
			if logger != nil {
				logger.Warn("unrecognized configuration key, ignoring", zap.String("key", key))
			}
		}
	}
	return unknown
}

// Validate enforces the configuration-error cases it covers: a missing
// s3.bucket, no databases, a missing database name, and unsafe table or
// schema identifiers. Retention values are not checked against any bounds.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return archiverrs.New(&archiverrs.Configuration, nil, "s3.bucket is required")
	}
	if len(c.Databases) == 0 {
		return archiverrs.New(&archiverrs.Configuration, nil, "at least one database must be configured")
	}
	for _, db := range c.Databases {
		if db.Name == "" {
			return archiverrs.New(&archiverrs.Configuration, nil, "database name is required")
		}
		for _, t := range db.Tables {
			if err := dbutil.ValidateIdentifier(t.Name); err != nil {
				return archiverrs.Wrap(&archiverrs.Configuration, archiverrs.Context{"database": db.Name, "table": t.Name}, err)
			}
			if t.Schema != "" {
				if err := dbutil.ValidateIdentifier(t.Schema); err != nil {
					return archiverrs.Wrap(&archiverrs.Configuration, archiverrs.Context{"database": db.Name, "schema": t.Schema}, err)
				}
			}
		}
	}
	return nil
}

// CutoffFor computes now - retention_days - safety_buffer_days for a table,
// applying per-table retention override when present. Callers must invoke
// this exactly once per run and reuse the value, per the cutoff-immutability
// invariant.
func (c *Config) CutoffFor(table TableConfig, now time.Time) time.Time {
	retention := c.Defaults.RetentionDays
	if table.RetentionDays != nil {
		retention = *table.RetentionDays
	}
	safety := c.Defaults.SafetyBufferDays
	return now.UTC().
		AddDate(0, 0, -retention).
		AddDate(0, 0, -safety)
}

// BatchSizeFor resolves the effective batch size for a table.
func (c *Config) BatchSizeFor(table TableConfig) int {
	if table.BatchSize != nil {
		return *table.BatchSize
	}
	return c.Defaults.BatchSize
}

// Password resolves a database's password from its configured environment
// variable.
func (d DatabaseConfig) Password() (string, error) {
	if d.PasswordEnv == "" {
		return "", fmt.Errorf("password_env not configured for database %s", d.Name)
	}
	value, ok := os.LookupEnv(d.PasswordEnv)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set for database %s", d.PasswordEnv, d.Name)
	}
	return value, nil
}
