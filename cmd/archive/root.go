// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/checkpoint"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/config"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/lock"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/logging"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/orchestrator"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/sample"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/schema"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/selector"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/serializer"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/sync2"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/txn"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/verifier"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/watermark"
)

type flags struct {
	configPath string
	dryRun     bool
	database   string
	table      string
	verbose    bool
	logLevel   string
	logFormat  string
}

// newRootCmd builds the archive command, binding flags through viper so
// ARCHIVE_*-prefixed environment variables can override any of them, the
// way storj's cmd/* binaries layer viper atop cobra flags.
func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive expired audit-table rows to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "config.yaml", "path to the archiver YAML configuration")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "select and report eligible rows without uploading or deleting")
	cmd.Flags().StringVar(&f.database, "database", "", "restrict the run to one configured database")
	cmd.Flags().StringVar(&f.table, "table", "", "restrict the run to one configured table (requires --database)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug-level logging")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "console", "log format: console or json; json also switches the run summary to a single JSON object")

	v := viper.New()
	v.SetEnvPrefix("ARCHIVE")
	v.AutomaticEnv()
	stringFlags := map[string]*string{
		"config": &f.configPath, "database": &f.database, "table": &f.table,
		"log-level": &f.logLevel, "log-format": &f.logFormat,
	}
	boolFlags := map[string]*bool{
		"dry-run": &f.dryRun, "verbose": &f.verbose,
	}
	for name := range stringFlags {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	for name := range boolFlags {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for name, dst := range stringFlags {
			if !cmd.Flags().Changed(name) && v.IsSet(name) {
				*dst = v.GetString(name)
			}
		}
		for name, dst := range boolFlags {
			if !cmd.Flags().Changed(name) && v.IsSet(name) {
				*dst = v.GetBool(name)
			}
		}
		if f.table != "" && f.database == "" {
			return errors.New("--table requires --database")
		}
		return nil
	}

	return cmd
}

// isCancellation reports whether err originates from a context
// cancellation reaching the top of the run (operator interrupt).
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func run(parent context.Context, f flags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := f.logLevel
	if f.verbose {
		level = "debug"
	}
	log, err := logging.New(level, logging.Format(f.logFormat))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(f.configPath, log)
	if err != nil {
		return err
	}

	minioClient, err := newMinioClient(cfg)
	if err != nil {
		return err
	}
	objClient := objectstore.New(minioClient, objectstore.Config{
		Bucket: cfg.S3.Bucket, Prefix: cfg.S3.Prefix, Endpoint: cfg.S3.Endpoint,
		Region: cfg.S3.Region, StorageClass: cfg.S3.StorageClass,
		RequestsPerSec: cfg.S3.RequestsPerSec, MaxRetries: cfg.S3.MaxRetries,
	}, log)

	now := time.Now().UTC()
	maxParallel := cfg.Defaults.MaxParallelDatabases
	if !cfg.Defaults.ParallelDatabases || maxParallel < 1 {
		maxParallel = 1
	}
	limiter := sync2.NewLimiter(maxParallel)

	var (
		mu      sync.Mutex
		allRuns []*orchestrator.Stats
		runErr  error
	)

	for _, dbCfg := range cfg.Databases {
		if f.database != "" && dbCfg.Name != f.database {
			continue
		}
		dbCfg := dbCfg
		limiter.Go(ctx, func() {
			results, err := runDatabase(ctx, cfg, dbCfg, f, objClient, now, log)
			mu.Lock()
			defer mu.Unlock()
			allRuns = append(allRuns, results...)
			if err != nil && runErr == nil {
				runErr = err
			}
		})
	}
	limiter.Wait()

	printSummary(allRuns, f.logFormat == "json")

	if runErr != nil {
		return runErr
	}
	for _, s := range allRuns {
		if s.Err != nil {
			return fmt.Errorf("archival run failed for %s.%s: %w", s.Database, s.Table, s.Err)
		}
	}
	return nil
}

// runDatabase opens one database's connection pool and archives each of
// its configured tables in turn, per spec.md §4.13's sequential-within-a-
// database fan-out.
func runDatabase(ctx context.Context, cfg *config.Config, dbCfg config.DatabaseConfig, f flags, objClient *objectstore.Client, now time.Time, log *zap.Logger) ([]*orchestrator.Stats, error) {
	password, err := dbCfg.Password()
	if err != nil {
		return nil, err
	}
	connInfo := dbutil.FormatConnInfo(dbCfg.Host, dbCfg.Port, dbCfg.User, password, dbCfg.Name)
	db, err := sql.Open("postgres", connInfo)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbCfg.Name, err)
	}
	defer func() { _ = db.Close() }()

	poolSize := cfg.Defaults.ConnectionPoolSize
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
	}

	lockMgr := newLockManager(cfg, db, log)

	var results []*orchestrator.Stats
	for _, tbl := range dbCfg.Tables {
		if f.table != "" && tbl.Name != f.table {
			continue
		}
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		table, err := buildTable(cfg, dbCfg, tbl, f, db, objClient, lockMgr, now, log)
		if err != nil {
			results = append(results, &orchestrator.Stats{Database: dbCfg.Name, Table: tbl.Name, State: orchestrator.StateFailed, Err: err})
			continue
		}
		stats := orchestrator.New(*table).Run(ctx)
		results = append(results, stats)
	}
	return results, nil
}

func buildTable(cfg *config.Config, dbCfg config.DatabaseConfig, tbl config.TableConfig, f flags, db *sql.DB, objClient *objectstore.Client, lockMgr lock.Manager, now time.Time, log *zap.Logger) (*orchestrator.Table, error) {
	columns := []string{tbl.PrimaryKey, tbl.TimestampColumn}
	sel, err := selector.New(db, log, tbl.Schema, tbl.Name, tbl.TimestampColumn, tbl.PrimaryKey, columns)
	if err != nil {
		return nil, err
	}

	sampleVerifier, err := sample.New(0.01, 10, 1000, log)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Defaults.TransactionTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	level := cfg.Defaults.CompressionLevel
	if level <= 0 {
		level = 6
	}

	lockKey := fmt.Sprintf("%s.%s.%s", dbCfg.Name, tbl.Schema, tbl.Name)

	return &orchestrator.Table{
		Database: dbCfg.Name, Schema: tbl.Schema, Table: tbl.Name,
		TSColumn: tbl.TimestampColumn, PKColumn: tbl.PrimaryKey, Columns: columns,

		Cutoff:              cfg.CutoffFor(tbl, now),
		BatchSize:           cfg.BatchSizeFor(tbl),
		CheckpointInterval:  cfg.Checkpoint.Frequency,
		SleepBetweenBatches: time.Duration(cfg.Defaults.SleepBetweenBatches) * time.Millisecond,
		DryRun:              f.dryRun,
		CompressionLevel:    level,

		DB:             db,
		Object:         objClient,
		SchemaDetector: schema.New(db, log),
		DriftDetector:  schema.NewDriftDetector(false, log),
		Selector:       sel,
		Watermark:      watermark.New(objClient, log),
		Checkpoint:     checkpoint.New(objClient, log),
		LockManager:    lockMgr,
		LockKey:        lockKey,
		Sample:         sampleVerifier,
		Txn:            txn.New(db, timeout, log),
		Serializer:     serializer.New(log),
		Verifier:       verifier.New(log),

		Log: log,
	}, nil
}

func newLockManager(cfg *config.Config, db *sql.DB, log *zap.Logger) lock.Manager {
	ttl := time.Duration(cfg.Locking.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = lock.DefaultTTL
	}
	heartbeat := time.Duration(cfg.Locking.HeartbeatIntervalSeconds) * time.Second
	if heartbeat <= 0 {
		heartbeat = lock.DefaultHeartbeatInterval
	}
	owner := hostnameOrPID()

	if cfg.Locking.Type == "file" {
		dir := cfg.Locking.FileLockDir
		if dir == "" {
			dir = os.TempDir()
		}
		return lock.NewFileManager(dir, owner, ttl, heartbeat, log)
	}
	return lock.NewAdvisoryManager(db, owner, ttl, log)
}

func hostnameOrPID() string {
	if h, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%d", h, os.Getpid())
	}
	return fmt.Sprintf("pid-%d", os.Getpid())
}

func newMinioClient(cfg *config.Config) (*minio.Client, error) {
	accessKey := cfg.S3.Credentials["access_key"]
	secretKey := cfg.S3.Credentials["secret_key"]
	return minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.S3.Encryption != "none",
		Region: cfg.S3.Region,
	})
}

func printSummary(stats []*orchestrator.Stats, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(summaryPayload(stats))
		return
	}

	var totalRecords, totalBatches, totalBytes int64
	for _, s := range stats {
		status := "ok"
		if s.Err != nil {
			status = "FAILED: " + s.Err.Error()
		}
		fmt.Printf("%s.%s: %s (%d batches, %d records, %d bytes) [%s]\n",
			s.Database, s.Table, s.State, s.BatchesProcessed, s.RecordsArchived, s.BytesUploaded, status)
		totalRecords += s.RecordsArchived
		totalBatches += s.BatchesProcessed
		totalBytes += s.BytesUploaded
	}
	fmt.Printf("total: %d tables, %d batches, %d records, %d bytes\n", len(stats), totalBatches, totalRecords, totalBytes)
}

type tableSummary struct {
	Database         string `json:"database"`
	Table            string `json:"table"`
	State            string `json:"state"`
	BatchesProcessed int64  `json:"batches_processed"`
	RecordsArchived  int64  `json:"records_archived"`
	BytesUploaded    int64  `json:"bytes_uploaded"`
	Error            string `json:"error,omitempty"`
}

type runSummary struct {
	Tables []tableSummary `json:"tables"`
}

func summaryPayload(stats []*orchestrator.Stats) runSummary {
	out := runSummary{Tables: make([]tableSummary, 0, len(stats))}
	for _, s := range stats {
		ts := tableSummary{
			Database: s.Database, Table: s.Table, State: string(s.State),
			BatchesProcessed: s.BatchesProcessed, RecordsArchived: s.RecordsArchived, BytesUploaded: s.BytesUploaded,
		}
		if s.Err != nil {
			ts.Error = s.Err.Error()
		}
		out.Tables = append(out.Tables, ts)
	}
	return out
}
