package database

import (
	"database/sql"
	"fmt"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/sweep"

	_ "github.com/lib/pq"
)

var DebugLog func(string, ...interface{})

type DB struct {
	conn    *sql.DB
	enabled bool
}

// Run lifecycle inside the tracking table.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type RunRecord struct {
	SessionID  string
	RunPath    string
	Task       string
	Model      string
	LR         float64
	Scheduler  string
	SeqLen     int
	Segments   int
	MemorySize int
	BatchSize  int
	TargetBS   int
	Seed       int
	Status     string
	ExitCode   sql.NullInt64
	StartedAt  sql.NullTime
	FinishedAt sql.NullTime
}

const DBName = "armt_runs"

func New(cfg *config.Database) (*DB, error) {
	db := &DB{
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		fmt.Println("[INF] Database connection disabled.")
		return db, nil
	}

	postgresConnStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password)

	postgresConn, err := sql.Open("postgres", postgresConnStr)
	if err != nil {
		fmt.Println("[INF] Database connection disabled.")
		return db, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer postgresConn.Close()

	if err := postgresConn.Ping(); err != nil {
		fmt.Println("[INF] Database connection disabled.")
		return db, fmt.Errorf("failed to ping postgres: %w", err)
	}

	var exists bool
	err = postgresConn.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", DBName).Scan(&exists)
	if err != nil {
		fmt.Println("[INF] Database connection disabled.")
		return db, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		_, err = postgresConn.Exec(fmt.Sprintf("CREATE DATABASE %s", DBName))
		if err != nil {
			fmt.Println("[INF] Database connection disabled.")
			return db, fmt.Errorf("failed to create database: %w", err)
		}
		fmt.Printf("[INF] Database '%s' created successfully.\n", DBName)
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, DBName)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		fmt.Println("[INF] Database connection disabled.")
		return db, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		fmt.Println("[INF] Database connection disabled.")
		return db, fmt.Errorf("failed to ping database: %w", err)
	}

	db.conn = conn
	fmt.Println("[INF] Database connection active.")

	if err := db.initSchema(); err != nil {
		return db, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func (db *DB) initSchema() error {
	if !db.enabled || db.conn == nil {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id SERIAL PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		run_path VARCHAR(512) NOT NULL,
		task VARCHAR(64) NOT NULL,
		model VARCHAR(255) NOT NULL,
		lr DOUBLE PRECISION NOT NULL,
		scheduler VARCHAR(64) NOT NULL DEFAULT '',
		seq_len INTEGER NOT NULL,
		segments INTEGER NOT NULL,
		memory_size INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		target_batch_size INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'QUEUED',
		exit_code INTEGER,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		UNIQUE(session_id, run_path)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) IsEnabled() bool {
	return db.enabled && db.conn != nil
}

// RecordPlanned inserts every resolved run of a session as QUEUED before
// the first launch, so an aborted session still shows what never ran.
func (db *DB) RecordPlanned(sessionID string, runs []sweep.RunConfig) error {
	if !db.IsEnabled() {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rc := range runs {
		if DebugLog != nil {
			DebugLog("recording run %s as QUEUED in database", rc.ID())
		}
		_, err := tx.Exec(`
			INSERT INTO runs (session_id, run_path, task, model, lr, scheduler,
				seq_len, segments, memory_size, batch_size, target_batch_size, seed, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'QUEUED')
		`, sessionID, rc.ID(), rc.Task, rc.Model, rc.LearningRate, rc.Scheduler,
			rc.InputSeqLen, rc.SegmentCount, rc.MemorySize, rc.BatchSize, rc.TargetBatchSize, rc.Seed)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkRunning stamps a run as launched.
func (db *DB) MarkRunning(sessionID, runPath string) error {
	if !db.IsEnabled() {
		return nil
	}

	if DebugLog != nil {
		DebugLog("updating run %s to RUNNING in database", runPath)
	}
	_, err := db.conn.Exec(`
		UPDATE runs
		SET status = 'RUNNING', started_at = NOW()
		WHERE session_id = $1 AND run_path = $2
	`, sessionID, runPath)
	return err
}

// MarkFinished records the terminal status of a run together with the
// training process exit code.
func (db *DB) MarkFinished(sessionID, runPath, status string, exitCode int) error {
	if !db.IsEnabled() {
		return nil
	}

	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %s", status)
	}

	if DebugLog != nil {
		DebugLog("updating run %s to %s (exit code %d) in database", runPath, status, exitCode)
	}
	_, err := db.conn.Exec(`
		UPDATE runs
		SET status = $3, exit_code = $4, finished_at = NOW()
		WHERE session_id = $1 AND run_path = $2
	`, sessionID, runPath, status, exitCode)
	return err
}

// QueryRuns returns the tracked runs of one task, newest sessions first.
func (db *DB) QueryRuns(task string, status string) ([]RunRecord, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	query := `
		SELECT session_id, run_path, task, model, lr, scheduler, seq_len, segments,
			memory_size, batch_size, target_batch_size, seed, status, exit_code,
			started_at, finished_at
		FROM runs
		WHERE task = $1
	`
	args := []interface{}{task}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}

	query += " ORDER BY id DESC"

	return db.queryRecords(query, args...)
}

// QueryAllRuns returns every tracked run, optionally filtered by status.
func (db *DB) QueryAllRuns(status string) ([]RunRecord, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	query := `
		SELECT session_id, run_path, task, model, lr, scheduler, seq_len, segments,
			memory_size, batch_size, target_batch_size, seed, status, exit_code,
			started_at, finished_at
		FROM runs
	`
	var args []interface{}

	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}

	query += " ORDER BY task, id DESC"

	return db.queryRecords(query, args...)
}

func (db *DB) queryRecords(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.SessionID, &r.RunPath, &r.Task, &r.Model, &r.LR, &r.Scheduler,
			&r.SeqLen, &r.Segments, &r.MemorySize, &r.BatchSize, &r.TargetBS, &r.Seed,
			&r.Status, &r.ExitCode, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}
