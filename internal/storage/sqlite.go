package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore bundles every store contract on a single SQLite file.
// It is the production backing store; the memory stores mirror it for
// tests. The two are selected at process start and never mixed.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB

	History *SQLiteHistory
	Alerts  *SQLiteAlerts
	Rules   *SQLiteRules
	Slots   *SQLiteSlots
	Audit   *SQLiteAudit
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{
		logger: logger.Named("sqlite-store"),
		db:     db,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.History = &SQLiteHistory{db: db}
	s.Alerts = &SQLiteAlerts{db: db}
	s.Rules = &SQLiteRules{db: db}
	s.Slots = &SQLiteSlots{db: db}
	s.Audit = &SQLiteAudit{db: db}

	return s, nil
}

// initialize creates the necessary tables if they don't exist.
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS detection_history (
			slot_id TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			state TEXT NOT NULL,
			confidence REAL NOT NULL,
			qr_payload TEXT,
			failure_reason TEXT,
			ssim_empty REAL,
			ssim_full REAL
		);
		CREATE INDEX IF NOT EXISTS idx_detection_slot_ts ON detection_history(slot_id, timestamp);

		CREATE TABLE IF NOT EXISTS alert_queue (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			type TEXT NOT NULL,
			subject_kind TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			message TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			scheduled_at DATETIME NOT NULL,
			sent_at DATETIME,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_alert_subject ON alert_queue(type, subject_id, status);
		CREATE INDEX IF NOT EXISTS idx_alert_due ON alert_queue(status, scheduled_at);

		CREATE TABLE IF NOT EXISTS alert_rules (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS slots (
			slot_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_audit (
			id TEXT PRIMARY KEY,
			entry_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT NOT NULL,
			reason TEXT,
			at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entry ON alert_audit(entry_id, at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
