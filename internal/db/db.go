package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/saiten/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Subdirectories of the data directory created by Init.
const (
	ExportsDir     = "exports"
	SubmissionsDir = "submissions"
	LogsDir        = "logs"
)

// FileName is the database file inside the data directory.
const FileName = "saiten.db"

// Init opens the SQLite database at dataDir/saiten.db, migrating it to
// CurrentSchemaVersion, and creates the data subdirectories. Student
// submissions are graded material, so everything is private to the user.
func Init(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	// best-effort, may not work on all platforms
	_ = os.Chmod(dataDir, 0700)

	for _, sub := range []string{ExportsDir, SubmissionsDir, LogsDir} {
		dir := filepath.Join(dataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	// Pragmas in the DSN apply to every pooled connection. foreign_keys makes
	// deleting an assignment cascade to its students.
	dbPath := filepath.Join(dataDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies db_max_open_conns and db_max_idle_conns. Zero leaves
// the database/sql default. The web server and a console may share the file,
// so a small pool reduces SQLITE_BUSY waits.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: assignments and their students
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS assignments (
		  id              TEXT PRIMARY KEY,
		  name            TEXT NOT NULL,
		  source_base     TEXT NOT NULL,
		  submission_dir  TEXT NOT NULL,
		  columns_json    TEXT NOT NULL,
		  checked_at      INTEGER,
		  created_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS students (
		  assignment_id     TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
		  student_id        TEXT NOT NULL,
		  full_name         TEXT NOT NULL,
		  status_text       TEXT NOT NULL,
		  submitted         INTEGER NOT NULL,
		  reviewed          INTEGER NOT NULL DEFAULT 0,
		  feedback          TEXT,
		  auto_feedback     TEXT NOT NULL DEFAULT '',
		  auto_check_result TEXT NOT NULL DEFAULT '',
		  position          INTEGER NOT NULL,
		  row_json          TEXT NOT NULL,
		  PRIMARY KEY (assignment_id, student_id)
		);

		CREATE INDEX IF NOT EXISTS idx_students_assignment_position
		ON students(assignment_id, position);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: track when feedback was last committed
	if version < 2 {
		if _, err := db.Exec(`ALTER TABLE students ADD COLUMN reviewed_at INTEGER`); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks the DSN pragma took effect. WAL lets the console read
// while the server writes.
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
