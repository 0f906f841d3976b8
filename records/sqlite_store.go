package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore appends one row per observation, so concurrent writers and
// other processes can share the database safely.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// observations table exists.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database failed: %w", ErrStoreUnwritable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	_, err = db.Exec(`
    CREATE TABLE IF NOT EXISTS observations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ph REAL NOT NULL,
        tds REAL NOT NULL,
        turbidity REAL NOT NULL,
        temperature REAL NOT NULL,
        prediction TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create table failed: %w", ErrStoreUnwritable, err)
	}

	logger.Info("sqlite record store ready", zap.String("path", path))
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO observations (ph, tds, turbidity, temperature, prediction)
        VALUES (?, ?, ?, ?, ?)`,
		obs.PH, obs.TDS, obs.Turbidity, obs.Temperature, obs.Prediction)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}
	return nil
}

// LoadAll returns every observation in insertion order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT ph, tds, turbidity, temperature, prediction
        FROM observations
        ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	defer rows.Close()

	records := make([]Observation, 0)
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.PH, &obs.TDS, &obs.Turbidity, &obs.Temperature, &obs.Prediction); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
		}
		records = append(records, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	return records, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
