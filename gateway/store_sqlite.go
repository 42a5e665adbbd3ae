package gateway

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists payment status in a local SQLite database so
// idempotency survives gateway restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %v", err)
	}
	if err := initializeStatusDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initializeStatusDatabase(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_status (
			payment_id TEXT PRIMARY KEY,
			settled    INTEGER NOT NULL,
			settled_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_status_settled_at ON payment_status(settled_at)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(paymentID string) (PaymentStatus, bool, error) {
	var status PaymentStatus
	var settled int
	var settledAt time.Time
	err := s.db.QueryRow(
		`SELECT payment_id, settled, settled_at FROM payment_status WHERE payment_id = ?`,
		paymentID,
	).Scan(&status.PaymentID, &settled, &settledAt)
	if err == sql.ErrNoRows {
		return PaymentStatus{}, false, nil
	}
	if err != nil {
		return PaymentStatus{}, false, fmt.Errorf("error querying payment status: %v", err)
	}
	status.Settled = settled != 0
	status.SettledAt = settledAt
	return status, true, nil
}

func (s *SQLiteStore) Put(status PaymentStatus) error {
	settled := 0
	if status.Settled {
		settled = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO payment_status (payment_id, settled, settled_at) VALUES (?, ?, ?)`,
		status.PaymentID, settled, status.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("error saving payment status: %v", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
