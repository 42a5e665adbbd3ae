package consumer

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// SaveSettlementsToSQLite writes each settlement to a local SQLite database.
// Lighter sibling of the PostgreSQL sink for single-host deployments.
type SaveSettlementsToSQLite struct {
	db *sql.DB
}

func NewSaveSettlementsToSQLite(config map[string]interface{}) (*SaveSettlementsToSQLite, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok || dbPath == "" {
		return nil, fmt.Errorf("missing db_path in config")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %v", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS settlements (
			payment_id      TEXT PRIMARY KEY,
			module_id       TEXT NOT NULL,
			token           TEXT NOT NULL,
			payer           TEXT NOT NULL,
			recipient       TEXT NOT NULL,
			original_amount INTEGER NOT NULL,
			payer_amount    INTEGER NOT NULL,
			net_amount      INTEGER NOT NULL,
			discount_refund INTEGER NOT NULL,
			residual        INTEGER NOT NULL,
			settled_at      TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_fees (
			payment_id TEXT NOT NULL,
			position   INTEGER NOT NULL,
			recipient  TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			PRIMARY KEY (payment_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_module ON settlements(module_id)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("error initializing SQLite schema: %v", err)
		}
	}

	return &SaveSettlementsToSQLite{db: db}, nil
}

func (s *SaveSettlementsToSQLite) Process(ctx context.Context, msg processor.Message) error {
	settlement, err := processor.ExtractSettlement(msg)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO settlements
			(payment_id, module_id, token, payer, recipient, original_amount,
			 payer_amount, net_amount, discount_refund, residual, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.PaymentID,
		settlement.ModuleID.String(),
		settlement.Token.String(),
		settlement.Payer.String(),
		settlement.Recipient.String(),
		settlement.OriginalAmount,
		settlement.PayerAmount,
		settlement.NetAmount,
		settlement.DiscountRefund,
		settlement.Residual,
		settlement.SettledAt,
	); err != nil {
		return fmt.Errorf("error inserting settlement %s: %v", settlement.PaymentID, err)
	}

	for i, fee := range settlement.Fees {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO settlement_fees (payment_id, position, recipient, amount)
			VALUES (?, ?, ?, ?)`,
			settlement.PaymentID, i, fee.Recipient.String(), fee.Amount,
		); err != nil {
			return fmt.Errorf("error inserting fee for %s: %v", settlement.PaymentID, err)
		}
	}

	return tx.Commit()
}

func (s *SaveSettlementsToSQLite) Close() error {
	return s.db.Close()
}
