package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// SaveSettlementsToPostgreSQL persists settlement records in batches.
type SaveSettlementsToPostgreSQL struct {
	db              *sql.DB
	batchSize       int
	settlementBatch []processor.Settlement
	stats           struct {
		messagesReceived int64
		batchesFlushed   int64
		lastProcessedAt  time.Time
	}
}

type SettlementsPostgreSQLConfig struct {
	ConnectionString string
	BatchSize        int
}

func parseSettlementsPostgreSQLConfig(config map[string]interface{}) (SettlementsPostgreSQLConfig, error) {
	var pgConfig SettlementsPostgreSQLConfig

	pgConfig.BatchSize = 100
	if batchSize, ok := config["batch_size"].(int); ok {
		pgConfig.BatchSize = batchSize
	}

	connStr, ok := config["connection_string"].(string)
	if !ok || connStr == "" {
		return pgConfig, fmt.Errorf("missing or empty connection_string in config")
	}
	pgConfig.ConnectionString = connStr

	return pgConfig, nil
}

func NewSaveSettlementsToPostgreSQL(config map[string]interface{}) (*SaveSettlementsToPostgreSQL, error) {
	pgConfig, err := parseSettlementsPostgreSQLConfig(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", pgConfig.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	if err := initializeSettlementDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return &SaveSettlementsToPostgreSQL{
		db:        db,
		batchSize: pgConfig.BatchSize,
	}, nil
}

func initializeSettlementDatabase(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS settlements (
			id               BIGSERIAL PRIMARY KEY,
			payment_id       VARCHAR(64) NOT NULL UNIQUE,
			module_id        VARCHAR(64) NOT NULL,
			token            VARCHAR(64) NOT NULL,
			payer            VARCHAR(64) NOT NULL,
			recipient        VARCHAR(64) NOT NULL,
			original_amount  NUMERIC(20,0) NOT NULL,
			payer_amount     NUMERIC(20,0) NOT NULL,
			net_amount       NUMERIC(20,0) NOT NULL,
			total_fees       NUMERIC(20,0) NOT NULL,
			discount_refund  NUMERIC(20,0) NOT NULL,
			residual         NUMERIC(20,0) NOT NULL,
			settled_at       TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settlement_fees (
			id          BIGSERIAL PRIMARY KEY,
			payment_id  VARCHAR(64) NOT NULL,
			position    INT NOT NULL,
			recipient   VARCHAR(64) NOT NULL,
			amount      NUMERIC(20,0) NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_settlements_module ON settlements(module_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_settled_at ON settlements(settled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_fees_payment ON settlement_fees(payment_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query: %v", err)
		}
	}
	return nil
}

func (s *SaveSettlementsToPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
	settlement, err := processor.ExtractSettlement(msg)
	if err != nil {
		return err
	}

	s.stats.messagesReceived++
	s.stats.lastProcessedAt = time.Now()

	s.settlementBatch = append(s.settlementBatch, settlement)
	if len(s.settlementBatch) >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes the pending batch in a single transaction.
func (s *SaveSettlementsToPostgreSQL) Flush(ctx context.Context) error {
	if len(s.settlementBatch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	settlementStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO settlements
			(payment_id, module_id, token, payer, recipient, original_amount,
			 payer_amount, net_amount, total_fees, discount_refund, residual, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (payment_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("error preparing settlement statement: %v", err)
	}
	defer settlementStmt.Close()

	feeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO settlement_fees (payment_id, position, recipient, amount)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("error preparing fee statement: %v", err)
	}
	defer feeStmt.Close()

	for _, settlement := range s.settlementBatch {
		var totalFees uint64
		for _, fee := range settlement.Fees {
			totalFees += fee.Amount
		}
		if _, err := settlementStmt.ExecContext(ctx,
			settlement.PaymentID,
			settlement.ModuleID.String(),
			settlement.Token.String(),
			settlement.Payer.String(),
			settlement.Recipient.String(),
			settlement.OriginalAmount,
			settlement.PayerAmount,
			settlement.NetAmount,
			totalFees,
			settlement.DiscountRefund,
			settlement.Residual,
			settlement.SettledAt,
		); err != nil {
			return fmt.Errorf("error inserting settlement %s: %v", settlement.PaymentID, err)
		}
		for i, fee := range settlement.Fees {
			if _, err := feeStmt.ExecContext(ctx,
				settlement.PaymentID, i, fee.Recipient.String(), fee.Amount,
			); err != nil {
				return fmt.Errorf("error inserting fee for %s: %v", settlement.PaymentID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing settlement batch: %v", err)
	}

	s.stats.batchesFlushed++
	log.Printf("SaveSettlementsToPostgreSQL: flushed %d settlements", len(s.settlementBatch))
	s.settlementBatch = s.settlementBatch[:0]
	return nil
}

func (s *SaveSettlementsToPostgreSQL) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		log.Printf("SaveSettlementsToPostgreSQL: error flushing on close: %v", err)
	}
	return s.db.Close()
}
