package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements AuditLog using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS opportunity_audit (
	id             TEXT PRIMARY KEY,
	seq            BIGINT NOT NULL,
	token          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	accepted       BOOLEAN NOT NULL,
	disqualified   BOOLEAN NOT NULL,
	reason         TEXT NOT NULL,
	gross_profit   DOUBLE PRECISION NOT NULL,
	estimated_cost DOUBLE PRECISION NOT NULL,
	net_profit     DOUBLE PRECISION NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	risk_flags     TEXT[] NOT NULL,
	intent_count   INTEGER NOT NULL,
	tx_hashes      TEXT[] NOT NULL,
	observed_at    TIMESTAMPTZ NOT NULL,
	scored_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS submission_audit (
	plan_id       TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	attempts      INTEGER NOT NULL,
	tx_hashes     TEXT[] NOT NULL,
	bundle_hash   TEXT NOT NULL,
	block         BIGINT NOT NULL,
	gas_used      BIGINT NOT NULL,
	realized_cost DOUBLE PRECISION NOT NULL,
	max_cost      DOUBLE PRECISION NOT NULL,
	reason        TEXT NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);`

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return NewPostgresStorageWithDB(db, cfg.Logger), nil
}

// NewPostgresStorageWithDB wraps an existing connection.
func NewPostgresStorageWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the audit tables if they do not exist.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// RecordCandidate inserts one scored candidate.
func (p *PostgresStorage) RecordCandidate(ctx context.Context, rec *types.AuditRecord) error {
	query := `
		INSERT INTO opportunity_audit (
			id, seq, token, kind, accepted, disqualified, reason,
			gross_profit, estimated_cost, net_profit, confidence,
			risk_flags, intent_count, tx_hashes, observed_at, scored_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	flags := rec.RiskFlags
	if flags == nil {
		flags = []string{}
	}
	hashes := rec.TxHashes
	if hashes == nil {
		hashes = []string{}
	}

	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		int64(rec.Seq),
		rec.Token,
		rec.Kind,
		rec.Accepted,
		rec.Disqualified,
		rec.Reason,
		rec.GrossProfit,
		rec.EstimatedCost,
		rec.NetProfit,
		rec.Confidence,
		pq.Array(flags),
		rec.IntentCount,
		pq.Array(hashes),
		rec.ObservedAt,
		rec.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	p.logger.Debug("audit-record-stored",
		zap.String("id", rec.ID),
		zap.Uint64("seq", rec.Seq),
		zap.Bool("accepted", rec.Accepted))

	return nil
}

// RecordSubmission inserts a plan's terminal outcome.
func (p *PostgresStorage) RecordSubmission(ctx context.Context, res *types.SubmissionResult) error {
	query := `
		INSERT INTO submission_audit (
			plan_id, state, attempts, tx_hashes, bundle_hash, block,
			gas_used, realized_cost, max_cost, reason, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	hashes := make([]string, len(res.TxHashes))
	for i, h := range res.TxHashes {
		hashes[i] = h.Hex()
	}

	_, err := p.db.ExecContext(ctx, query,
		res.PlanID,
		res.State.String(),
		res.Attempts,
		pq.Array(hashes),
		res.BundleHash,
		int64(res.Block),
		int64(res.GasUsed),
		res.RealizedCost,
		res.MaxCost,
		res.Reason,
		res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	p.logger.Debug("submission-stored",
		zap.String("plan-id", res.PlanID),
		zap.String("state", res.State.String()))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
