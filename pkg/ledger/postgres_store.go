package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// PostgresStore persists chain entries in PostgreSQL for deployments that
// already run one. With synchronous_commit left at its default, a committed
// insert is on stable storage before Append returns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the chain table. sealed_at is stored as RFC 3339 text,
// not TIMESTAMPTZ: the proof hash covers the nanosecond timestamp and
// TIMESTAMPTZ keeps only microseconds.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS chain_entries (
        sequence BIGINT PRIMARY KEY,
        event_hash TEXT NOT NULL,
        decision_hash TEXT NOT NULL,
        action_id TEXT NOT NULL,
        action_status TEXT NOT NULL,
        sealed_at TEXT NOT NULL,
        proof_hash TEXT NOT NULL,
        signature TEXT,
        signer_key TEXT,
        prev_chain_hash TEXT NOT NULL,
        chain_hash TEXT NOT NULL
    )`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, entry *contracts.ChainEntry) error {
	query := `INSERT INTO chain_entries (
        sequence, event_hash, decision_hash, action_id, action_status,
        sealed_at, proof_hash, signature, signer_key, prev_chain_hash, chain_hash
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	p := &entry.Proof
	_, err := s.db.ExecContext(ctx, query,
		p.Sequence, p.EventHash, p.DecisionHash, p.ActionID, string(p.ActionStatus),
		p.SealedAt.UTC().Format(time.RFC3339Nano), p.ProofHash, p.Signature, p.SignerKey,
		entry.PrevChain, entry.ChainHash,
	)
	if err != nil {
		return fmt.Errorf("insert chain entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]contracts.ChainEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT sequence, event_hash, decision_hash, action_id, action_status,
               sealed_at, proof_hash, signature, signer_key, prev_chain_hash, chain_hash
        FROM chain_entries ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []contracts.ChainEntry
	for rows.Next() {
		entry, err := scanPostgresRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanPostgresRow(rows *sql.Rows) (*contracts.ChainEntry, error) {
	var (
		entry     contracts.ChainEntry
		status    string
		sealedAt  string
		signature sql.NullString
		signerKey sql.NullString
	)
	p := &entry.Proof
	if err := rows.Scan(&p.Sequence, &p.EventHash, &p.DecisionHash, &p.ActionID, &status,
		&sealedAt, &p.ProofHash, &signature, &signerKey, &entry.PrevChain, &entry.ChainHash); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, sealedAt)
	if err != nil {
		return nil, fmt.Errorf("parse sealed_at: %w", err)
	}
	p.SealedAt = ts.UTC()
	p.ActionStatus = contracts.ActionStatus(status)
	p.Signature = signature.String
	p.SignerKey = signerKey.String
	return &entry, nil
}
