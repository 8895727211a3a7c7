package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// SQLiteStore persists chain entries in an embedded SQLite database.
// SQLite's transactional commit provides the durable-before-ack guarantee.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path with synchronous
// writes, so acknowledged appends survive a crash.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=synchronous(FULL)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS chain_entries (
        sequence INTEGER PRIMARY KEY,
        event_hash TEXT NOT NULL,
        decision_hash TEXT NOT NULL,
        action_id TEXT NOT NULL,
        action_status TEXT NOT NULL,
        sealed_at DATETIME NOT NULL,
        proof_hash TEXT NOT NULL,
        signature TEXT,
        signer_key TEXT,
        prev_chain_hash TEXT NOT NULL,
        chain_hash TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, entry *contracts.ChainEntry) error {
	query := `INSERT INTO chain_entries (
        sequence, event_hash, decision_hash, action_id, action_status,
        sealed_at, proof_hash, signature, signer_key, prev_chain_hash, chain_hash
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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

func (s *SQLiteStore) Load(ctx context.Context) ([]contracts.ChainEntry, error) {
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
		entry, err := scanChainRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanChainRow(rows *sql.Rows) (*contracts.ChainEntry, error) {
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
		return nil, fmt.Errorf("corrupt sealed_at for seq %d: %w", p.Sequence, err)
	}
	p.SealedAt = ts
	p.ActionStatus = contracts.ActionStatus(status)
	p.Signature = signature.String
	p.SignerKey = signerKey.String
	return &entry, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
