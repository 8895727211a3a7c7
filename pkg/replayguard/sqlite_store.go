package replayguard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// SQLiteStore persists replay records in an embedded SQLite database so the
// guard's memory survives restarts.
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

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS replay_records (
        event_hash TEXT PRIMARY KEY,
        first_seen DATETIME NOT NULL,
        nonce TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_replay_first_seen ON replay_records(first_seen);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, eventHash string) (contracts.ReplayRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_hash, first_seen, nonce FROM replay_records WHERE event_hash = ?`, eventHash)

	var rec contracts.ReplayRecord
	var firstSeen string
	if err := row.Scan(&rec.EventHash, &firstSeen, &rec.Nonce); err != nil {
		if err == sql.ErrNoRows {
			return contracts.ReplayRecord{}, false, nil
		}
		return contracts.ReplayRecord{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return contracts.ReplayRecord{}, false, fmt.Errorf("corrupt first_seen for %s: %w", eventHash, err)
	}
	rec.FirstSeen = ts
	return rec, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec contracts.ReplayRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replay_records (event_hash, first_seen, nonce) VALUES (?, ?, ?)`,
		rec.EventHash, rec.FirstSeen.UTC().Format(time.RFC3339Nano), rec.Nonce)
	if err != nil {
		return fmt.Errorf("insert replay record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EvictBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_records WHERE first_seen < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]contracts.ReplayRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_hash, first_seen, nonce FROM replay_records`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.ReplayRecord
	for rows.Next() {
		var rec contracts.ReplayRecord
		var firstSeen string
		if err := rows.Scan(&rec.EventHash, &firstSeen, &rec.Nonce); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, firstSeen)
		if err != nil {
			return nil, fmt.Errorf("corrupt first_seen for %s: %w", rec.EventHash, err)
		}
		rec.FirstSeen = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
