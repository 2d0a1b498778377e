package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the journal in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS journal (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL,
        ts INTEGER NOT NULL,
        kind TEXT NOT NULL,
        pile_id TEXT NOT NULL DEFAULT '',
        user_id TEXT NOT NULL DEFAULT '',
        ticket TEXT NOT NULL DEFAULT '',
        payload TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS journal_ts ON journal(ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal (id, ts, kind, pile_id, user_id, ticket, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UnixNano(), rec.Kind, rec.PileID, rec.UserID, rec.Ticket, string(rec.Payload))
	return err
}

// Query returns matching records in time order.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var args []any
	where := `WHERE 1=1`
	if f.Kind != "" {
		where += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.PileID != "" {
		where += ` AND pile_id = ?`
		args = append(args, f.PileID)
	}
	if !f.Since.IsZero() {
		where += ` AND ts >= ?`
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		where += ` AND ts <= ?`
		args = append(args, f.Until.UnixNano())
	}
	query := `SELECT id, ts, kind, pile_id, user_id, ticket, payload FROM journal ` + where + ` ORDER BY ts DESC, seq DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			ts      int64
			payload string
		)
		if err := rows.Scan(&r.ID, &ts, &r.Kind, &r.PileID, &r.UserID, &r.Ticket, &payload); err != nil {
			return nil, err
		}
		r.Time = timeFromNanos(ts)
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func timeFromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
