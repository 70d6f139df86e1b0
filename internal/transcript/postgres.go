package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the messages table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
    id                 TEXT PRIMARY KEY,
    content_url        TEXT NOT NULL,
    content_transcript TEXT NOT NULL DEFAULT '',
    speaker            TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_speaker ON messages(speaker);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL messages table.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool. Call [PostgresStore.Migrate] once before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the messages table and indexes
// if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("transcript: migrate: %w", err)
	}
	return nil
}

// Create implements [Store]. It validates the record and returns an error if
// a record with the same ID already exists.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO messages (id, content_url, content_transcript, speaker)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		rec.ID, rec.AudioURL, rec.Transcript, string(rec.Speaker),
	).Scan(&rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("transcript: record %q already exists", rec.ID)
		}
		return fmt.Errorf("transcript: create: %w", err)
	}
	return nil
}

// FindFirst implements [Store]. It returns the oldest matching record, or
// (nil, nil) when nothing matches.
func (s *PostgresStore) FindFirst(ctx context.Context, f Filter) (*Record, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if f.ID != "" {
		conditions = append(conditions, "id = "+next(f.ID))
	}
	if f.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(string(f.Speaker)))
	}

	query := "SELECT id, content_url, content_transcript, speaker, created_at\n" +
		"FROM   messages\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at\n" +
		"LIMIT  1"

	var rec Record
	var speaker string
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&rec.ID, &rec.AudioURL, &rec.Transcript, &speaker, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: find first: %w", err)
	}
	rec.Speaker = Speaker(speaker)
	return &rec, nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique-violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
