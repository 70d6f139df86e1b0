package transcript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var executed string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			executed = sql
			return pgconn.CommandTag{}, nil
		},
	}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if executed != Schema {
		t.Error("Migrate did not execute the schema DDL")
	}
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var gotSQL string
	var gotArgs []any
	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			gotSQL = sql
			gotArgs = args
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*time.Time)) = now
				return nil
			}}
		},
	}

	rec := &Record{
		ID:         "abc-123",
		AudioURL:   "https://storage.googleapis.com/bucket/abc-123.wav",
		Transcript: "hello",
		Speaker:    SpeakerUser,
	}
	if err := NewPostgresStore(db).Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !strings.Contains(gotSQL, "INSERT INTO messages") {
		t.Errorf("unexpected insert SQL: %q", gotSQL)
	}
	want := []any{"abc-123", rec.AudioURL, "hello", "USER"}
	if len(gotArgs) != len(want) {
		t.Fatalf("insert args = %v; want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg %d = %v; want %v", i, gotArgs[i], want[i])
		}
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v; want the store-assigned %v", rec.CreatedAt, now)
	}
}

func TestPostgresStore_Create_InvalidRecordNeverHitsDB(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			t.Error("Create with an invalid record must not query the database")
			return &mockRow{scanFunc: func(...any) error { return nil }}
		},
	}

	rec := &Record{ID: "abc-123", Speaker: "BOT"}
	err := NewPostgresStore(db).Create(context.Background(), rec)
	if !errors.Is(err, ErrInvalidSpeaker) {
		t.Errorf("Create = %v; want ErrInvalidSpeaker", err)
	}
}

func TestPostgresStore_Create_DuplicateID(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(...any) error {
				return &pgconn.PgError{Code: "23505"}
			}}
		},
	}

	rec := &Record{ID: "abc-123", Speaker: SpeakerUser}
	err := NewPostgresStore(db).Create(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Create on duplicate key = %v; want an already-exists error", err)
	}
}

func TestPostgresStore_FindFirst_NoMatch(t *testing.T) {
	t.Parallel()

	store := NewPostgresStore(&mockDB{})
	rec, err := store.FindFirst(context.Background(), Filter{ID: "missing"})
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if rec != nil {
		t.Errorf("FindFirst = %+v; want nil for no match", rec)
	}
}

func TestPostgresStore_FindFirst_FilterArgs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var gotSQL string
	var gotArgs []any
	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			gotSQL = sql
			gotArgs = args
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*string)) = "abc-123"
				*(dest[1].(*string)) = "https://objects.test/abc-123.wav"
				*(dest[2].(*string)) = "hello"
				*(dest[3].(*string)) = "SYSTEM"
				*(dest[4].(*time.Time)) = now
				return nil
			}}
		},
	}

	rec, err := NewPostgresStore(db).FindFirst(context.Background(),
		Filter{ID: "abc-123", Speaker: SpeakerSystem})
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}

	if !strings.Contains(gotSQL, "id = $1") || !strings.Contains(gotSQL, "speaker = $2") {
		t.Errorf("filter SQL missing placeholders: %q", gotSQL)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "abc-123" || gotArgs[1] != "SYSTEM" {
		t.Errorf("filter args = %v; want [abc-123 SYSTEM]", gotArgs)
	}
	if rec.Speaker != SpeakerSystem || rec.Transcript != "hello" || !rec.CreatedAt.Equal(now) {
		t.Errorf("record = %+v; scanned columns not mapped", rec)
	}
}
