// Package sqlite is a persistent vector store on the pure-Go SQLite driver.
// Similarity is computed inside SQL by the vec_cosine scalar function over
// float32 BLOB embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlitedrv "modernc.org/sqlite"

	"semsearch/internal/domain"
	"semsearch/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL,
    distance TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    text TEXT NOT NULL,
    embedding BLOB NOT NULL,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_text ON records (collection, text);
`

var registerOnce sync.Once

// Storage keeps collections and records in two tables.
type Storage struct {
	db *sql.DB
}

// NewStorage opens (or creates) the database at path. ":memory:" gives an
// ephemeral database bound to a single connection.
func NewStorage(path string) (*Storage, error) {
	registerOnce.Do(registerFunctions)

	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %w", domain.ErrStore, err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStore, path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", domain.ErrStore, err)
	}
	return &Storage{db: db}, nil
}

// dsn adds per-connection pragmas for file databases: WAL lets readers run
// beside a writer, busy_timeout makes writers wait instead of failing, and
// immediate transactions take the write lock up front.
func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (s *Storage) CreateCollection(ctx context.Context, spec domain.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrStore, spec.Dimension)
	}
	if spec.Distance != domain.Cosine {
		return fmt.Errorf("%w: unsupported distance %q", domain.ErrStore, spec.Distance)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, distance) VALUES (?, ?, ?)`,
		spec.Name, spec.Dimension, string(spec.Distance))
	if err != nil {
		return fmt.Errorf("%w: create collection %q: %w", domain.ErrStore, spec.Name, err)
	}
	return nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("%w: delete records of %q: %w", domain.ErrStore, name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: delete collection %q: %w", domain.ErrStore, name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

func (s *Storage) DescribeCollection(ctx context.Context, name string) (domain.CollectionSpec, bool, error) {
	spec := domain.CollectionSpec{Name: name}
	var distance string
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension, distance FROM collections WHERE name = ?`, name,
	).Scan(&spec.Dimension, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollectionSpec{}, false, nil
	}
	if err != nil {
		return domain.CollectionSpec{}, false, fmt.Errorf("%w: describe %q: %w", domain.ErrStore, name, err)
	}
	spec.Distance = domain.Distance(distance)
	return spec, true, nil
}

// Upsert writes the batch in one transaction; any rejected record rolls back
// the whole batch.
func (s *Storage) Upsert(ctx context.Context, collection string, records []domain.Record) error {
	spec, err := s.mustDescribe(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != spec.Dimension {
			return fmt.Errorf("%w: %w: got %d, collection %q expects %d",
				domain.ErrStore, domain.ErrDimensionMismatch, len(r.Vector), collection, spec.Dimension)
		}
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, text, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET text = excluded.text, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Text, vectorstore.EncodeVector(r.Vector)); err != nil {
			return fmt.Errorf("%w: insert %s: %w", domain.ErrStore, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

// Query ranks by vec_cosine, then by insertion order.
func (s *Storage) Query(ctx context.Context, collection string, vector []float32, k int) ([]domain.Match, error) {
	spec, err := s.mustDescribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != spec.Dimension {
		return nil, fmt.Errorf("%w: %w: query has %d, collection %q expects %d",
			domain.ErrStore, domain.ErrDimensionMismatch, len(vector), collection, spec.Dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrStore, k)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, vec_cosine(embedding, ?) AS score
		 FROM records
		 WHERE collection = ?
		 ORDER BY score DESC, seq ASC
		 LIMIT ?`,
		vectorstore.EncodeVector(vector), collection, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", domain.ErrStore, collection, err)
	}
	defer rows.Close()

	out := make([]domain.Match, 0, k)
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.ID, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStore, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return out, nil
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.mustDescribe(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %q: %w", domain.ErrStore, collection, err)
	}
	return n, nil
}

func (s *Storage) HasText(ctx context.Context, collection, text string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE collection = ? AND text = ? LIMIT 1`, collection, text,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup text in %q: %w", domain.ErrStore, collection, err)
	}
	return true, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) mustDescribe(ctx context.Context, collection string) (domain.CollectionSpec, error) {
	spec, ok, err := s.DescribeCollection(ctx, collection)
	if err != nil {
		return spec, err
	}
	if !ok {
		return spec, fmt.Errorf("%w: %w: %q", domain.ErrStore, domain.ErrCollectionNotFound, collection)
	}
	return spec, nil
}

// registerFunctions makes vec_cosine available on connections opened afterwards.
// Duplicate registration errors are ignored.
func registerFunctions() {
	_ = sqlitedrv.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosine)
}

func vecCosine(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_cosine: expected 2 arguments, got %d", len(args))
	}
	a, err := asVector(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asVector(args[1])
	if err != nil {
		return nil, err
	}
	return vectorstore.Cosine(a, b), nil
}

func asVector(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return vectorstore.DecodeVector(v)
	default:
		return nil, fmt.Errorf("vec_cosine: unsupported argument type %T; want BLOB", arg)
	}
}

var _ domain.VectorStore = (*Storage)(nil)
