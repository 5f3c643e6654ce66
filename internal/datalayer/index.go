package datalayer

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// IndexEntry is one row of the document index.
type IndexEntry struct {
	Path       string
	Collection string
	Extension  string
	IndexedAt  time.Time
}

// Index tracks which document paths belong to which collection. It never
// stores document contents.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the SQLite index at path and applies
// pending migrations.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errors.Wrapf(err, "create index directory for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open index %s", path)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping index %s", path)
	}
	if _, err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewIndex(db), nil
}

// NewIndex wraps an already-migrated database handle.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// Migrate brings the index schema up to date and returns the resulting version.
func Migrate(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, errors.Wrap(err, "load index migrations")
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = src.Close()
		return 0, errors.Wrap(err, "init index migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = src.Close()
		return 0, errors.Wrap(err, "init index migrator")
	}
	// m.Close would also close db, which the caller owns.
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, errors.Wrap(err, "migrate index")
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, errors.Wrap(err, "read index version")
	}
	if dirty {
		return version, errors.Newf("index schema version %d is dirty", version)
	}
	return version, nil
}

// Migrate applies pending migrations to this index.
func (ix *Index) Migrate() (uint, error) {
	return Migrate(ix.db)
}

// Upsert records or refreshes a document path.
func (ix *Index) Upsert(ctx context.Context, e IndexEntry) error {
	if e.IndexedAt.IsZero() {
		e.IndexedAt = time.Now()
	}
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO documents (path, collection, extension, indexed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET collection = excluded.collection, extension = excluded.extension, indexed_at = excluded.indexed_at`,
		e.Path, e.Collection, e.Extension, e.IndexedAt.Unix())
	if err != nil {
		return errors.Wrapf(err, "index %s", e.Path)
	}
	return nil
}

// Delete drops a path from the index.
func (ix *Index) Delete(ctx context.Context, path string) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return errors.Wrapf(err, "unindex %s", path)
	}
	return nil
}

// Paths returns every indexed path for a collection, sorted.
func (ix *Index) Paths(ctx context.Context, collection string) ([]string, error) {
	return ix.ListPaths(ctx, QueryArgs{Collection: collection})
}

// ListPaths returns indexed paths for a collection, filtered and sorted by
// path. A non-positive First means no limit.
func (ix *Index) ListPaths(ctx context.Context, args QueryArgs) ([]string, error) {
	query, params, err := buildListQuery(args)
	if err != nil {
		return nil, err
	}
	rows, err := ix.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", args.Collection)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrapf(err, "scan %s", args.Collection)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "list %s", args.Collection)
	}
	return out, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func buildListQuery(args QueryArgs) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString("SELECT path FROM documents WHERE collection = ?")
	params := []interface{}{args.Collection}

	for _, f := range args.FilterChain {
		column, ok := filterColumns[f.Field]
		if !ok {
			return "", nil, errors.Newf("unsupported filter field %q", f.Field)
		}
		switch f.Op {
		case FilterEq:
			b.WriteString(" AND " + column + " = ?")
			params = append(params, f.Value)
		case FilterPrefix:
			b.WriteString(" AND " + column + ` LIKE ? ESCAPE '\'`)
			params = append(params, escapeLike(f.Value)+"%")
		default:
			return "", nil, errors.Newf("unsupported filter operator %q", f.Op)
		}
	}
	b.WriteString(" ORDER BY path")
	if args.First > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, args.First)
	}
	return b.String(), params, nil
}

var filterColumns = map[string]string{
	"path":      "path",
	"extension": "extension",
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
