// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so the
// binary builds without CGo. Use ":memory:" for a throwaway database in tests.
//
// Schema changes live in migrations/*.sql, embedded into the binary and
// applied by goose on every New. goose records applied versions in its own
// table, so reopening an existing file is a no-op.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps a sql.DB connection pool and hands out one store per table group.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/yamdb.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
//
// The pool is capped at one connection. SQLite serializes writers anyway,
// and an in-memory database exists only inside the connection that made it.
// Foreign keys are enabled through the DSN because the pragma is per
// connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight. In-memory
	// databases silently stay in "memory" journal mode.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if err := migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewFromConn wraps an already open pool without migrating it. Tests use it
// with go-sqlmock.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }
func (db *DB) Categories() *TermDB { return &TermDB{conn: db.conn, table: "categories", resource: "category"} }
func (db *DB) Genres() *TermDB { return &TermDB{conn: db.conn, table: "genres", resource: "genre"} }
func (db *DB) Titles() *TitleDB { return &TitleDB{conn: db.conn} }
func (db *DB) Reviews() *ReviewDB { return &ReviewDB{conn: db.conn} }
func (db *DB) Comments() *CommentDB { return &CommentDB{conn: db.conn} }

func dsn(dbPath string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + params
	}
	return dbPath + "?" + params
}

func migrate(ctx context.Context, conn *sql.DB) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// likePattern turns a search term into a LIKE pattern for "contains",
// escaping the wildcards the user typed. Use with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
