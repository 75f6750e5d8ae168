package savestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"kingdomkeep.app/internal/persistence/snapshot"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultSlot is the row key of the single kingdom.
const DefaultSlot = "main"

type SQLStore struct {
	dialect Dialect
	db      *sql.DB
	slot    string
}

// OpenSQLFromEnv opens the store named by DB_DIALECT (sqlite by default),
// DB_SQLITE_PATH and DB_POSTGRES_DSN / DATABASE_URL. defaultSQLitePath is
// used when DB_SQLITE_PATH is unset.
func OpenSQLFromEnv(ctx context.Context, defaultSQLitePath string) (*SQLStore, error) {
	dialectRaw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if dialectRaw == "" {
		dialectRaw = string(DialectSQLite)
	}
	dialect := Dialect(dialectRaw)

	var dsn string
	switch dialect {
	case DialectSQLite:
		dsn = strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if dsn == "" {
			dsn = defaultSQLitePath
		}
	case DialectPostgres:
		dsn = strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", dialectRaw)
	}
	return OpenSQL(ctx, dialect, dsn)
}

func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if dsn == "" {
			return nil, errors.New("sqlite store requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	case DialectPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	s := &SQLStore{dialect: dialect, db: db, slot: DefaultSlot}
	if err := s.applyMigrations(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (s *SQLStore) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		q := fmt.Sprintf("INSERT INTO schema_migrations (version, applied_at) VALUES (%s, %s)", s.bind(1), s.bind(2))
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (snapshot.DocumentV1, error) {
	q := fmt.Sprintf("SELECT payload FROM saves WHERE slot = %s", s.bind(1))
	var payload string
	err := s.db.QueryRowContext(ctx, q, s.slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.DocumentV1{}, ErrNotFound
	}
	if err != nil {
		return snapshot.DocumentV1{}, fmt.Errorf("load save: %w", err)
	}
	doc, _, err := snapshot.Unmarshal([]byte(payload))
	if err != nil {
		return snapshot.DocumentV1{}, err
	}
	return doc, nil
}

func (s *SQLStore) Save(ctx context.Context, doc snapshot.DocumentV1) error {
	raw, err := snapshot.Marshal(doc)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO saves (slot, version, payload, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT (slot) DO UPDATE SET version = excluded.version, payload = excluded.payload, updated_at = excluded.updated_at`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4))
	if _, err := s.db.ExecContext(ctx, q, s.slot, doc.Header.Version, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context) error {
	q := fmt.Sprintf("DELETE FROM saves WHERE slot = %s", s.bind(1))
	if _, err := s.db.ExecContext(ctx, q, s.slot); err != nil {
		return fmt.Errorf("delete save: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
