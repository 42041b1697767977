// Package sqlstore provides SQLite and PostgreSQL implementations of
// record.Store. The schema is managed with golang-migrate.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/logging"
)

const (
	// DefaultSQLiteFile is used when no file is configured.
	DefaultSQLiteFile = "blazor-net-app.db"
	// DefaultMaxOpenConns applies to postgres pools.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns applies to postgres pools.
	DefaultMaxIdleConns = 5
)

const selectColumns = `SELECT id, title, description, is_completed, created_at, completed_at FROM todo_items`

// Config holds settings shared by both dialects.
type Config struct {
	// FilePath is the SQLite database file. Use ":memory:" for tests.
	FilePath string
	// ConnectionString is the PostgreSQL DSN.
	ConnectionString string
	// Seed inserts the welcome records when the table is empty.
	Seed         bool
	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultSQLiteFile
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	return c
}

// Store is a database/sql backed record.Store.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  logging.ServiceLogger
	now     func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database and migrates it.
func OpenSQLite(ctx context.Context, cfg Config, logger logging.ServiceLogger) (*Store, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open(sqliteDialect.driverName, cfg.FilePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return open(ctx, db, sqliteDialect, cfg, logger)
}

// OpenPostgres connects to PostgreSQL and migrates the schema.
func OpenPostgres(ctx context.Context, cfg Config, logger logging.ServiceLogger) (*Store, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("PostgreSQL connection string is required")
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open(postgresDialect.driverName, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return open(ctx, db, postgresDialect, cfg, logger)
}

func open(ctx context.Context, db *sql.DB, d dialect, cfg Config, logger logging.ServiceLogger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if err := runMigrations(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, dialect: d, logger: logger, now: time.Now}

	if cfg.Seed {
		if err := s.seed(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed records: %w", err)
		}
	}

	logger.Debug("record store ready", logging.LogFields{"dialect": d.name})
	return s, nil
}

func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM todo_items`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, draft := range record.SeedDrafts() {
		if _, err := s.Create(ctx, draft); err != nil {
			return err
		}
	}
	s.logger.Info("seeded record store", logging.LogFields{"count": len(record.SeedDrafts())})
	return nil
}

func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	items := make([]record.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (record.Record, error) {
	return s.get(ctx, s.db, id)
}

func (s *Store) Create(ctx context.Context, draft record.Draft) (record.Record, error) {
	r := record.New(draft, s.now())
	if err := record.Validate(r); err != nil {
		return record.Record{}, err
	}

	query := s.dialect.rebind(`INSERT INTO todo_items (title, description, is_completed, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowContext(ctx, query,
		r.Title, nullString(r.Description), r.IsCompleted, r.CreatedAt, nullTime(r.CompletedAt),
	).Scan(&r.ID)
	if err != nil {
		return record.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return r, nil
}

func (s *Store) Update(ctx context.Context, id int64, changes record.Changes) (record.Record, error) {
	var updated record.Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		current.Apply(changes, s.now())
		if err := record.Validate(current); err != nil {
			return err
		}

		query := s.dialect.rebind(`UPDATE todo_items
			SET title = ?, description = ?, is_completed = ?, completed_at = ?
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, query,
			current.Title, nullString(current.Description), current.IsCompleted, nullTime(current.CompletedAt), id,
		); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		updated = current
		return nil
	})
	return updated, err
}

func (s *Store) Delete(ctx context.Context, id int64) (record.Record, error) {
	var deleted record.Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM todo_items WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		deleted = current
		return nil
	})
	return deleted, err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryer, id int64) (record.Record, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(selectColumns+` WHERE id = ?`), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	return r, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("failed to rollback transaction", err, nil)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (record.Record, error) {
	var (
		r           record.Record
		description sql.NullString
		completedAt sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.Title, &description, &r.IsCompleted, &r.CreatedAt, &completedAt); err != nil {
		return record.Record{}, err
	}
	if description.Valid {
		d := description.String
		r.Description = &d
	}
	if completedAt.Valid {
		c := completedAt.Time.UTC()
		r.CompletedAt = &c
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
