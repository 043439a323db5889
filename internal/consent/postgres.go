package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/shortontech/botgate/pkg/config"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// validateTableName guards the one identifier interpolated into SQL.
func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("consent: invalid table name %q", name)
	}
	return nil
}

// PGStore keeps flags in a key-value table, one row per visitor and flag.
type PGStore struct {
	db     *sql.DB
	table  string
	prefix string
}

func NewPGStore(db *sql.DB, table, prefix string) (*PGStore, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	return &PGStore{db: db, table: table, prefix: prefix}, nil
}

// OpenPGStore connects with PG_DSN and creates the table when missing.
func OpenPGStore(ctx context.Context, cfg config.Config) (*PGStore, error) {
	db, err := sql.Open("postgres", cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("consent: open postgres: %w", err)
	}
	s, err := NewPGStore(db, cfg.PGTable, cfg.ConsentKeyPrefix)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) Name() string { return "postgres" }

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	visitor_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (visitor_id, key)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("consent: create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PGStore) Save(ctx context.Context, visitorID string, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("consent: begin: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (visitor_id, key, value, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (visitor_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)

	flags := [][2]string{
		{s.prefix + flagDecision, string(rec.Decision)},
		{s.prefix + flagTime, formatTime(rec.At)},
	}
	for _, f := range flags {
		if _, err := tx.ExecContext(ctx, upsert, visitorID, f[0], f[1]); err != nil {
			return fmt.Errorf("consent: upsert %s: %w", f[0], describe(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("consent: commit: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, visitorID string) (Record, error) {
	q := fmt.Sprintf(`SELECT key, value FROM %s WHERE visitor_id = $1 AND key IN ($2, $3)`, s.table)
	rows, err := s.db.QueryContext(ctx, q, visitorID, s.prefix+flagDecision, s.prefix+flagTime)
	if err != nil {
		return Record{}, fmt.Errorf("consent: query: %w", describe(err))
	}
	defer rows.Close()

	var decision, at string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("consent: scan: %w", err)
		}
		switch key {
		case s.prefix + flagDecision:
			decision = value
		case s.prefix + flagTime:
			at = value
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("consent: rows: %w", err)
	}
	return decode(decision, at)
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("consent: postgres ping: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error { return s.db.Close() }

// describe adds the SQLSTATE name to driver errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
