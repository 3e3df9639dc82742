package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps each collection in its own two-column JSONB table.
// It exists for deployments that already run Postgres; the store is still
// used as a plain document store, with no transactions and no foreign keys,
// so the consistency rules above it hold for either backend.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string, collections []string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	for _, name := range collections {
		// Collection names are compile-time constants, never user input.
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`, name)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Collection(name string) Collection {
	return &postgresCollection{db: s.db, table: name}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresCollection struct {
	db    *sql.DB
	table string
}

func (c *postgresCollection) Find(ctx context.Context, filter Filter) ([]json.RawMessage, error) {
	query := fmt.Sprintf(`SELECT doc FROM %q ORDER BY id`, c.table)
	args := []any{}
	if len(filter) > 0 {
		match, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		query = fmt.Sprintf(`SELECT doc FROM %q WHERE doc @> $1::jsonb ORDER BY id`, c.table)
		args = append(args, string(match))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (c *postgresCollection) FindByID(ctx context.Context, id string) (json.RawMessage, error) {
	var doc []byte
	query := fmt.Sprintf(`SELECT doc FROM %q WHERE id=$1`, c.table)
	err := c.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return json.RawMessage(doc), nil
}

func (c *postgresCollection) Insert(ctx context.Context, id string, doc json.RawMessage) error {
	query := fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES ($1, $2::jsonb)`, c.table)
	if _, err := c.db.ExecContext(ctx, query, id, string(doc)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (c *postgresCollection) Update(ctx context.Context, id string, doc json.RawMessage) error {
	query := fmt.Sprintf(`UPDATE %q SET doc=$2::jsonb WHERE id=$1`, c.table)
	result, err := c.db.ExecContext(ctx, query, id, string(doc))
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *postgresCollection) Remove(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE id=$1`, c.table)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (c *postgresCollection) Count(ctx context.Context, filter Filter) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, c.table)
	args := []any{}
	if len(filter) > 0 {
		match, err := json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshal filter: %w", err)
		}
		query = fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE doc @> $1::jsonb`, c.table)
		args = append(args, string(match))
	}
	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}
