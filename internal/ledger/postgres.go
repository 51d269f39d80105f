package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS certificates (
	cert_id         TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	course          TEXT NOT NULL,
	date            TEXT NOT NULL,
	signature       TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	additional_data JSONB NOT NULL DEFAULT '{}'
)`

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by the certificates table,
// creating it when missing.
func NewPostgresStore(ctx context.Context, db *sqlx.DB) (Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, err
	}
	return &postgresStore{db: db}, nil
}

func (r *postgresStore) Put(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO certificates (
			cert_id, name, course, date, signature, content_hash, created_at, additional_data
		) VALUES (
			:cert_id, :name, :course, :date, :signature, :content_hash, :created_at, :additional_data
		)`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *postgresStore) Get(ctx context.Context, certID string) (*Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM certificates WHERE cert_id = $1", certID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
