// Package metadatasql persists metadata records in PostgreSQL.
package metadatasql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/metadata-collector/internal/metadata"
)

const DefaultTable = "metadata"

type Store struct {
	db    *pgxpool.Pool
	table string
}

var _ = metadata.Store(&Store{})

// NewStore returns a store writing to table. The table name must have been
// validated by the caller; it is quoted as an identifier.
func NewStore(db *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}

	return &Store{db: db, table: table}
}

func (s *Store) Insert(ctx context.Context, rec metadata.Record) error {
	query := fmt.Sprintf("INSERT INTO %s (json_data) VALUES ($1)", pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Exec(ctx, query, rec.Payload); err != nil {
		return fmt.Errorf("inserting metadata: %w", err)
	}

	return nil
}
