package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-escrow/pkg/database/postgres"
	"github.com/code-payments/code-escrow/pkg/deployment"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed deployment.Store
func New(db *sql.DB) deployment.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Save implements deployment.Store.Save
func (s *store) Save(ctx context.Context, record *deployment.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = pgutil.ExecuteRetryable(func() error {
		return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
			return obj.dbSave(ctx, tx)
		})
	})
	if err != nil {
		return err
	}

	fromModel(obj).CopyTo(record)
	return nil
}

// Get implements deployment.Store.Get
func (s *store) Get(ctx context.Context, name string) (*deployment.Record, error) {
	model, err := dbGetByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}

	return fromModel(model), nil
}

// GetIfContentMatches implements deployment.Store.GetIfContentMatches
func (s *store) GetIfContentMatches(ctx context.Context, name, contentHash string) (*deployment.Record, error) {
	record, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if !record.Matches(contentHash) {
		return nil, deployment.ErrContentMismatch
	}

	return record, nil
}

// Delete implements deployment.Store.Delete
func (s *store) Delete(ctx context.Context, name string) error {
	return dbDelete(ctx, s.db, name)
}
