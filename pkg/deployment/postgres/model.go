package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-escrow/pkg/database/postgres"
	"github.com/code-payments/code-escrow/pkg/deployment"
)

const (
	tableName = "escrow__core_deployment"
)

type model struct {
	Name          string    `db:"name"`
	Address       string    `db:"address"`
	ContentHash   string    `db:"content_hash"`
	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *deployment.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		Name:          obj.Name,
		Address:       obj.Address,
		ContentHash:   obj.ContentHash,
		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(obj *model) *deployment.Record {
	return &deployment.Record{
		Name:          obj.Name,
		Address:       obj.Address,
		ContentHash:   obj.ContentHash,
		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(name, address, content_hash, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5)

		ON CONFLICT (name)
		DO UPDATE
			SET address = $2, content_hash = $3, last_updated_at = $5
			WHERE ` + tableName + `.name = $1

		RETURNING name, address, content_hash, created_at, last_updated_at
	`

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.LastUpdatedAt = now

	return tx.QueryRowxContext(
		ctx,
		query,
		m.Name,
		m.Address,
		m.ContentHash,
		m.CreatedAt,
		m.LastUpdatedAt,
	).StructScan(m)
}

func dbGetByName(ctx context.Context, db *sqlx.DB, name string) (*model, error) {
	var res model
	query := `SELECT name, address, content_hash, created_at, last_updated_at FROM ` + tableName + `
		WHERE name = $1
	`

	err := db.GetContext(ctx, &res, query, name)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, deployment.ErrNotFound)
	}
	return &res, nil
}

func dbDelete(ctx context.Context, db *sqlx.DB, name string) error {
	query := `DELETE FROM ` + tableName + `
		WHERE name = $1
	`

	_, err := db.ExecContext(ctx, query, name)
	return err
}
