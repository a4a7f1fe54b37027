package db

import (
	"context"
	"errors"

	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StandDB reads the stand directory. Stand rows are owned by the stand
// service; the order flow only ever reads them.
type StandDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewStandDB(dbPool *pgxpool.Pool, logger *logger.Logger) *StandDB {
	return &StandDB{
		dbPool: dbPool,
		logger: logger,
	}
}

func (d *StandDB) GetByID(ctx context.Context, id string) (*models.Stand, error) {
	var stand models.Stand
	err := d.dbPool.QueryRow(ctx, `
        SELECT id, name, entrepreneur_id, status
        FROM stands
        WHERE id = $1
    `, id).Scan(&stand.ID, &stand.Name, &stand.EntrepreneurID, &stand.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stand %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &stand, nil
}

func (d *StandDB) ListActive(ctx context.Context) ([]models.Stand, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT id, name, entrepreneur_id, status
        FROM stands
        WHERE status = $1
        ORDER BY created_at DESC
    `, models.StandActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stands := []models.Stand{}
	for rows.Next() {
		var stand models.Stand
		if err := rows.Scan(&stand.ID, &stand.Name, &stand.EntrepreneurID, &stand.Status); err != nil {
			return nil, err
		}
		stands = append(stands, stand)
	}
	return stands, rows.Err()
}
