package db

import (
	"context"

	"mercadito/pkg/logger"
	"mercadito/pkg/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogDB owns the products table and the stock_moves idempotency ledger.
type CatalogDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewCatalogDB(dbPool *pgxpool.Pool, logger *logger.Logger) *CatalogDB {
	return &CatalogDB{
		dbPool: dbPool,
		logger: logger,
	}
}

// SnapshotForOrder reads (price, stock) for all requested products in one
// query, so every line of an order prices against the same read.
func (d *CatalogDB) SnapshotForOrder(ctx context.Context, items []models.OrderItemRequest) ([]models.ProductSnapshot, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	rows, err := d.dbPool.Query(ctx, `
        SELECT id, price::text, stock
        FROM products
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []models.ProductSnapshot{}
	for rows.Next() {
		var p models.ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, p)
	}
	return snapshots, rows.Err()
}

// DecreaseStock applies every line or none. The idempotency key is recorded
// in the same transaction: a replayed key commits nothing and reports
// applied=true so retries are safe. applied=false means at least one line
// had insufficient stock.
func (d *CatalogDB) DecreaseStock(ctx context.Context, idempotencyKey string, items []models.OrderItemRequest) (bool, error) {
	return d.applyStockMove(ctx, idempotencyKey, "decrease", items)
}

// RestoreStock is the compensating inverse of DecreaseStock.
func (d *CatalogDB) RestoreStock(ctx context.Context, idempotencyKey string, items []models.OrderItemRequest) (bool, error) {
	return d.applyStockMove(ctx, idempotencyKey, "restore", items)
}

func (d *CatalogDB) applyStockMove(ctx context.Context, idempotencyKey, kind string, items []models.OrderItemRequest) (bool, error) {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        INSERT INTO stock_moves (idempotency_key, kind)
        VALUES ($1, $2)
        ON CONFLICT (idempotency_key) DO NOTHING
    `, idempotencyKey, kind)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Replay of an already-applied move.
		return true, nil
	}

	for _, it := range items {
		var err error
		var tag pgconn.CommandTag
		switch kind {
		case "decrease":
			tag, err = tx.Exec(ctx, `
                UPDATE products
                SET stock = stock - $2,
                    is_available = (stock - $2) > 0,
                    updated_at = NOW()
                WHERE id = $1 AND stock >= $2
            `, it.ProductID, it.Quantity)
		default:
			tag, err = tx.Exec(ctx, `
                UPDATE products
                SET stock = stock + $2,
                    is_available = true,
                    updated_at = NOW()
                WHERE id = $1
            `, it.ProductID, it.Quantity)
		}
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			// Unknown product or insufficient stock: abort the whole move.
			return false, nil
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
