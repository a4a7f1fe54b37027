package db

import (
	"context"
	"errors"

	"mercadito/internal/orderservice/core"
	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderDB implements core.OrderStore on PostgreSQL.
type OrderDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

var _ core.OrderStore = (*OrderDB)(nil)

func NewOrderDB(dbPool *pgxpool.Pool, logger *logger.Logger) *OrderDB {
	return &OrderDB{
		dbPool: dbPool,
		logger: logger,
	}
}

func (d *OrderDB) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO orders (id, customer_id, stall_id, total, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at
    `, order.ID, order.CustomerID, order.StallID, order.Total, order.Status).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range order.Items {
		batch.Queue(`
            INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
            VALUES ($1, $2, $3, $4, $5)
        `, item.ID, order.ID, item.ProductID, item.Quantity, item.UnitPrice)
	}
	batch.Queue(`
        INSERT INTO order_status_log (order_id, status, changed_by, notes)
        VALUES ($1, $2, $3, $4)
    `, order.ID, order.Status, order.CustomerID, "order received")

	br := tx.SendBatch(ctx, batch)
	for i := 0; i <= len(order.Items); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (d *OrderDB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.dbPool.QueryRow(ctx, `
        SELECT id, customer_id, stall_id, total::text, status, created_at, updated_at
        FROM orders
        WHERE id = $1
    `, id).Scan(&order.ID, &order.CustomerID, &order.StallID, &order.Total,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	items, err := d.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (d *OrderDB) loadItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT id, order_id, product_id, quantity, unit_price::text
        FROM order_items
        WHERE order_id = $1
        ORDER BY id
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (d *OrderDB) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	return d.list(ctx, `
        SELECT id, customer_id, stall_id, total::text, status, created_at, updated_at
        FROM orders
        WHERE customer_id = $1
        ORDER BY created_at DESC
    `, customerID)
}

func (d *OrderDB) ListByStall(ctx context.Context, stallID string) ([]models.Order, error) {
	return d.list(ctx, `
        SELECT id, customer_id, stall_id, total::text, status, created_at, updated_at
        FROM orders
        WHERE stall_id = $1
        ORDER BY created_at DESC
    `, stallID)
}

func (d *OrderDB) list(ctx context.Context, query, arg string) ([]models.Order, error) {
	rows, err := d.dbPool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.StallID, &order.Total,
			&order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (d *OrderDB) UpdateStatus(ctx context.Context, id string, next models.OrderStatus, changedBy string) (*models.Order, error) {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var order models.Order
	err = tx.QueryRow(ctx, `
        UPDATE orders
        SET status = $1, updated_at = NOW()
        WHERE id = $2
        RETURNING id, customer_id, stall_id, total::text, status, created_at, updated_at
    `, next, id).Scan(&order.ID, &order.CustomerID, &order.StallID, &order.Total,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO order_status_log (order_id, status, changed_by)
        VALUES ($1, $2, $3)
    `, id, next, changedBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *OrderDB) CancelOrder(ctx context.Context, id, changedBy, note string) error {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE orders
        SET status = $1, updated_at = NOW()
        WHERE id = $2
    `, models.OrderCancelled, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order %s not found", id)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO order_status_log (order_id, status, changed_by, notes)
        VALUES ($1, $2, $3, $4)
    `, id, models.OrderCancelled, changedBy, note)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
