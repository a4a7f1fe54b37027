package core

import (
	"context"

	"mercadito/pkg/models"
)

// OrderStore is the relational persistence owned exclusively by the order
// service. No other component writes order rows.
type OrderStore interface {
	// CreateOrder persists the order and its full item set in one
	// transaction. No partial item set is ever visible.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListByStall(ctx context.Context, stallID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, next models.OrderStatus, changedBy string) (*models.Order, error)
	// CancelOrder is the compensating write used when the stock decrement
	// cannot be confirmed after the local commit.
	CancelOrder(ctx context.Context, id, changedBy, note string) error
}

// StandDirectory resolves a stand's lifecycle state.
type StandDirectory interface {
	GetStand(ctx context.Context, id string) (*models.Stand, error)
}

// Catalog exposes the product snapshots and the all-or-nothing stock
// mutations of the catalog service.
type Catalog interface {
	GetProductsForOrder(ctx context.Context, items []models.OrderItemRequest) ([]models.ProductSnapshot, error)
	DecreaseStock(ctx context.Context, items []models.OrderItemRequest, idempotencyKey string) error
	RestoreStock(ctx context.Context, items []models.OrderItemRequest, idempotencyKey string) error
}
