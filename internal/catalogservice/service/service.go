package service

import (
	"context"

	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"
)

// Store is the catalog persistence surface, backed by CatalogDB.
type Store interface {
	SnapshotForOrder(ctx context.Context, items []models.OrderItemRequest) ([]models.ProductSnapshot, error)
	DecreaseStock(ctx context.Context, idempotencyKey string, items []models.OrderItemRequest) (bool, error)
	RestoreStock(ctx context.Context, idempotencyKey string, items []models.OrderItemRequest) (bool, error)
}

// Dedup is a best-effort fast duplicate check ahead of the transactional
// ledger. Misses are harmless: the ledger in the stock transaction is the
// authoritative replay guard. Mark is called only after a move applied, so
// a rejected move is never mistaken for a committed one.
type Dedup interface {
	Seen(ctx context.Context, key string) bool
	Mark(ctx context.Context, key string)
}

// CatalogService answers snapshot reads and applies all-or-nothing stock
// moves.
type CatalogService struct {
	store  Store
	dedup  Dedup
	logger *logger.Logger
}

func NewCatalogService(store Store, dedup Dedup, log *logger.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		dedup:  dedup,
		logger: log,
	}
}

func (s *CatalogService) Snapshot(ctx context.Context, req *models.SnapshotRequest) ([]models.ProductSnapshot, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("items are required")
	}
	return s.store.SnapshotForOrder(ctx, req.Items)
}

func (s *CatalogService) Decrease(ctx context.Context, req *models.StockChangeRequest) (*models.StockChangeResponse, error) {
	return s.apply(ctx, req, s.store.DecreaseStock)
}

func (s *CatalogService) Restore(ctx context.Context, req *models.StockChangeRequest) (*models.StockChangeResponse, error) {
	return s.apply(ctx, req, s.store.RestoreStock)
}

func (s *CatalogService) apply(ctx context.Context, req *models.StockChangeRequest,
	move func(context.Context, string, []models.OrderItemRequest) (bool, error)) (*models.StockChangeResponse, error) {

	if len(req.Items) == 0 {
		return nil, apperr.Validation("items are required")
	}
	if req.IdempotencyKey == "" {
		return nil, apperr.Validation("idempotencyKey is required")
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity < 1 {
			return nil, apperr.Validation("every item needs a productId and a positive quantity")
		}
	}

	if s.dedup != nil && s.dedup.Seen(ctx, req.IdempotencyKey) {
		s.logger.Debug(req.IdempotencyKey, "stock_move_replayed", "Duplicate stock move ignored")
		return &models.StockChangeResponse{OK: true}, nil
	}

	applied, err := move(ctx, req.IdempotencyKey, req.Items)
	if err != nil {
		return nil, err
	}
	if applied && s.dedup != nil {
		s.dedup.Mark(ctx, req.IdempotencyKey)
	}
	return &models.StockChangeResponse{OK: applied}, nil
}
