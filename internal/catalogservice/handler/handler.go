package handler

import (
	"context"
	"encoding/json"

	"mercadito/internal/catalogservice/service"
	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"
	"mercadito/pkg/rabbitmq"
)

const (
	CmdProductsForOrder = "products_get_many_for_order"
	CmdProductsDecrease = "products_decrease_stock"
	CmdProductsRestore  = "products_restore_stock"
)

// CatalogHandler binds the catalog commands the order flow consumes.
type CatalogHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

func NewCatalogHandler(svc *service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{service: svc, logger: log}
}

func (h *CatalogHandler) Register(srv *rabbitmq.Server) {
	srv.Handle(CmdProductsForOrder, h.snapshot)
	srv.Handle(CmdProductsDecrease, h.decrease)
	srv.Handle(CmdProductsRestore, h.restore)
}

func (h *CatalogHandler) snapshot(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.SnapshotRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid snapshot payload")
	}
	return h.service.Snapshot(ctx, &req)
}

func (h *CatalogHandler) decrease(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.StockChangeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid stock change payload")
	}
	return h.service.Decrease(ctx, &req)
}

func (h *CatalogHandler) restore(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.StockChangeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid stock change payload")
	}
	return h.service.Restore(ctx, &req)
}
