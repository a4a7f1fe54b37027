package clients

import (
	"context"
	"errors"
	"time"

	"mercadito/internal/orderservice/core"
	"mercadito/pkg/apperr"
	"mercadito/pkg/models"
	"mercadito/pkg/rabbitmq"
)

// Command names served by the collaborator services.
const (
	CmdStandsGetByID    = "stands_get_by_id"
	CmdProductsForOrder = "products_get_many_for_order"
	CmdProductsDecrease = "products_decrease_stock"
	CmdProductsRestore  = "products_restore_stock"
)

// StandClient talks to the stand directory over the RPC fabric. Every call
// is bounded by timeout; failures that are not business rejections surface
// as upstream errors.
type StandClient struct {
	rpc     *rabbitmq.Client
	timeout time.Duration
}

var _ core.StandDirectory = (*StandClient)(nil)

func NewStandClient(rpc *rabbitmq.Client, timeout time.Duration) *StandClient {
	return &StandClient{rpc: rpc, timeout: timeout}
}

func (c *StandClient) GetStand(ctx context.Context, id string) (*models.Stand, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stand models.Stand
	err := c.rpc.Call(ctx, rabbitmq.QueueStands, CmdStandsGetByID, models.StandLookupRequest{ID: id}, &stand)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("stand %s not found", id)
		}
		return nil, upstream(err, "could not validate stand")
	}
	return &stand, nil
}

// CatalogClient talks to the catalog service.
type CatalogClient struct {
	rpc     *rabbitmq.Client
	timeout time.Duration
}

var _ core.Catalog = (*CatalogClient)(nil)

func NewCatalogClient(rpc *rabbitmq.Client, timeout time.Duration) *CatalogClient {
	return &CatalogClient{rpc: rpc, timeout: timeout}
}

// GetProductsForOrder fetches price/stock snapshots for all requested
// products in one batched call, so the catalog can apply a single
// consistent read across items.
func (c *CatalogClient) GetProductsForOrder(ctx context.Context, items []models.OrderItemRequest) ([]models.ProductSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var snapshots []models.ProductSnapshot
	err := c.rpc.Call(ctx, rabbitmq.QueueCatalog, CmdProductsForOrder, models.SnapshotRequest{Items: items}, &snapshots)
	if err != nil {
		return nil, upstream(err, "could not fetch price/stock snapshots")
	}
	return snapshots, nil
}

func (c *CatalogClient) DecreaseStock(ctx context.Context, items []models.OrderItemRequest, idempotencyKey string) error {
	return c.stockChange(ctx, CmdProductsDecrease, items, idempotencyKey, "stock decrement")
}

func (c *CatalogClient) RestoreStock(ctx context.Context, items []models.OrderItemRequest, idempotencyKey string) error {
	return c.stockChange(ctx, CmdProductsRestore, items, idempotencyKey, "stock restore")
}

func (c *CatalogClient) stockChange(ctx context.Context, cmd string, items []models.OrderItemRequest, idempotencyKey, what string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp models.StockChangeResponse
	err := c.rpc.Call(ctx, rabbitmq.QueueCatalog, cmd, models.StockChangeRequest{
		Items:          items,
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return upstream(err, "could not complete "+what)
	}
	if !resp.OK {
		return apperr.New(apperr.KindUpstream, "catalog did not confirm %s", what)
	}
	return nil
}

// upstream keeps already-typed errors intact and wraps raw transport
// failures as upstream.
func upstream(err error, msg string) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	return apperr.Upstream(err, "%s", msg)
}
