package service

import (
	"context"
	"fmt"

	"mercadito/internal/orderservice/core"
	"mercadito/internal/orderservice/status"
	"mercadito/pkg/apperr"
	"mercadito/pkg/auth"
	"mercadito/pkg/logger"
	"mercadito/pkg/metrics"
	"mercadito/pkg/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderService is the fulfillment engine and lifecycle guard. It owns the
// order store and orchestrates the stand directory and catalog collaborators.
type OrderService struct {
	store   core.OrderStore
	stands  core.StandDirectory
	catalog core.Catalog
	logger  *logger.Logger

	// enforceStandOwnership restricts status updates to the entrepreneur
	// owning the order's stand. The reference behavior leaves this off:
	// role membership alone gates the operation.
	enforceStandOwnership bool
}

func NewOrderService(store core.OrderStore, stands core.StandDirectory, catalog core.Catalog,
	enforceStandOwnership bool, log *logger.Logger) *OrderService {
	return &OrderService{
		store:                 store,
		stands:                stands,
		catalog:               catalog,
		logger:                log,
		enforceStandOwnership: enforceStandOwnership,
	}
}

// Create runs the full order saga: role gate, stand check, snapshot pricing,
// transactional local write, then the remote stock decrement. The local
// commit and the decrement are two failure domains; when the decrement
// cannot be confirmed the already-committed order is compensated to
// cancelled and the caller gets an inconsistency error.
func (s *OrderService) Create(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*models.CreateOrderResponse, error) {
	if err := auth.EnsureRole(req.User, models.RoleCustomer); err != nil {
		return nil, s.reject(requestID, "order_forbidden", err)
	}

	if err := validateCreateRequest(req); err != nil {
		return nil, s.reject(requestID, "order_invalid", err)
	}

	stand, err := s.stands.GetStand(ctx, req.StallID)
	if err != nil {
		return nil, s.reject(requestID, "stand_lookup_failed", err)
	}
	if stand.Status != models.StandActive {
		return nil, s.reject(requestID, "stand_not_active",
			apperr.Validation("stand %s is not accepting orders", req.StallID))
	}

	snapshots, err := s.catalog.GetProductsForOrder(ctx, req.Items)
	if err != nil {
		return nil, s.reject(requestID, "snapshot_failed", err)
	}

	order, err := buildOrder(req, snapshots)
	if err != nil {
		return nil, s.reject(requestID, "order_pricing_failed", err)
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.logger.Error(requestID, "order_persist_failed", "Failed to persist order", err)
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	s.logger.Debug(requestID, "order_created", fmt.Sprintf("Order %s persisted with total %s", order.ID, order.Total))

	// The key guards broker redelivery of this one decrement RPC. A caller
	// retrying Create mints a new key and a new order; that path is not
	// deduplicated here.
	idempotencyKey := uuid.NewString()
	if err := s.catalog.DecreaseStock(ctx, req.Items, idempotencyKey); err != nil {
		metrics.StockDecrementFailures.Inc()
		return nil, s.compensate(ctx, requestID, order.ID, err)
	}

	metrics.OrdersCreated.Inc()
	s.logger.Info(requestID, "order_confirmed", fmt.Sprintf("Order %s confirmed, stock decremented", order.ID))

	return &models.CreateOrderResponse{Order: *order, Items: order.Items}, nil
}

// compensate flips the committed order to cancelled after an unconfirmed
// decrement. The write runs detached from the request context so a caller
// timeout cannot also abort the compensation.
func (s *OrderService) compensate(ctx context.Context, requestID, orderID string, cause error) error {
	s.logger.Error(requestID, "stock_decrement_failed",
		fmt.Sprintf("Stock decrement unconfirmed for order %s, compensating", orderID), cause)

	cancelCtx := context.WithoutCancel(ctx)
	if cancelErr := s.store.CancelOrder(cancelCtx, orderID, "order-service", "stock decrement failed"); cancelErr != nil {
		s.logger.Error(requestID, "compensation_failed",
			fmt.Sprintf("Failed to cancel order %s after decrement failure", orderID), cancelErr)
		return apperr.Inconsistency(cause,
			"order %s requires reconciliation: stock decrement unconfirmed and cancellation failed", orderID)
	}

	metrics.Compensations.Inc()
	return apperr.Inconsistency(cause,
		"order %s was cancelled: stock decrement could not be confirmed", orderID)
}

func (s *OrderService) reject(requestID, action string, err error) error {
	metrics.OrdersRejected.WithLabelValues(apperr.KindOf(err).String()).Inc()
	s.logger.Warn(requestID, action, err.Error())
	return err
}

func validateCreateRequest(req *models.CreateOrderRequest) error {
	if req.StallID == "" {
		return apperr.Validation("stallId is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return apperr.Validation("productId is required on every item")
		}
		if item.Quantity < 1 {
			return apperr.Validation("quantity must be a positive integer (product %s)", item.ProductID)
		}
	}
	return nil
}

// buildOrder prices the order entirely from the snapshot. Caller-supplied
// prices are not part of the contract. Each line is rounded to two decimals
// before summation.
func buildOrder(req *models.CreateOrderRequest, snapshots []models.ProductSnapshot) (*models.Order, error) {
	byID := make(map[string]models.ProductSnapshot, len(snapshots))
	for _, p := range snapshots {
		byID[p.ID] = p
	}

	orderID := uuid.NewString()
	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(req.Items))

	for _, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, apperr.Validation("unknown product %s", it.ProductID)
		}
		if p.Stock < it.Quantity {
			return nil, apperr.Validation("insufficient stock for product %s", it.ProductID)
		}

		unit, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, apperr.Upstream(err, "catalog returned an invalid price for product %s", it.ProductID)
		}
		unit = unit.Round(2)
		line := unit.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		total = total.Add(line)

		items = append(items, models.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: unit.StringFixed(2),
		})
	}

	return &models.Order{
		ID:         orderID,
		CustomerID: req.User.UserID,
		StallID:    req.StallID,
		Total:      total.StringFixed(2),
		Status:     models.OrderPending,
		Items:      items,
	}, nil
}

// ListByCustomer returns the caller's own orders, newest first.
func (s *OrderService) ListByCustomer(ctx context.Context, req *models.ListByCustomerRequest) ([]models.Order, error) {
	if err := auth.EnsureRole(req.User, models.RoleCustomer); err != nil {
		return nil, err
	}
	return s.store.ListByCustomer(ctx, req.User.UserID)
}

// ListByStall returns a stand's orders, newest first, for stand-owning roles.
func (s *OrderService) ListByStall(ctx context.Context, req *models.ListByStallRequest) ([]models.Order, error) {
	if err := auth.EnsureRole(req.User, models.RoleEntrepreneur, models.RoleOrganizer); err != nil {
		return nil, err
	}
	if req.StallID == "" {
		return nil, apperr.Validation("stallId is required")
	}
	return s.store.ListByStall(ctx, req.StallID)
}

// UpdateStatus advances an order along the fixed lifecycle chain. Backward,
// skipping and same-state transitions are rejected naming both states;
// delivered is terminal.
func (s *OrderService) UpdateStatus(ctx context.Context, req *models.UpdateStatusRequest, requestID string) (*models.Order, error) {
	if err := auth.EnsureRole(req.User, models.RoleEntrepreneur, models.RoleOrganizer); err != nil {
		return nil, err
	}
	if !status.Known(req.Status) {
		return nil, apperr.Validation("unknown status %q", string(req.Status))
	}

	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if s.enforceStandOwnership && req.User.Role == models.RoleEntrepreneur {
		stand, err := s.stands.GetStand(ctx, order.StallID)
		if err != nil {
			return nil, err
		}
		if stand.EntrepreneurID != req.User.UserID {
			return nil, apperr.Forbidden("stand %s does not belong to caller", order.StallID)
		}
	}

	if !status.CanTransition(order.Status, req.Status) {
		return nil, apperr.Validation("invalid transition: %s -> %s", order.Status, req.Status)
	}

	updated, err := s.store.UpdateStatus(ctx, req.OrderID, req.Status, req.User.UserID)
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(req.Status)).Inc()
	s.logger.Info(requestID, "status_updated",
		fmt.Sprintf("Order %s moved %s -> %s", req.OrderID, order.Status, req.Status))
	return updated, nil
}
