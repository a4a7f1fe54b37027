package handler

import (
	"context"
	"encoding/json"

	"mercadito/internal/orderservice/service"
	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"
	"mercadito/pkg/rabbitmq"

	"github.com/google/uuid"
)

// Order service command names, matching the gateway's message patterns.
const (
	CmdOrdersCreate         = "orders_create"
	CmdOrdersListByCustomer = "orders_list_by_customer"
	CmdOrdersListByStall    = "orders_list_by_stall"
	CmdOrdersUpdateStatus   = "orders_update_status"
)

// OrderHandler binds the order commands onto the RPC server.
type OrderHandler struct {
	service *service.OrderService
	logger  *logger.Logger
}

func NewOrderHandler(svc *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: log}
}

func (h *OrderHandler) Register(srv *rabbitmq.Server) {
	srv.Handle(CmdOrdersCreate, h.create)
	srv.Handle(CmdOrdersListByCustomer, h.listByCustomer)
	srv.Handle(CmdOrdersListByStall, h.listByStall)
	srv.Handle(CmdOrdersUpdateStatus, h.updateStatus)
}

func (h *OrderHandler) create(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.CreateOrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid create order payload")
	}

	requestID := "req-" + uuid.NewString()
	h.logger.Debug(requestID, "order_received", "New order request received")

	return h.service.Create(ctx, &req, requestID)
}

func (h *OrderHandler) listByCustomer(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.ListByCustomerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid list payload")
	}
	return h.service.ListByCustomer(ctx, &req)
}

func (h *OrderHandler) listByStall(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.ListByStallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid list payload")
	}
	return h.service.ListByStall(ctx, &req)
}

func (h *OrderHandler) updateStatus(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.UpdateStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid status update payload")
	}

	requestID := "req-" + uuid.NewString()
	return h.service.UpdateStatus(ctx, &req, requestID)
}
