package models

import "time"

// Roles asserted by the identity provider. The services trust the claims as
// delivered; no token verification happens here.
const (
	RoleCustomer     = "cliente"
	RoleEntrepreneur = "emprendedor"
	RoleOrganizer    = "organizador"
)

// Claims is the signed claim set attached to every role-gated request.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderDelivered OrderStatus = "delivered"
	// OrderCancelled is reachable only through saga compensation, never
	// through the status update operation.
	OrderCancelled OrderStatus = "cancelled"
)

type StandStatus string

const (
	StandPending  StandStatus = "pendiente"
	StandApproved StandStatus = "aprobado"
	StandActive   StandStatus = "activo"
	StandInactive StandStatus = "inactivo"
)

// Order rows are owned exclusively by the order service. Monetary fields
// travel as fixed two-decimal strings, mirroring numeric columns.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	StallID    string      `json:"stall_id"`
	Total      string      `json:"total"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Items      []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Stand struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	EntrepreneurID string      `json:"entrepreneur_id"`
	Status         StandStatus `json:"status"`
}

// ProductSnapshot is a point-in-time (price, stock) read used to price an
// order. Price is a two-decimal string.
type ProductSnapshot struct {
	ID    string `json:"id"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// Order service commands.

type CreateOrderRequest struct {
	User    Claims             `json:"user"`
	StallID string             `json:"stallId"`
	Items   []OrderItemRequest `json:"items"`
}

type CreateOrderResponse struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

type ListByCustomerRequest struct {
	User Claims `json:"user"`
}

type ListByStallRequest struct {
	User    Claims `json:"user"`
	StallID string `json:"stallId"`
}

type UpdateStatusRequest struct {
	User    Claims      `json:"user"`
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
}

// Stand directory commands.

type StandLookupRequest struct {
	ID string `json:"id"`
}

// Catalog commands.

type SnapshotRequest struct {
	Items []OrderItemRequest `json:"items"`
}

type StockChangeRequest struct {
	Items          []OrderItemRequest `json:"items"`
	IdempotencyKey string             `json:"idempotencyKey"`
}

type StockChangeResponse struct {
	OK bool `json:"ok"`
}
