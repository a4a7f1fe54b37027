package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"mercadito/internal/orderservice/core"
	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory core.OrderStore.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	clock     time.Time
	cancelErr error
	cancelled map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[string]*models.Order),
		clock:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		cancelled: make(map[string]string),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %s not found", id)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStore) ListByCustomer(_ context.Context, customerID string) ([]models.Order, error) {
	return f.list(func(o *models.Order) bool { return o.CustomerID == customerID }), nil
}

func (f *fakeStore) ListByStall(_ context.Context, stallID string) ([]models.Order, error) {
	return f.list(func(o *models.Order) bool { return o.StallID == stallID }), nil
}

func (f *fakeStore) list(match func(*models.Order) bool) []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.orders {
		if match(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, next models.OrderStatus, _ string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %s not found", id)
	}
	order.Status = next
	order.UpdatedAt = f.tick()
	cp := *order
	return &cp, nil
}

func (f *fakeStore) CancelOrder(_ context.Context, id, _, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	order, ok := f.orders[id]
	if !ok {
		return apperr.NotFound("order %s not found", id)
	}
	order.Status = models.OrderCancelled
	f.cancelled[id] = note
	return nil
}

// fakeStands is an in-memory core.StandDirectory with call counting.
type fakeStands struct {
	stands map[string]*models.Stand
	err    error
	calls  int
}

func (f *fakeStands) GetStand(_ context.Context, id string) (*models.Stand, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	stand, ok := f.stands[id]
	if !ok {
		return nil, apperr.Validation("stand %s not found", id)
	}
	return stand, nil
}

// fakeCatalog is an in-memory core.Catalog holding live stock levels. The
// mutex makes snapshot and decrement each atomic, as the real catalog's
// transactions are, while still allowing two creates to interleave between
// their snapshot and their decrement.
type fakeCatalog struct {
	mu     sync.Mutex
	prices map[string]string
	stock  map[string]int

	snapshotErr    error
	decrementErr   error
	snapshotCalls  int
	decrementCalls int
	keys           []string
}

func (f *fakeCatalog) GetProductsForOrder(_ context.Context, items []models.OrderItemRequest) ([]models.ProductSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	out := []models.ProductSnapshot{}
	for _, it := range items {
		price, ok := f.prices[it.ProductID]
		if !ok {
			continue
		}
		out = append(out, models.ProductSnapshot{ID: it.ProductID, Price: price, Stock: f.stock[it.ProductID]})
	}
	return out, nil
}

func (f *fakeCatalog) DecreaseStock(_ context.Context, items []models.OrderItemRequest, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrementCalls++
	f.keys = append(f.keys, key)
	if f.decrementErr != nil {
		return f.decrementErr
	}
	for _, it := range items {
		if f.stock[it.ProductID] < it.Quantity {
			return apperr.New(apperr.KindUpstream, "catalog did not confirm stock decrement")
		}
	}
	for _, it := range items {
		f.stock[it.ProductID] -= it.Quantity
	}
	return nil
}

func (f *fakeCatalog) RestoreStock(_ context.Context, items []models.OrderItemRequest, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.stock[it.ProductID] += it.Quantity
	}
	return nil
}

var (
	_ core.OrderStore     = (*fakeStore)(nil)
	_ core.StandDirectory = (*fakeStands)(nil)
	_ core.Catalog        = (*fakeCatalog)(nil)
)

const (
	stallID   = "6a8bbd3e-55a4-4a7e-9367-5ad24f812ae1"
	productID = "d2a9a7c0-91a5-4f68-8e0d-06a38fb2e851"
	ownerID   = "0e6a2414-6a49-44d6-9b3f-67a744fbb137"
)

func customer() models.Claims {
	return models.Claims{UserID: "c0ffee00-0000-4000-8000-000000000001", Role: models.RoleCustomer}
}

func entrepreneur() models.Claims {
	return models.Claims{UserID: ownerID, Role: models.RoleEntrepreneur}
}

func newFixture() (*OrderService, *fakeStore, *fakeStands, *fakeCatalog) {
	store := newFakeStore()
	stands := &fakeStands{stands: map[string]*models.Stand{
		stallID: {ID: stallID, Name: "Frutas Doña Rosa", EntrepreneurID: ownerID, Status: models.StandActive},
	}}
	catalog := &fakeCatalog{
		prices: map[string]string{productID: "10.00"},
		stock:  map[string]int{productID: 5},
	}
	svc := NewOrderService(store, stands, catalog, false, logger.Nop())
	return svc, store, stands, catalog
}

func createReq(qty int) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		User:    customer(),
		StallID: stallID,
		Items:   []models.OrderItemRequest{{ProductID: productID, Quantity: qty}},
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	svc, store, _, catalog := newFixture()

	resp, err := svc.Create(context.Background(), createReq(3), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "30.00", resp.Order.Total)
	assert.Equal(t, models.OrderPending, resp.Order.Status)
	assert.Equal(t, customer().UserID, resp.Order.CustomerID)
	assert.Equal(t, stallID, resp.Order.StallID)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, "10.00", resp.Items[0].UnitPrice)
	assert.Equal(t, 3, resp.Items[0].Quantity)
	assert.Equal(t, resp.Order.ID, resp.Items[0].OrderID)

	// Stock was decremented on the catalog side.
	assert.Equal(t, 2, catalog.stock[productID])
	assert.Equal(t, 1, catalog.decrementCalls)
	require.Len(t, catalog.keys, 1)
	assert.NotEmpty(t, catalog.keys[0])

	persisted, err := store.GetOrder(context.Background(), resp.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", persisted.Total)
}

func TestCreateOrderForbiddenBeforeAnyRemoteCall(t *testing.T) {
	svc, store, stands, catalog := newFixture()

	req := createReq(1)
	req.User = entrepreneur()

	_, err := svc.Create(context.Background(), req, "req-1")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	assert.Zero(t, stands.calls)
	assert.Zero(t, catalog.snapshotCalls)
	assert.Empty(t, store.orders)
}

func TestCreateOrderRequestValidation(t *testing.T) {
	svc, _, stands, _ := newFixture()

	cases := []struct {
		name string
		req  *models.CreateOrderRequest
	}{
		{"missing stall", &models.CreateOrderRequest{User: customer(), Items: []models.OrderItemRequest{{ProductID: productID, Quantity: 1}}}},
		{"no items", &models.CreateOrderRequest{User: customer(), StallID: stallID}},
		{"zero quantity", &models.CreateOrderRequest{User: customer(), StallID: stallID, Items: []models.OrderItemRequest{{ProductID: productID, Quantity: 0}}}},
		{"missing product id", &models.CreateOrderRequest{User: customer(), StallID: stallID, Items: []models.OrderItemRequest{{Quantity: 1}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req, "req-1")
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
	assert.Zero(t, stands.calls)
}

func TestCreateOrderStandNotActive(t *testing.T) {
	svc, store, stands, catalog := newFixture()
	stands.stands[stallID].Status = models.StandApproved

	_, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "not accepting orders")

	// The catalog is never consulted for an inactive stand.
	assert.Zero(t, catalog.snapshotCalls)
	assert.Empty(t, store.orders)
}

func TestCreateOrderStandDirectoryUnavailable(t *testing.T) {
	svc, store, stands, _ := newFixture()
	stands.err = apperr.Upstream(errors.New("dial tcp: refused"), "could not validate stand")

	_, err := svc.Create(context.Background(), createReq(1), "req-1")
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Empty(t, store.orders)
}

func TestCreateOrderSnapshotUnavailable(t *testing.T) {
	svc, store, _, catalog := newFixture()
	catalog.snapshotErr = apperr.Upstream(errors.New("timeout"), "could not fetch price/stock snapshots")

	_, err := svc.Create(context.Background(), createReq(1), "req-1")
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Empty(t, store.orders)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc, store, _, _ := newFixture()

	req := createReq(1)
	req.Items = append(req.Items, models.OrderItemRequest{ProductID: "ffffffff-0000-4000-8000-000000000000", Quantity: 1})

	_, err := svc.Create(context.Background(), req, "req-1")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "unknown product")
	assert.Empty(t, store.orders)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	svc, store, _, catalog := newFixture()

	_, err := svc.Create(context.Background(), createReq(6), "req-1")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), fmt.Sprintf("insufficient stock for product %s", productID))

	// No order row and no decrement attempt.
	assert.Empty(t, store.orders)
	assert.Zero(t, catalog.decrementCalls)
}

func TestCreateOrderSequentialDepletesStockExactlyOnce(t *testing.T) {
	svc, _, _, catalog := newFixture()

	_, err := svc.Create(context.Background(), createReq(3), "req-1")
	require.NoError(t, err)

	// The second request prices against the refreshed snapshot (stock 2)
	// and fails before any decrement; stock never goes negative.
	_, err = svc.Create(context.Background(), createReq(3), "req-2")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 2, catalog.stock[productID])
	assert.Equal(t, 1, catalog.decrementCalls)
}

func TestCreateOrderConcurrentRacersDecrementAtMostOnce(t *testing.T) {
	svc, _, _, catalog := newFixture()

	// Two racers each want 3 of stock 5. At most one decrement can be
	// confirmed; the loser is rejected either at the snapshot pre-check or
	// by the catalog's guarded decrement, after which its order is
	// compensated. Stock must never go negative.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), createReq(3), fmt.Sprintf("req-%d", i))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		kind := apperr.KindOf(err)
		assert.Contains(t, []apperr.Kind{apperr.KindValidation, apperr.KindInconsistency}, kind)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 2, catalog.stock[productID])
	assert.GreaterOrEqual(t, catalog.stock[productID], 0)
}

func TestCreateOrderLinesRoundBeforeSummation(t *testing.T) {
	svc, _, _, catalog := newFixture()
	catalog.prices["p-a"] = "3.335"
	catalog.stock["p-a"] = 10

	req := &models.CreateOrderRequest{
		User:    customer(),
		StallID: stallID,
		Items:   []models.OrderItemRequest{{ProductID: "p-a", Quantity: 3}},
	}

	resp, err := svc.Create(context.Background(), req, "req-1")
	require.NoError(t, err)

	// Unit price snaps to two decimals first (3.34), then the line total
	// rounds: 3.34 * 3 = 10.02.
	assert.Equal(t, "3.34", resp.Items[0].UnitPrice)
	assert.Equal(t, "10.02", resp.Order.Total)
}

func TestCreateOrderMultiLineTotal(t *testing.T) {
	svc, _, _, catalog := newFixture()
	catalog.prices["p-b"] = "2.50"
	catalog.stock["p-b"] = 4

	req := &models.CreateOrderRequest{
		User:    customer(),
		StallID: stallID,
		Items: []models.OrderItemRequest{
			{ProductID: productID, Quantity: 2},
			{ProductID: "p-b", Quantity: 3},
		},
	}

	resp, err := svc.Create(context.Background(), req, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "27.50", resp.Order.Total)
	require.Len(t, resp.Items, 2)
}

func TestCreateOrderDecrementFailureCompensates(t *testing.T) {
	svc, store, _, catalog := newFixture()
	catalog.decrementErr = apperr.Upstream(errors.New("connection reset"), "could not complete stock decrement")

	_, err := svc.Create(context.Background(), createReq(2), "req-1")
	require.Error(t, err)
	require.Equal(t, apperr.KindInconsistency, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "cancelled")

	// The locally committed order was compensated to cancelled.
	require.Len(t, store.orders, 1)
	for id, order := range store.orders {
		assert.Equal(t, models.OrderCancelled, order.Status)
		assert.Equal(t, "stock decrement failed", store.cancelled[id])
	}
	// Stock untouched.
	assert.Equal(t, 5, catalog.stock[productID])
}

func TestCreateOrderDecrementAndCompensationBothFail(t *testing.T) {
	svc, store, _, catalog := newFixture()
	catalog.decrementErr = apperr.Upstream(errors.New("connection reset"), "could not complete stock decrement")
	store.cancelErr = errors.New("db write failed")

	_, err := svc.Create(context.Background(), createReq(2), "req-1")
	require.Equal(t, apperr.KindInconsistency, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "requires reconciliation")
}

func TestUpdateStatusHappyChain(t *testing.T) {
	svc, _, _, _ := newFixture()

	resp, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.NoError(t, err)
	orderID := resp.Order.ID

	for _, next := range []models.OrderStatus{models.OrderPreparing, models.OrderReady, models.OrderDelivered} {
		updated, err := svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
			User:    entrepreneur(),
			OrderID: orderID,
			Status:  next,
		}, "req-2")
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}
}

func TestUpdateStatusRejectsSkipBackwardAndTerminal(t *testing.T) {
	svc, store, _, _ := newFixture()

	resp, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.NoError(t, err)
	orderID := resp.Order.ID

	// Skip: pending -> ready.
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: orderID, Status: models.OrderReady,
	}, "req-2")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "pending")
	assert.Contains(t, err.Error(), "ready")

	// Same-state: pending -> pending.
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: orderID, Status: models.OrderPending,
	}, "req-3")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Delivered is terminal.
	store.orders[orderID].Status = models.OrderDelivered
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: orderID, Status: models.OrderPreparing,
	}, "req-4")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateStatusRoleAndExistence(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: customer(), OrderID: "whatever", Status: models.OrderPreparing,
	}, "req-1")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: "missing", Status: models.OrderPreparing,
	}, "req-2")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: "missing", Status: models.OrderStatus("shipped"),
	}, "req-3")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateStatusOwnershipEnforcement(t *testing.T) {
	store := newFakeStore()
	stands := &fakeStands{stands: map[string]*models.Stand{
		stallID: {ID: stallID, EntrepreneurID: ownerID, Status: models.StandActive},
	}}
	catalog := &fakeCatalog{prices: map[string]string{productID: "10.00"}, stock: map[string]int{productID: 5}}
	svc := NewOrderService(store, stands, catalog, true, logger.Nop())

	resp, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.NoError(t, err)

	// A different entrepreneur is rejected when enforcement is on.
	stranger := models.Claims{UserID: "11111111-2222-4333-8444-555555555555", Role: models.RoleEntrepreneur}
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: stranger, OrderID: resp.Order.ID, Status: models.OrderPreparing,
	}, "req-2")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// The owning entrepreneur passes.
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: entrepreneur(), OrderID: resp.Order.ID, Status: models.OrderPreparing,
	}, "req-3")
	require.NoError(t, err)

	// Organizers bypass the ownership check.
	organizer := models.Claims{UserID: "99999999-8888-4777-8666-555555555555", Role: models.RoleOrganizer}
	_, err = svc.UpdateStatus(context.Background(), &models.UpdateStatusRequest{
		User: organizer, OrderID: resp.Order.ID, Status: models.OrderReady,
	}, "req-4")
	require.NoError(t, err)
}

func TestListByCustomerReturnsOwnOrdersNewestFirst(t *testing.T) {
	svc, _, _, _ := newFixture()

	first, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), createReq(1), "req-2")
	require.NoError(t, err)

	orders, err := svc.ListByCustomer(context.Background(), &models.ListByCustomerRequest{User: customer()})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.Order.ID, orders[0].ID)
	assert.Equal(t, first.Order.ID, orders[1].ID)

	// Idempotent read: same result, same order.
	again, err := svc.ListByCustomer(context.Background(), &models.ListByCustomerRequest{User: customer()})
	require.NoError(t, err)
	assert.Equal(t, orders, again)

	// Another customer sees nothing.
	other := models.Claims{UserID: "deadbeef-0000-4000-8000-000000000002", Role: models.RoleCustomer}
	orders, err = svc.ListByCustomer(context.Background(), &models.ListByCustomerRequest{User: other})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestListRoleGates(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.ListByCustomer(context.Background(), &models.ListByCustomerRequest{User: entrepreneur()})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.ListByStall(context.Background(), &models.ListByStallRequest{User: customer(), StallID: stallID})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.ListByStall(context.Background(), &models.ListByStallRequest{User: entrepreneur()})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListByStall(t *testing.T) {
	svc, _, _, _ := newFixture()

	resp, err := svc.Create(context.Background(), createReq(1), "req-1")
	require.NoError(t, err)

	orders, err := svc.ListByStall(context.Background(), &models.ListByStallRequest{User: entrepreneur(), StallID: stallID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, resp.Order.ID, orders[0].ID)
}

func TestTotalIsNotRecomputedAfterCatalogPriceChange(t *testing.T) {
	svc, store, _, catalog := newFixture()

	resp, err := svc.Create(context.Background(), createReq(2), "req-1")
	require.NoError(t, err)
	require.Equal(t, "20.00", resp.Order.Total)

	// Catalog price changes after the order exists.
	catalog.prices[productID] = "99.99"

	persisted, err := store.GetOrder(context.Background(), resp.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", persisted.Total)
	assert.Equal(t, "10.00", persisted.Items[0].UnitPrice)
}
