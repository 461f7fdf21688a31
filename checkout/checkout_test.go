package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"merza/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func f64(v float64) *float64 { return &v }

// memStores is an in-memory stand-in for the Mongo stores. RunInTransaction
// holds the lock for the whole callback and restores a snapshot on error, so
// the all-or-nothing contract matches the real transaction.
type memStores struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
	carts    map[primitive.ObjectID]*models.Cart
	orders   []*models.Order
}

func newMemStores() *memStores {
	return &memStores{
		products: map[primitive.ObjectID]*models.Product{},
		carts:    map[primitive.ObjectID]*models.Cart{},
	}
}

func (m *memStores) FindVariant(_ context.Context, productID, variantID primitive.ObjectID) (*models.Variant, error) {
	product, ok := m.products[productID]
	if !ok {
		return nil, ErrVariantNotFound
	}
	v := product.FindVariant(variantID)
	if v == nil {
		return nil, ErrVariantNotFound
	}
	clone := *v
	return &clone, nil
}

func (m *memStores) ConditionalDecrementStock(_ context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error) {
	product, ok := m.products[productID]
	if !ok {
		return false, nil
	}
	v := product.FindVariant(variantID)
	if v == nil || v.Inventory.Quantity < qty {
		return false, nil
	}
	v.Inventory.Quantity -= qty
	return true, nil
}

func (m *memStores) LoadCart(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return nil, nil
	}
	clone := *c
	clone.Items = append([]models.CartItem{}, c.Items...)
	return &clone, nil
}

func (m *memStores) SaveCart(_ context.Context, cart *models.Cart) error {
	clone := *cart
	clone.Items = append([]models.CartItem{}, cart.Items...)
	m.carts[cart.UserID] = &clone
	return nil
}

func (m *memStores) CreateOrder(_ context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *memStores) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock := map[primitive.ObjectID]map[primitive.ObjectID]int{}
	for pid, p := range m.products {
		stock[pid] = map[primitive.ObjectID]int{}
		for _, v := range p.Variants {
			stock[pid][v.ID] = v.Inventory.Quantity
		}
	}
	carts := map[primitive.ObjectID]*models.Cart{}
	for uid, c := range m.carts {
		clone := *c
		clone.Items = append([]models.CartItem{}, c.Items...)
		carts[uid] = &clone
	}
	orderCount := len(m.orders)

	if err := fn(ctx); err != nil {
		for pid, variants := range stock {
			for vid, qty := range variants {
				m.products[pid].FindVariant(vid).Inventory.Quantity = qty
			}
		}
		m.carts = carts
		m.orders = m.orders[:orderCount]
		return err
	}
	return nil
}

func (m *memStores) stockOf(productID, variantID primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].FindVariant(variantID).Inventory.Quantity
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

func newTestOrchestrator(m *memStores) *Orchestrator {
	o := NewOrchestrator(m, m, m, m)
	o.Now = fixedNow
	return o
}

func seedProduct(m *memStores, sku string, price models.Price, stock int, tracked bool, threshold int) (primitive.ObjectID, primitive.ObjectID) {
	productID := primitive.NewObjectID()
	variantID := primitive.NewObjectID()
	m.products[productID] = &models.Product{
		ID:     productID,
		Name:   sku,
		Status: models.ProductStatusActive,
		Variants: []models.Variant{{
			ID:    variantID,
			SKU:   sku,
			Price: price,
			Inventory: models.Inventory{
				Quantity:          stock,
				TrackInventory:    tracked,
				LowStockThreshold: threshold,
			},
			IsActive: true,
		}},
	}
	return productID, variantID
}

func seedCart(m *memStores, userID primitive.ObjectID, items ...models.CartItem) {
	m.carts[userID] = &models.Cart{UserID: userID, Items: items}
}

func TestRunChargesSalePriceInsideWindow(t *testing.T) {
	m := newMemStores()
	now := fixedNow()
	price := models.Price{
		Base:          100,
		Sale:          f64(80),
		SaleStartDate: func() *time.Time { s := now.Add(-time.Hour); return &s }(),
		SaleEndDate:   func() *time.Time { e := now.Add(time.Hour); return &e }(),
	}
	productID, variantID := seedProduct(m, "SNKR-42", price, 10, true, 2)

	userID := primitive.NewObjectID()
	seedCart(m, userID, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 2})

	result, err := newTestOrchestrator(m).Run(context.Background(), userID, map[string]any{"method": "card"})
	require.NoError(t, err)

	order := result.Order
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 160.0, order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "SNKR-42", order.Items[0].SKU)
	assert.Equal(t, 80.0, order.Items[0].UnitPrice)

	assert.Equal(t, 8, m.stockOf(productID, variantID))
	assert.Empty(t, m.carts[userID].Items)
	assert.Len(t, m.orders, 1)
}

func TestRunChargesBasePriceOutsideWindow(t *testing.T) {
	m := newMemStores()
	now := fixedNow()
	ended := now.Add(-time.Minute)
	price := models.Price{Base: 100, Sale: f64(80), SaleEndDate: &ended}
	productID, variantID := seedProduct(m, "SNKR-42", price, 10, true, 0)

	userID := primitive.NewObjectID()
	seedCart(m, userID, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 1})

	result, err := newTestOrchestrator(m).Run(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Order.TotalAmount)
}

func TestRunUnauthenticated(t *testing.T) {
	m := newMemStores()
	_, err := newTestOrchestrator(m).Run(context.Background(), primitive.NilObjectID, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRunEmptyCart(t *testing.T) {
	m := newMemStores()
	o := newTestOrchestrator(m)

	// no cart at all
	_, err := o.Run(context.Background(), primitive.NewObjectID(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	// cart exists but has no items
	userID := primitive.NewObjectID()
	seedCart(m, userID)
	_, err = o.Run(context.Background(), userID, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestRunVariantGone(t *testing.T) {
	m := newMemStores()
	userID := primitive.NewObjectID()
	seedCart(m, userID, models.CartItem{
		ProductID: primitive.NewObjectID(),
		VariantID: primitive.NewObjectID(),
		Quantity:  1,
	})

	_, err := newTestOrchestrator(m).Run(context.Background(), userID, nil)
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestRunInsufficientStockAbortsEverything(t *testing.T) {
	m := newMemStores()
	p1, v1 := seedProduct(m, "SKU-A", models.Price{Base: 10}, 10, true, 0)
	p2, v2 := seedProduct(m, "SKU-B", models.Price{Base: 20}, 1, true, 0)

	userID := primitive.NewObjectID()
	seedCart(m, userID,
		models.CartItem{ProductID: p1, VariantID: v1, Quantity: 2},
		models.CartItem{ProductID: p2, VariantID: v2, Quantity: 3},
	)

	_, err := newTestOrchestrator(m).Run(context.Background(), userID, nil)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SKU-B", insufficient.SKU)

	// first line's reservation rolled back, cart intact, no order
	assert.Equal(t, 10, m.stockOf(p1, v1))
	assert.Equal(t, 1, m.stockOf(p2, v2))
	assert.Len(t, m.carts[userID].Items, 2)
	assert.Empty(t, m.orders)
}

func TestRunUntrackedInventoryAlwaysSucceeds(t *testing.T) {
	m := newMemStores()
	productID, variantID := seedProduct(m, "DIGITAL", models.Price{Base: 5}, 0, false, 0)

	userID := primitive.NewObjectID()
	seedCart(m, userID, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 500})

	result, err := newTestOrchestrator(m).Run(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, result.Order.TotalAmount)
	assert.Equal(t, 0, m.stockOf(productID, variantID))
}

func TestRunReportsLowStock(t *testing.T) {
	m := newMemStores()
	productID, variantID := seedProduct(m, "SCARCE", models.Price{Base: 10}, 4, true, 3)

	userID := primitive.NewObjectID()
	seedCart(m, userID, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 2})

	result, err := newTestOrchestrator(m).Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Len(t, result.LowStock, 1)
	assert.Equal(t, "SCARCE", result.LowStock[0].SKU)
	assert.Equal(t, 2, result.LowStock[0].Remaining)
}

func TestRacingCheckoutsNeverOversell(t *testing.T) {
	m := newMemStores()
	productID, variantID := seedProduct(m, "LAST-ONE", models.Price{Base: 99}, 1, true, 0)

	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()
	seedCart(m, userA, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 1})
	seedCart(m, userB, models.CartItem{ProductID: productID, VariantID: variantID, Quantity: 1})

	o := newTestOrchestrator(m)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []primitive.ObjectID{userA, userB} {
		wg.Add(1)
		go func(i int, uid primitive.ObjectID) {
			defer wg.Done()
			_, errs[i] = o.Run(context.Background(), uid, nil)
		}(i, uid)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientStockError
		isStockFailure := errors.Is(err, ErrStockConflict) || errors.As(err, &insufficient)
		assert.True(t, isStockFailure, "unexpected error: %v", err)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, m.stockOf(productID, variantID))
	assert.Len(t, m.orders, 1)
}

func TestStatusForMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, StatusFor(ErrUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, StatusFor(ErrEmptyCart))
	assert.Equal(t, http.StatusBadRequest, StatusFor(ErrVariantNotFound))
	assert.Equal(t, http.StatusBadRequest, StatusFor(ErrStockConflict))
	assert.Equal(t, http.StatusBadRequest, StatusFor(&InsufficientStockError{SKU: "X"}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}
