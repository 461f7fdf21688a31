// Package checkout converts a cart into an order inside a single
// all-or-nothing transaction: every line item is re-validated against the
// live variant, stock is reserved with a conditional decrement, the order is
// created and the cart emptied. Any failure rolls the whole attempt back.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"merza/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrUnauthenticated = errors.New("no authenticated user")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrVariantNotFound = errors.New("variant no longer exists")
	// ErrStockConflict means a concurrent checkout won the race for the last
	// units between our stock check and the decrement.
	ErrStockConflict = errors.New("stock changed during checkout, please retry")
)

// InsufficientStockError names the SKU so the client can point at the line.
type InsufficientStockError struct {
	SKU string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for SKU %s", e.SKU)
}

// StatusFor maps a checkout failure to its HTTP status. Anything outside the
// taxonomy is a persistence error and reads as a 500.
func StatusFor(err error) int {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrVariantNotFound),
		errors.Is(err, ErrStockConflict),
		errors.As(err, &insufficient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CatalogStore reads live variants and performs the atomic reservation.
type CatalogStore interface {
	// FindVariant returns the live variant, or ErrVariantNotFound.
	FindVariant(ctx context.Context, productID, variantID primitive.ObjectID) (*models.Variant, error)
	// ConditionalDecrementStock subtracts qty from the variant's stock only
	// if at least qty units are present at the moment of the write. Returns
	// false when the guard failed, without error.
	ConditionalDecrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error)
}

type CartStore interface {
	// LoadCart returns nil (no error) when the user has no cart.
	LoadCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
}

// TxRunner executes fn atomically: all store calls made with fn's context
// commit together or not at all.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LowStock reports a variant that crossed its low-stock threshold during a
// successful checkout, for post-commit notification.
type LowStock struct {
	SKU       string
	Remaining int
}

// Result carries the created order plus side information the caller may act
// on after the transaction committed.
type Result struct {
	Order    *models.Order
	LowStock []LowStock
}

type Orchestrator struct {
	Catalog CatalogStore
	Carts   CartStore
	Orders  OrderStore
	Tx      TxRunner

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewOrchestrator(catalog CatalogStore, carts CartStore, orders OrderStore, tx TxRunner) *Orchestrator {
	return &Orchestrator{
		Catalog: catalog,
		Carts:   carts,
		Orders:  orders,
		Tx:      tx,
		Now:     time.Now,
	}
}

// Run performs the checkout for userID. On success the order exists with
// status pending, stock is decremented for every tracked line, and the cart
// is empty. On any error nothing has changed.
func (o *Orchestrator) Run(ctx context.Context, userID primitive.ObjectID, paymentInfo map[string]any) (*Result, error) {
	if userID.IsZero() {
		return nil, ErrUnauthenticated
	}
	now := o.Now()

	var result Result
	err := o.Tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		cart, err := o.Carts.LoadCart(txCtx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		order := &models.Order{
			UserID:      userID,
			Status:      models.OrderStatusPending,
			PaymentInfo: paymentInfo,
			CreatedAt:   now,
		}
		result.LowStock = nil

		for _, item := range cart.Items {
			// Never trust the cart snapshot for the reservation decision;
			// the live variant decides stock and price.
			variant, err := o.Catalog.FindVariant(txCtx, item.ProductID, item.VariantID)
			if err != nil {
				return err
			}

			if variant.Inventory.TrackInventory && variant.Inventory.Quantity < item.Quantity {
				return &InsufficientStockError{SKU: variant.SKU}
			}

			unit := variant.Price.EffectiveAt(now)
			order.TotalAmount += unit * float64(item.Quantity)
			order.Items = append(order.Items, models.OrderItem{
				ProductID:                 item.ProductID,
				VariantID:                 item.VariantID,
				SKU:                       variant.SKU,
				Quantity:                  item.Quantity,
				UnitPrice:                 unit,
				PriceSnapshot:             variant.Price,
				VariantAttributesSnapshot: item.VariantAttributesSnapshot,
			})

			if variant.Inventory.TrackInventory {
				ok, err := o.Catalog.ConditionalDecrementStock(txCtx, item.ProductID, item.VariantID, item.Quantity)
				if err != nil {
					return fmt.Errorf("reserve stock for SKU %s: %w", variant.SKU, err)
				}
				if !ok {
					return ErrStockConflict
				}
				remaining := variant.Inventory.Quantity - item.Quantity
				if remaining <= variant.Inventory.LowStockThreshold {
					result.LowStock = append(result.LowStock, LowStock{SKU: variant.SKU, Remaining: remaining})
				}
			}
		}

		if err := o.Orders.CreateOrder(txCtx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		cart.Items = []models.CartItem{}
		cart.TotalAmount = 0
		cart.UpdatedAt = now
		if err := o.Carts.SaveCart(txCtx, cart); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
