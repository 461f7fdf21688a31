package cart

import (
	"errors"
	"fmt"
	"time"

	"merza/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrProductNotActive    = errors.New("product is not active")
	ErrVariantNotAvailable = errors.New("variant not available")
	ErrItemNotFound        = errors.New("item not in cart")
)

type InsufficientStockError struct {
	SKU string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for SKU %s", e.SKU)
}

func snapshotOf(variant *models.Variant) (models.Price, []models.Attribute) {
	attrs := make([]models.Attribute, len(variant.Attributes))
	copy(attrs, variant.Attributes)
	return variant.Price, attrs
}

// AddItem applies the add-to-cart rules: active product and variant, live
// stock covers the cumulative quantity, one line per (product, variant) pair.
// The matched line gets a fresh snapshot; the total is recomputed.
func AddItem(c *models.Cart, product *models.Product, variant *models.Variant, quantity int, now time.Time) error {
	if quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	if product.Status != models.ProductStatusActive {
		return ErrProductNotActive
	}
	if variant == nil || !variant.IsActive {
		return ErrVariantNotAvailable
	}

	newQty := quantity
	existing := c.FindItem(product.ID, variant.ID)
	if existing != nil {
		newQty += existing.Quantity
	}
	if !variant.InStock(newQty) {
		return &InsufficientStockError{SKU: variant.SKU}
	}

	price, attrs := snapshotOf(variant)
	if existing != nil {
		existing.Quantity = newQty
		existing.PriceSnapshot = price
		existing.VariantAttributesSnapshot = attrs
		existing.UpdatedAt = now
	} else {
		c.Items = append(c.Items, models.CartItem{
			ProductID:                 product.ID,
			VariantID:                 variant.ID,
			Quantity:                  quantity,
			PriceSnapshot:             price,
			VariantAttributesSnapshot: attrs,
			AddedAt:                   now,
			UpdatedAt:                 now,
		})
	}

	c.RecomputeTotal(now)
	c.UpdatedAt = now
	return nil
}

// UpdateItem replaces the line's quantity. Zero or negative removes the line.
// The variant may be nil only for removals.
func UpdateItem(c *models.Cart, variant *models.Variant, productID, variantID primitive.ObjectID, quantity int, now time.Time) error {
	item := c.FindItem(productID, variantID)
	if item == nil {
		return ErrItemNotFound
	}

	if quantity <= 0 {
		c.RemoveItem(productID, variantID)
		c.RecomputeTotal(now)
		c.UpdatedAt = now
		return nil
	}

	if variant == nil {
		return ErrVariantNotAvailable
	}
	if !variant.InStock(quantity) {
		return &InsufficientStockError{SKU: variant.SKU}
	}

	price, attrs := snapshotOf(variant)
	item.Quantity = quantity
	item.PriceSnapshot = price
	item.VariantAttributesSnapshot = attrs
	item.UpdatedAt = now

	c.RecomputeTotal(now)
	c.UpdatedAt = now
	return nil
}

// MergeItem folds one entry of a local (pre-login) cart into the server cart.
// Inactive products or variants are skipped by the caller; this only grows
// quantities or appends lines, then recomputes.
func MergeItem(c *models.Cart, product *models.Product, variant *models.Variant, quantity int, now time.Time) {
	if quantity < 1 {
		return
	}
	if existing := c.FindItem(product.ID, variant.ID); existing != nil {
		existing.Quantity += quantity
		existing.UpdatedAt = now
	} else {
		price, attrs := snapshotOf(variant)
		c.Items = append(c.Items, models.CartItem{
			ProductID:                 product.ID,
			VariantID:                 variant.ID,
			Quantity:                  quantity,
			PriceSnapshot:             price,
			VariantAttributesSnapshot: attrs,
			AddedAt:                   now,
			UpdatedAt:                 now,
		})
	}
	c.RecomputeTotal(now)
	c.UpdatedAt = now
}
