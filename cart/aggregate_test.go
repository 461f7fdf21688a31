package cart

import (
	"testing"
	"time"

	"merza/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func f64(v float64) *float64 { return &v }

func testProduct(stock int) *models.Product {
	return &models.Product{
		ID:     primitive.NewObjectID(),
		Name:   "Sneaker",
		Status: models.ProductStatusActive,
		Variants: []models.Variant{{
			ID:  primitive.NewObjectID(),
			SKU: "SNKR-42",
			Attributes: []models.Attribute{
				{Key: "size", Value: "42"},
			},
			Price:     models.Price{Base: 100, Sale: f64(80)},
			Inventory: models.Inventory{Quantity: stock, TrackInventory: true},
			IsActive:  true,
		}},
	}
}

func TestAddItemNewLine(t *testing.T) {
	now := time.Now()
	product := testProduct(5)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}

	require.NoError(t, AddItem(c, product, variant, 2, now))

	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, variant.Price, c.Items[0].PriceSnapshot)
	assert.Equal(t, variant.Attributes, c.Items[0].VariantAttributesSnapshot)
	assert.Equal(t, 160.0, c.TotalAmount)
}

func TestAddItemAccumulatesIntoOneLine(t *testing.T) {
	now := time.Now()
	product := testProduct(5)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}

	require.NoError(t, AddItem(c, product, variant, 2, now))
	require.NoError(t, AddItem(c, product, variant, 1, now))

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestAddItemCumulativeStockCheck(t *testing.T) {
	now := time.Now()
	product := testProduct(3)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}

	require.NoError(t, AddItem(c, product, variant, 2, now))

	err := AddItem(c, product, variant, 2, now)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SNKR-42", insufficient.SKU)

	// the failed add changed nothing
	assert.Equal(t, 2, c.Items[0].Quantity)
}

func TestAddItemRejectsInactive(t *testing.T) {
	now := time.Now()
	product := testProduct(5)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}

	product.Status = models.ProductStatusDraft
	assert.ErrorIs(t, AddItem(c, product, variant, 1, now), ErrProductNotActive)

	product.Status = models.ProductStatusActive
	variant.IsActive = false
	assert.ErrorIs(t, AddItem(c, product, variant, 1, now), ErrVariantNotAvailable)

	assert.ErrorIs(t, AddItem(c, product, nil, 1, now), ErrVariantNotAvailable)
}

func TestAddItemRefreshesSnapshot(t *testing.T) {
	now := time.Now()
	product := testProduct(10)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}

	require.NoError(t, AddItem(c, product, variant, 1, now))
	assert.Equal(t, 80.0, *c.Items[0].PriceSnapshot.Sale)

	variant.Price.Sale = f64(60)
	require.NoError(t, AddItem(c, product, variant, 1, now))
	assert.Equal(t, 60.0, *c.Items[0].PriceSnapshot.Sale)
	assert.Equal(t, 120.0, c.TotalAmount)
}

func TestUpdateItemQuantityAndRemoval(t *testing.T) {
	now := time.Now()
	product := testProduct(10)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}
	require.NoError(t, AddItem(c, product, variant, 2, now))

	require.NoError(t, UpdateItem(c, variant, product.ID, variant.ID, 5, now))
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, 400.0, c.TotalAmount)

	// zero quantity removes the line
	require.NoError(t, UpdateItem(c, nil, product.ID, variant.ID, 0, now))
	assert.Empty(t, c.Items)
	assert.Equal(t, 0.0, c.TotalAmount)

	assert.ErrorIs(t, UpdateItem(c, variant, product.ID, variant.ID, 1, now), ErrItemNotFound)
}

func TestUpdateItemIsIdempotent(t *testing.T) {
	now := time.Now()
	product := testProduct(10)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}
	require.NoError(t, AddItem(c, product, variant, 2, now))

	require.NoError(t, UpdateItem(c, variant, product.ID, variant.ID, 4, now))
	first := make([]models.CartItem, len(c.Items))
	copy(first, c.Items)
	firstTotal := c.TotalAmount

	require.NoError(t, UpdateItem(c, variant, product.ID, variant.ID, 4, now))
	assert.Equal(t, first, c.Items)
	assert.Equal(t, firstTotal, c.TotalAmount)
}

func TestAddThenRemoveRestoresItemCount(t *testing.T) {
	now := time.Now()
	keeper := testProduct(10)
	extra := testProduct(10)
	c := &models.Cart{UserID: primitive.NewObjectID()}
	require.NoError(t, AddItem(c, keeper, &keeper.Variants[0], 1, now))
	before := len(c.Items)

	require.NoError(t, AddItem(c, extra, &extra.Variants[0], 3, now))
	c.RemoveItem(extra.ID, extra.Variants[0].ID)
	c.RecomputeTotal(now)

	assert.Len(t, c.Items, before)
	assert.Equal(t, 80.0, c.TotalAmount)
}

func TestUpdateItemStockCheck(t *testing.T) {
	now := time.Now()
	product := testProduct(3)
	variant := &product.Variants[0]
	c := &models.Cart{UserID: primitive.NewObjectID()}
	require.NoError(t, AddItem(c, product, variant, 1, now))

	err := UpdateItem(c, variant, product.ID, variant.ID, 4, now)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, c.Items[0].Quantity)
}

func TestMergeItemGrowsOrAppends(t *testing.T) {
	now := time.Now()
	product := testProduct(10)
	variant := &product.Variants[0]
	other := testProduct(10)
	c := &models.Cart{UserID: primitive.NewObjectID()}
	require.NoError(t, AddItem(c, product, variant, 1, now))

	MergeItem(c, product, variant, 2, now)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)

	MergeItem(c, other, &other.Variants[0], 1, now)
	assert.Len(t, c.Items, 2)

	// non-positive quantities are ignored
	MergeItem(c, product, variant, 0, now)
	assert.Equal(t, 3, c.Items[0].Quantity)
}
