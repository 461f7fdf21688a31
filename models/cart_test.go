package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCartRecomputeTotal(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	p1 := primitive.NewObjectID()
	p2 := primitive.NewObjectID()
	v1 := primitive.NewObjectID()
	v2 := primitive.NewObjectID()

	c := Cart{
		UserID: primitive.NewObjectID(),
		Items: []CartItem{
			{ProductID: p1, VariantID: v1, Quantity: 2, PriceSnapshot: Price{Base: 100, Sale: f64(80)}},
			{ProductID: p2, VariantID: v2, Quantity: 1, PriceSnapshot: Price{Base: 50}},
		},
	}

	c.RecomputeTotal(now)
	assert.Equal(t, 210.0, c.TotalAmount)

	// an expired sale window falls back to base in the displayed total
	c.Items[0].PriceSnapshot.SaleEndDate = ts(now.Add(-time.Hour))
	c.RecomputeTotal(now)
	assert.Equal(t, 250.0, c.TotalAmount)
}

func TestCartClear(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	c := Cart{
		UserID: primitive.NewObjectID(),
		Items: []CartItem{
			{ProductID: primitive.NewObjectID(), VariantID: primitive.NewObjectID(), Quantity: 3, PriceSnapshot: Price{Base: 40}},
		},
	}
	c.RecomputeTotal(now)
	require.Equal(t, 120.0, c.TotalAmount)

	c.Clear(now)
	assert.Empty(t, c.Items)
	assert.NotNil(t, c.Items)
	assert.Zero(t, c.TotalAmount)
	assert.Equal(t, now, c.UpdatedAt)
}

func TestCartFindAndRemoveItem(t *testing.T) {
	p := primitive.NewObjectID()
	v := primitive.NewObjectID()
	other := primitive.NewObjectID()

	c := Cart{Items: []CartItem{{ProductID: p, VariantID: v, Quantity: 1}}}

	require.NotNil(t, c.FindItem(p, v))
	assert.Nil(t, c.FindItem(p, other))

	assert.False(t, c.RemoveItem(p, other))
	assert.Len(t, c.Items, 1)

	assert.True(t, c.RemoveItem(p, v))
	assert.Empty(t, c.Items)
	assert.False(t, c.RemoveItem(p, v))
}
