package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func ts(t time.Time) *time.Time { return &t }

func TestPriceEffectiveAt(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		price Price
		want  float64
	}{
		{
			name:  "no sale",
			price: Price{Base: 100},
			want:  100,
		},
		{
			name:  "open-ended sale",
			price: Price{Base: 100, Sale: f64(80)},
			want:  80,
		},
		{
			name:  "sale not below base is ignored",
			price: Price{Base: 100, Sale: f64(100)},
			want:  100,
		},
		{
			name: "window open",
			price: Price{
				Base: 100, Sale: f64(80),
				SaleStartDate: ts(now.Add(-time.Hour)),
				SaleEndDate:   ts(now.Add(time.Hour)),
			},
			want: 80,
		},
		{
			name: "window not yet open",
			price: Price{
				Base: 100, Sale: f64(80),
				SaleStartDate: ts(now.Add(time.Hour)),
			},
			want: 100,
		},
		{
			name: "window closed",
			price: Price{
				Base: 100, Sale: f64(80),
				SaleEndDate: ts(now.Add(-time.Hour)),
			},
			want: 100,
		},
		{
			name: "start only, already open",
			price: Price{
				Base: 100, Sale: f64(80),
				SaleStartDate: ts(now.Add(-time.Minute)),
			},
			want: 80,
		},
		{
			name: "boundary instants are inclusive",
			price: Price{
				Base: 100, Sale: f64(80),
				SaleStartDate: ts(now),
				SaleEndDate:   ts(now),
			},
			want: 80,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.price.EffectiveAt(now))
		})
	}
}

func TestPriceValidate(t *testing.T) {
	now := time.Now()

	require.NoError(t, Price{Base: 100}.Validate())
	require.NoError(t, Price{Base: 100, Sale: f64(50)}.Validate())

	assert.Error(t, Price{Base: -1}.Validate())
	assert.Error(t, Price{Base: 100, Sale: f64(100)}.Validate())
	assert.Error(t, Price{Base: 100, Sale: f64(120)}.Validate())
	assert.Error(t, Price{
		Base: 100, Sale: f64(50),
		SaleStartDate: ts(now.Add(time.Hour)),
		SaleEndDate:   ts(now),
	}.Validate())
}

func TestVariantInStock(t *testing.T) {
	tracked := Variant{SKU: "SKU-1", Inventory: Inventory{Quantity: 3, TrackInventory: true}}
	assert.True(t, tracked.InStock(3))
	assert.False(t, tracked.InStock(4))

	untracked := Variant{SKU: "SKU-2", Inventory: Inventory{Quantity: 0, TrackInventory: false}}
	assert.True(t, untracked.InStock(1000))
}

func TestProductValidateRejectsDuplicateSKUs(t *testing.T) {
	p := Product{
		Name:   "Shirt",
		Status: ProductStatusActive,
		Variants: []Variant{
			{SKU: "SHIRT-M", Price: Price{Base: 10}},
			{SKU: "SHIRT-M", Price: Price{Base: 12}},
		},
	}
	assert.Error(t, p.Validate())

	p.Variants[1].SKU = "SHIRT-L"
	assert.NoError(t, p.Validate())
}

func TestProductLowStockVariants(t *testing.T) {
	p := Product{
		Name:   "Sneaker",
		Status: ProductStatusActive,
		Variants: []Variant{
			{SKU: "SNKR-40", IsActive: true, Inventory: Inventory{Quantity: 2, LowStockThreshold: 3, TrackInventory: true}},
			{SKU: "SNKR-41", IsActive: true, Inventory: Inventory{Quantity: 3, LowStockThreshold: 3, TrackInventory: true}},
			{SKU: "SNKR-42", IsActive: true, Inventory: Inventory{Quantity: 10, LowStockThreshold: 3, TrackInventory: true}},
			{SKU: "SNKR-43", IsActive: false, Inventory: Inventory{Quantity: 0, LowStockThreshold: 3, TrackInventory: true}},
			{SKU: "SNKR-44", IsActive: true, Inventory: Inventory{Quantity: 0, LowStockThreshold: 3, TrackInventory: false}},
		},
	}

	low := p.LowStockVariants()
	require.Len(t, low, 2)
	assert.Equal(t, "SNKR-40", low[0].SKU)
	assert.Equal(t, "SNKR-41", low[1].SKU)

	empty := Product{Name: "Bag", Status: ProductStatusActive}
	assert.Empty(t, empty.LowStockVariants())
}
