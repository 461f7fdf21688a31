package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem is one line in a user's cart. The price and attribute snapshots
// are copies taken when the item was added or its quantity last changed; the
// live variant stays the source of truth for stock and checkout pricing.
type CartItem struct {
	ProductID                 primitive.ObjectID `json:"productId" bson:"productId"`
	VariantID                 primitive.ObjectID `json:"variantId" bson:"variantId"`
	Quantity                  int                `json:"quantity" bson:"quantity"`
	PriceSnapshot             Price              `json:"priceSnapshot" bson:"priceSnapshot"`
	VariantAttributesSnapshot []Attribute        `json:"variantAttributesSnapshot" bson:"variantAttributesSnapshot"`
	AddedAt                   time.Time          `json:"addedAt" bson:"addedAt"`
	UpdatedAt                 time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Cart holds at most one item per (productId, variantId) pair; TotalAmount is
// always derived from Items, never taken from the client.
type Cart struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID      primitive.ObjectID `json:"userId" bson:"userId"`
	Items       []CartItem         `json:"items" bson:"items"`
	TotalAmount float64            `json:"totalAmount" bson:"totalAmount"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// FindItem returns the line for the pair, or nil.
func (c *Cart) FindItem(productID, variantID primitive.ObjectID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// RemoveItem deletes the line for the pair; reports whether anything changed.
func (c *Cart) RemoveItem(productID, variantID primitive.ObjectID) bool {
	kept := c.Items[:0]
	removed := false
	for _, it := range c.Items {
		if it.ProductID == productID && it.VariantID == variantID {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	c.Items = kept
	return removed
}

// Clear empties the cart in one shot.
func (c *Cart) Clear(now time.Time) {
	c.Items = []CartItem{}
	c.TotalAmount = 0
	c.UpdatedAt = now
}

// RecomputeTotal rederives TotalAmount from the snapshots, so the displayed
// total matches what the user last saw until the next refresh point.
func (c *Cart) RecomputeTotal(now time.Time) {
	total := 0.0
	for _, it := range c.Items {
		total += it.PriceSnapshot.EffectiveAt(now) * float64(it.Quantity)
	}
	c.TotalAmount = total
}
