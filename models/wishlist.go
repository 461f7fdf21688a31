package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WishlistEntry pins a product and optionally one of its variants.
type WishlistEntry struct {
	ProductID primitive.ObjectID  `json:"productId" bson:"productId"`
	VariantID *primitive.ObjectID `json:"variantId,omitempty" bson:"variantId,omitempty"`
	AddedAt   time.Time           `json:"addedAt" bson:"addedAt"`
}

// Wishlist is set-like: one per user, no duplicate (productId, variantId)
// pairs. Adds are guarded pushes, filtered so an existing pair never matches.
type Wishlist struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	Products  []WishlistEntry    `json:"products" bson:"products"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}
