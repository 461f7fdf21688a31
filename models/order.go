package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusFailed     = "failed"
)

// OrderItem is an immutable copy of a cart line at checkout time. The price
// snapshot is kept for audit; the charged amount was computed from the live
// variant inside the checkout transaction.
type OrderItem struct {
	ProductID                 primitive.ObjectID `json:"productId" bson:"productId"`
	VariantID                 primitive.ObjectID `json:"variantId" bson:"variantId"`
	SKU                       string             `json:"sku" bson:"sku"`
	Quantity                  int                `json:"quantity" bson:"quantity"`
	UnitPrice                 float64            `json:"unitPrice" bson:"unitPrice"`
	PriceSnapshot             Price              `json:"priceSnapshot" bson:"priceSnapshot"`
	VariantAttributesSnapshot []Attribute        `json:"variantAttributesSnapshot" bson:"variantAttributesSnapshot"`
}

type Order struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID      primitive.ObjectID `json:"userId" bson:"userId"`
	Items       []OrderItem        `json:"items" bson:"items"`
	TotalAmount float64            `json:"totalAmount" bson:"totalAmount"`
	Status      string             `json:"status" bson:"status"`
	PaymentInfo map[string]any     `json:"paymentInfo" bson:"paymentInfo"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
}
