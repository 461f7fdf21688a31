package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ProductStatusDraft    = "draft"
	ProductStatusActive   = "active"
	ProductStatusArchived = "archived"
)

type Attribute struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

type Image struct {
	URL     string `json:"url" bson:"url"`
	AltText string `json:"altText,omitempty" bson:"altText,omitempty"`
	Order   int    `json:"order" bson:"order"`
}

// Price is a variant's price record. Sale fields are optional; an absent or
// expired sale window means the base price is charged.
type Price struct {
	Base          float64    `json:"base" bson:"base"`
	Sale          *float64   `json:"sale" bson:"sale"`
	CostPrice     *float64   `json:"-" bson:"costPrice,omitempty"`
	SaleStartDate *time.Time `json:"saleStartDate" bson:"saleStartDate"`
	SaleEndDate   *time.Time `json:"saleEndDate" bson:"saleEndDate"`
}

// SaleActiveAt reports whether the sale price applies at the given instant.
// Each rule short-circuits: no sale, sale not below base, window not open,
// window closed.
func (p Price) SaleActiveAt(now time.Time) bool {
	if p.Sale == nil {
		return false
	}
	if *p.Sale >= p.Base {
		return false
	}
	if p.SaleStartDate != nil && now.Before(*p.SaleStartDate) {
		return false
	}
	if p.SaleEndDate != nil && now.After(*p.SaleEndDate) {
		return false
	}
	return true
}

// EffectiveAt is the unit price to charge at the given instant. Callers must
// re-evaluate this at every point a price is locked in; sale windows are
// time-bound and the result must never be cached across operations.
func (p Price) EffectiveAt(now time.Time) float64 {
	if p.SaleActiveAt(now) {
		return *p.Sale
	}
	return p.Base
}

func (p Price) Validate() error {
	if p.Base < 0 {
		return errors.New("base price cannot be negative")
	}
	if p.Sale != nil && *p.Sale >= p.Base {
		return errors.New("sale price must be less than base price")
	}
	if p.SaleStartDate != nil && p.SaleEndDate != nil && p.SaleStartDate.After(*p.SaleEndDate) {
		return errors.New("sale start date cannot be after sale end date")
	}
	return nil
}

type Inventory struct {
	Quantity          int  `json:"quantity" bson:"quantity"`
	LowStockThreshold int  `json:"lowStockThreshold" bson:"lowStockThreshold"`
	TrackInventory    bool `json:"trackInventory" bson:"trackInventory"`
}

// Variant is the purchasable unit: its own SKU, price record and stock count.
type Variant struct {
	ID         primitive.ObjectID `json:"id" bson:"_id"`
	SKU        string             `json:"sku" bson:"sku"`
	Attributes []Attribute        `json:"attributes" bson:"attributes"`
	Images     []Image            `json:"images,omitempty" bson:"images,omitempty"`
	Price      Price              `json:"price" bson:"price"`
	Inventory  Inventory          `json:"inventory" bson:"inventory"`
	IsActive   bool               `json:"isActive" bson:"isActive"`
}

func (v Variant) Validate() error {
	if strings.TrimSpace(v.SKU) == "" {
		return errors.New("variant SKU is required")
	}
	return v.Price.Validate()
}

// InStock reports whether the variant can currently satisfy a purchase of qty.
func (v Variant) InStock(qty int) bool {
	if !v.Inventory.TrackInventory {
		return true
	}
	return v.Inventory.Quantity >= qty
}

type Product struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Slug        string             `json:"slug" bson:"slug"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Category    primitive.ObjectID `json:"category" bson:"category"`
	Brand       string             `json:"brand" bson:"brand"`
	Variants    []Variant          `json:"variants" bson:"variants"`
	Attributes  []Attribute        `json:"attributes,omitempty" bson:"attributes,omitempty"`
	IsFeatured  bool               `json:"isFeatured" bson:"isFeatured"`
	Status      string             `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// FindVariant returns the variant with the given id, or nil.
func (p *Product) FindVariant(variantID primitive.ObjectID) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// FirstActiveVariant is the default purchase target when no variant is named.
func (p *Product) FirstActiveVariant() *Variant {
	for i := range p.Variants {
		if p.Variants[i].IsActive {
			return &p.Variants[i]
		}
	}
	return nil
}

// LowStockVariants returns the active tracked variants whose quantity has
// fallen to or below their threshold.
func (p *Product) LowStockVariants() []Variant {
	var low []Variant
	for _, v := range p.Variants {
		if v.IsActive && v.Inventory.TrackInventory &&
			v.Inventory.Quantity <= v.Inventory.LowStockThreshold {
			low = append(low, v)
		}
	}
	return low
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.Status != ProductStatusDraft && p.Status != ProductStatusActive && p.Status != ProductStatusArchived {
		return errors.New("invalid product status")
	}
	seen := make(map[string]bool, len(p.Variants))
	for _, v := range p.Variants {
		if err := v.Validate(); err != nil {
			return err
		}
		sku := strings.ToUpper(v.SKU)
		if seen[sku] {
			return errors.New("duplicate SKU " + sku)
		}
		seen[sku] = true
	}
	return nil
}
