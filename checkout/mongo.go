package checkout

import (
	"context"
	"fmt"
	"time"

	"merza/db"
	"merza/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStores implements the store interfaces on the injected db handle.
// All methods honor the transaction session carried by ctx.
type MongoStores struct {
	DB *db.Store
}

func NewMongoStores(store *db.Store) *MongoStores {
	return &MongoStores{DB: store}
}

func (m *MongoStores) FindVariant(ctx context.Context, productID, variantID primitive.ObjectID) (*models.Variant, error) {
	var product models.Product
	err := m.DB.Products.FindOne(ctx,
		bson.M{"_id": productID, "variants._id": variantID},
		options.FindOne().SetProjection(bson.M{"variants": 1}),
	).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find variant: %w", err)
	}

	variant := product.FindVariant(variantID)
	if variant == nil {
		return nil, ErrVariantNotFound
	}
	return variant, nil
}

// ConditionalDecrementStock is the compare-and-decrement that prevents
// overselling: the quantity guard sits in the filter, so the write matches
// only while enough stock is present.
func (m *MongoStores) ConditionalDecrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error) {
	filter := bson.M{
		"_id": productID,
		"variants": bson.M{"$elemMatch": bson.M{
			"_id":                variantID,
			"inventory.quantity": bson.M{"$gte": qty},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"variants.$.inventory.quantity": -qty},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	result, err := m.DB.Products.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (m *MongoStores) LoadCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	err := m.DB.Carts.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &cart, nil
}

func (m *MongoStores) SaveCart(ctx context.Context, cart *models.Cart) error {
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
		cart.CreatedAt = time.Now()
	}
	_, err := m.DB.Carts.ReplaceOne(ctx,
		bson.M{"userId": cart.UserID},
		cart,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (m *MongoStores) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := m.DB.Orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}
