package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Store bundles the Mongo client and the collections this service touches.
// It is constructed once in main and handed to whoever needs it; nothing in
// this package keeps process-wide state.
type Store struct {
	Client *mongo.Client

	Users      *mongo.Collection
	Products   *mongo.Collection
	Categories *mongo.Collection
	Carts      *mongo.Collection
	Orders     *mongo.Collection
	Wishlists  *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	database := client.Database(dbName)
	return &Store{
		Client:     client,
		Users:      database.Collection("users"),
		Products:   database.Collection("products"),
		Categories: database.Collection("categories"),
		Carts:      database.Collection("carts"),
		Orders:     database.Collection("orders"),
		Wishlists:  database.Collection("wishlists"),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the data model relies on: one cart and
// one wishlist per user, unique slugs, unique SKUs across variants.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.Carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("carts index: %w", err)
	}

	_, err = s.Wishlists.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("wishlists index: %w", err)
	}

	_, err = s.Products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "variants.sku", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("products indexes: %w", err)
	}

	_, err = s.Categories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("categories index: %w", err)
	}

	_, err = s.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}

	_, err = s.Orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("orders index: %w", err)
	}
	return nil
}

// RunInTransaction executes fn inside a single multi-document transaction.
// Every store call made with the callback's context participates; a returned
// error aborts and rolls back all writes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	return err
}
