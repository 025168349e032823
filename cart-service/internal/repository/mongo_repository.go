package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/shopcart/cart-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxAttempts bounds the optimistic loops below; each retry means another
// writer changed the same line item between two single-document updates.
const maxAttempts = 5

var errContended = errors.New("cart item is under heavy contention")

type cartDocument struct {
	UserID    string         `bson:"user_id"`
	Items     []itemDocument `bson:"items"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ProductID int64     `bson:"product_id"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

func (d cartDocument) quantityOf(productID int64) (int, bool) {
	for _, it := range d.Items {
		if it.ProductID == productID {
			return it.Quantity, true
		}
	}
	return 0, false
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

// OpenMongoRepository builds the repository and makes sure its indexes exist.
func OpenMongoRepository(ctx context.Context, db *mongo.Database) (CartRepository, error) {
	repo := &mongoRepository{collection: db.Collection("carts")}
	if err := repo.CreateIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart := &domain.Cart{UserID: doc.UserID, Items: make([]domain.CartItem, 0, len(doc.Items))}
	for _, it := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	cart.SortItems()
	return cart, nil
}

func (m *mongoRepository) AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID}

	// Lazily create the cart; the unique index on user_id makes concurrent
	// upserts converge on one document.
	_, err := m.collection.UpdateOne(ctx, filter,
		bson.M{
			"$setOnInsert": bson.M{"items": bson.A{}, "created_at": now},
			"$set":         bson.M{"updated_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert cart: %w", err)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Existing line item with room left: atomic increment.
		var doc cartDocument
		err := m.collection.FindOneAndUpdate(ctx,
			bson.M{
				"user_id": userID,
				"items": bson.M{"$elemMatch": bson.M{
					"product_id": productID,
					"quantity":   bson.M{"$lte": domain.MaxQuantity - quantity},
				}},
			},
			bson.M{
				"$inc": bson.M{"items.$.quantity": quantity},
				"$set": bson.M{"updated_at": now},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if err == nil {
			current, _ := doc.quantityOf(productID)
			return current, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("failed to increment item: %w", err)
		}

		// New line item: push only if nobody else pushed it meanwhile.
		res, err := m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": productID}},
			bson.M{
				"$push": bson.M{"items": itemDocument{ProductID: productID, Quantity: quantity, AddedAt: now}},
				"$set":  bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return 0, fmt.Errorf("failed to add new item: %w", err)
		}
		if res.ModifiedCount == 1 {
			return quantity, nil
		}

		// Neither update matched: the item exists but has no room left, or
		// it was pushed concurrently and the increment should be retried.
		var cart cartDocument
		if err := m.collection.FindOne(ctx, filter).Decode(&cart); err != nil {
			return 0, fmt.Errorf("failed to get cart: %w", err)
		}
		if current, ok := cart.quantityOf(productID); ok && current > domain.MaxQuantity-quantity {
			return 0, ErrQuantityLimit
		}
	}

	return 0, errContended
}

func (m *mongoRepository) RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	now := time.Now().UTC()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Enough left over: decrement in place.
		var doc cartDocument
		err := m.collection.FindOneAndUpdate(ctx,
			bson.M{
				"user_id": userID,
				"items": bson.M{"$elemMatch": bson.M{
					"product_id": productID,
					"quantity":   bson.M{"$gt": quantity},
				}},
			},
			bson.M{
				"$inc": bson.M{"items.$.quantity": -quantity},
				"$set": bson.M{"updated_at": now},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if err == nil {
			remaining, _ := doc.quantityOf(productID)
			return remaining, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("failed to decrement item: %w", err)
		}

		// Would drop to zero or below: pull the line item instead.
		res, err := m.collection.UpdateOne(ctx,
			bson.M{
				"user_id": userID,
				"items": bson.M{"$elemMatch": bson.M{
					"product_id": productID,
					"quantity":   bson.M{"$lte": quantity},
				}},
			},
			bson.M{
				"$pull": bson.M{"items": bson.M{"product_id": productID}},
				"$set":  bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return 0, fmt.Errorf("failed to remove item: %w", err)
		}
		if res.ModifiedCount == 1 {
			return 0, nil
		}

		var cart cartDocument
		err = m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrCartNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get cart: %w", err)
		}
		if _, ok := cart.quantityOf(productID); !ok {
			return 0, ErrItemNotFound
		}
	}

	return 0, errContended
}

func (m *mongoRepository) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}
