package repository

import (
	"context"
	"errors"

	"github.com/fjod/shopcart/cart-service/internal/domain"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrItemNotFound  = errors.New("item not found in cart")
	ErrQuantityLimit = errors.New("cart item quantity limit exceeded")
)

// CartRepository defines the interface for cart data operations.
// Every mutation is atomic in the backing store, so concurrent callers for
// the same user never lose an update.
type CartRepository interface {
	// GetCart returns ErrCartNotFound when the user never added anything.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// AddItem creates the cart if needed, increments the line item by
	// quantity and returns the new quantity. Returns ErrQuantityLimit, and
	// changes nothing, when the sum would exceed domain.MaxQuantity.
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error)

	// RemoveItem decrements the line item by quantity, deleting it when the
	// result is not positive, and returns what is left (0 when deleted).
	// Returns ErrCartNotFound or ErrItemNotFound.
	RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error)

	Close(ctx context.Context) error
}
