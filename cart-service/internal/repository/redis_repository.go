package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/shopcart/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis layout per user:
//
//	cart:meta:{user_id}   string, creation timestamp; marks that the cart exists
//	cart:items:{user_id}  hash, product id -> quantity
//
// The user id always comes last, so no user id can produce another user's
// key. The marker key is needed because Redis drops a hash once its last
// field is deleted, while an emptied cart must still be found.
const (
	cartMetaPrefix  = "cart:meta:"
	cartItemsPrefix = "cart:items:"
)

// removeItemScript returns -2 when the cart is missing, -1 when the line
// item is missing, otherwise the remaining quantity (0 when deleted).
var removeItemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if not cur then
	return -1
end
local rem = tonumber(cur) - tonumber(ARGV[2])
if rem <= 0 then
	redis.call('HDEL', KEYS[2], ARGV[1])
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], rem)
return rem
`)

// addItemScript returns -1, writing nothing, when the new quantity would
// exceed ARGV[3]; otherwise it marks the cart as existing and returns the new
// quantity.
var addItemScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
local nxt = cur + tonumber(ARGV[2])
if nxt > tonumber(ARGV[3]) then
	return -1
end
redis.call('SETNX', KEYS[1], ARGV[4])
redis.call('HSET', KEYS[2], ARGV[1], nxt)
return nxt
`)

type redisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) CartRepository {
	return &redisRepository{client: client}
}

func cartKey(userID string) string {
	return cartMetaPrefix + userID
}

func itemsKey(userID string) string {
	return cartItemsPrefix + userID
}

func (r *redisRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	pipe := r.client.Pipeline()
	exists := pipe.Exists(ctx, cartKey(userID))
	fields := pipe.HGetAll(ctx, itemsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	if exists.Val() == 0 {
		return nil, ErrCartNotFound
	}

	cart := &domain.Cart{UserID: userID, Items: make([]domain.CartItem, 0, len(fields.Val()))}
	for field, value := range fields.Val() {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt product id %q in cart %s: %w", field, userID, err)
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity for product %d in cart %s: %w", productID, userID, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: qty})
	}
	cart.SortItems()

	return cart, nil
}

func (r *redisRepository) AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	res, err := addItemScript.Run(ctx, r.client,
		[]string{cartKey(userID), itemsKey(userID)},
		strconv.FormatInt(productID, 10), quantity, domain.MaxQuantity, time.Now().UTC().Format(time.RFC3339),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to add item: %w", err)
	}
	if res < 0 {
		return 0, ErrQuantityLimit
	}

	return res, nil
}

func (r *redisRepository) RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	res, err := removeItemScript.Run(ctx, r.client,
		[]string{cartKey(userID), itemsKey(userID)},
		strconv.FormatInt(productID, 10), quantity,
	).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("unexpected empty reply from remove script: %w", err)
		}
		return 0, fmt.Errorf("failed to remove item: %w", err)
	}

	switch res {
	case -2:
		return 0, ErrCartNotFound
	case -1:
		return 0, ErrItemNotFound
	}
	return res, nil
}

func (r *redisRepository) Close(context.Context) error {
	return r.client.Close()
}
