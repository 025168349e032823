package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/fjod/shopcart/cart-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCartRepositoryTests exercises the behaviour every CartRepository
// implementation must share. Each subtest uses its own user id, so the
// backing store can be reused across subtests.
func runCartRepositoryTests(t *testing.T, repo CartRepository) {
	t.Helper()

	t.Run("GetCart_NotFound", func(t *testing.T) {
		cart, err := repo.GetCart(context.Background(), gofakeit.UUID())

		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("AddItem_NewCart", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		qty, err := repo.AddItem(ctx, userID, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, qty)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, cart.UserID)
		assert.Equal(t, []domain.CartItem{{ProductID: 1, Quantity: 3}}, cart.Items)
	})

	t.Run("AddItem_ExistingItem_Increments", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 7, 2)
		require.NoError(t, err)
		qty, err := repo.AddItem(ctx, userID, 7, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, qty)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{7: 5}, cart.ItemMap())
	})

	t.Run("AddItem_MultipleProducts_Sorted", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		for _, id := range []int64{30, 10, 20} {
			_, err := repo.AddItem(ctx, userID, id, int(id))
			require.NoError(t, err)
		}

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []domain.CartItem{
			{ProductID: 10, Quantity: 10},
			{ProductID: 20, Quantity: 20},
			{ProductID: 30, Quantity: 30},
		}, cart.Items)
	})

	t.Run("AddItem_QuantityLimit", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 3, domain.MaxQuantity-1)
		require.NoError(t, err)

		_, err = repo.AddItem(ctx, userID, 3, 2)
		require.ErrorIs(t, err, ErrQuantityLimit)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{3: domain.MaxQuantity - 1}, cart.ItemMap(), "a rejected add must not change the cart")

		qty, err := repo.AddItem(ctx, userID, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxQuantity, qty)
	})

	t.Run("RemoveItem_Partial", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 4, 5)
		require.NoError(t, err)

		remaining, err := repo.RemoveItem(ctx, userID, 4, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, remaining)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{4: 3}, cart.ItemMap())
	})

	t.Run("RemoveItem_MoreThanPresent_DeletesEntry", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 4, 2)
		require.NoError(t, err)
		_, err = repo.AddItem(ctx, userID, 8, 1)
		require.NoError(t, err)

		remaining, err := repo.RemoveItem(ctx, userID, 4, 5)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{8: 1}, cart.ItemMap())
	})

	t.Run("RemoveItem_LastItem_KeepsEmptyCart", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 9, 1)
		require.NoError(t, err)
		remaining, err := repo.RemoveItem(ctx, userID, 9, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
	})

	t.Run("RemoveItem_CartNotFound", func(t *testing.T) {
		_, err := repo.RemoveItem(context.Background(), gofakeit.UUID(), 1, 1)
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("RemoveItem_ItemNotFound", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()

		_, err := repo.AddItem(ctx, userID, 1, 1)
		require.NoError(t, err)

		_, err = repo.RemoveItem(ctx, userID, 2, 1)
		assert.ErrorIs(t, err, ErrItemNotFound)

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{1: 1}, cart.ItemMap())
	})

	t.Run("AddItem_Concurrent_NoLostUpdates", func(t *testing.T) {
		ctx := context.Background()
		userID := gofakeit.UUID()
		const workers = 25

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AddItem(ctx, userID, 42, 2)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		cart, err := repo.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{42: workers * 2}, cart.ItemMap())
	})
}
