package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/shopcart/cart-service/internal/catalog"
	"github.com/fjod/shopcart/cart-service/internal/domain"
	"github.com/fjod/shopcart/cart-service/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")

// ProductReader is the part of the catalog client the cart needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
}

type CartService struct {
	repo          repository.CartRepository
	catalog       ProductReader
	maxConcurrent int
	log           *slog.Logger
}

func NewCartService(repo repository.CartRepository, products ProductReader, maxConcurrent int, log *slog.Logger) *CartService {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &CartService{
		repo:          repo,
		catalog:       products,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

// GetCart loads the cart and prices it against the catalog, one lookup per
// line item, run concurrently. Products the catalog does not know count as
// zero and are listed in Missing; any other catalog failure fails the call.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.PricedCart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	subtotals := make([]decimal.Decimal, len(cart.Items))
	missing := make([]bool, len(cart.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, item := range cart.Items {
		i, item := i, item
		g.Go(func() error {
			product, err := s.catalog.GetProduct(gctx, item.ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				missing[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("price product %d: %w", item.ProductID, err)
			}
			subtotals[i] = decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priced := &domain.PricedCart{Cart: *cart, TotalPrice: decimal.Zero}
	for i, item := range cart.Items {
		if missing[i] {
			priced.Missing = append(priced.Missing, item.ProductID)
			continue
		}
		priced.TotalPrice = priced.TotalPrice.Add(subtotals[i])
	}

	if len(priced.Missing) > 0 {
		s.log.WarnContext(ctx, "cart references products missing from catalog",
			slog.String("user_id", userID),
			slog.Any("product_ids", priced.Missing))
	}

	return priced, nil
}

// AddItem checks the product exists in the catalog, then increments the
// line item. It returns the new quantity.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	if !validQuantity(quantity) {
		return 0, ErrInvalidQuantity
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return 0, fmt.Errorf("check product %d: %w", productID, err)
	}

	current, err := s.repo.AddItem(ctx, userID, productID, quantity)
	if errors.Is(err, repository.ErrQuantityLimit) {
		return 0, err
	}
	if err != nil {
		s.log.ErrorContext(ctx, "repo add item failed",
			slog.String("user_id", userID),
			slog.Int64("product_id", productID),
			slog.Any("err", err))
		return 0, err
	}

	return current, nil
}

// RemoveItem decrements the line item and returns the remaining quantity.
func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	if !validQuantity(quantity) {
		return 0, ErrInvalidQuantity
	}

	remaining, err := s.repo.RemoveItem(ctx, userID, productID, quantity)
	if err != nil {
		if !errors.Is(err, repository.ErrCartNotFound) && !errors.Is(err, repository.ErrItemNotFound) {
			s.log.ErrorContext(ctx, "repo remove item failed",
				slog.String("user_id", userID),
				slog.Int64("product_id", productID),
				slog.Any("err", err))
		}
		return 0, err
	}

	return remaining, nil
}

func validQuantity(q int) bool {
	return q >= 1 && q <= domain.MaxQuantity
}
