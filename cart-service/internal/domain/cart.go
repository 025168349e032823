package domain

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line item may hold.
const MaxQuantity = math.MaxInt32

type Cart struct {
	UserID string
	Items  []CartItem
}

// CartItem is a line item. Quantity is always positive once persisted.
type CartItem struct {
	ProductID int64
	Quantity  int
}

// ItemMap renders the line items the way the HTTP API exposes them.
func (c Cart) ItemMap() map[int64]int {
	m := make(map[int64]int, len(c.Items))
	for _, it := range c.Items {
		m[it.ProductID] = it.Quantity
	}
	return m
}

// SortItems orders line items by product id so every store returns the same
// shape.
func (c *Cart) SortItems() {
	sort.Slice(c.Items, func(i, j int) bool {
		return c.Items[i].ProductID < c.Items[j].ProductID
	})
}

// PricedCart is a cart enriched with live catalog prices.
type PricedCart struct {
	Cart
	TotalPrice decimal.Decimal
	// Missing lists product ids the catalog no longer knows about.
	Missing []int64
}
