package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const TaxRate = "0.08"

var (
	ErrNoItems         = errors.New("at least one item is required")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNegativePrice   = errors.New("price cannot be negative")

	taxRate           = decimal.RequireFromString(TaxRate)
	freeShippingAbove = decimal.NewFromInt(100)
	flatShipping      = decimal.NewFromInt(10)
)

// Item is one (unit price, quantity) pair to be priced.
type Item struct {
	Price    decimal.Decimal
	Quantity int
}

// Quote is the itemized result of pricing an order.
type Quote struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Calculate prices an ordered list of items: 8% tax on the item subtotal,
// free shipping when the subtotal exceeds $100 (flat $10 otherwise), and all
// derived amounts rounded to 2 decimals. Pure and deterministic.
func Calculate(items []Item) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, ErrNoItems
	}

	itemsPrice := decimal.Zero
	for i, item := range items {
		if item.Quantity < 1 {
			return Quote{}, fmt.Errorf("item %d: %w", i, ErrInvalidQuantity)
		}
		if item.Price.IsNegative() {
			return Quote{}, fmt.Errorf("item %d: %w", i, ErrNegativePrice)
		}
		itemsPrice = itemsPrice.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	taxPrice := itemsPrice.Mul(taxRate).Round(2)

	shippingPrice := flatShipping
	if itemsPrice.GreaterThan(freeShippingAbove) {
		shippingPrice = decimal.Zero
	}

	totalPrice := itemsPrice.Add(taxPrice).Add(shippingPrice).Round(2)

	return Quote{
		ItemsPrice:    itemsPrice.Round(2),
		TaxPrice:      taxPrice,
		ShippingPrice: shippingPrice,
		TotalPrice:    totalPrice,
	}, nil
}

// MinorUnits converts an amount to integer minor units (cents) for the
// payment processor.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
