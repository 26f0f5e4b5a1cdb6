// Package pricing turns a cart and an authoritative grand total into per-line
// prices.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
)

// Scale is the number of decimal places money is kept at.
const Scale = 2

// Source returns the authoritative grand total for a cart.
type Source interface {
	GrandTotal(ctx context.Context, cart *domain.Cart) (decimal.Decimal, error)
}

// Calculator spreads the grand total evenly across the cart's item count.
// There is no line-level pricing source, so every unit carries the same
// price.
type Calculator struct {
	source Source
}

// NewCalculator creates a calculator backed by source.
func NewCalculator(source Source) *Calculator {
	return &Calculator{source: source}
}

// Price returns the breakdown for cart. An empty cart prices to zero without
// consulting the source.
func (c *Calculator) Price(ctx context.Context, cart *domain.Cart) (*domain.PriceBreakdown, error) {
	if cart == nil || cart.ItemCount() == 0 {
		return &domain.PriceBreakdown{
			GrandTotal: decimal.Zero,
			UnitPrice:  decimal.Zero,
			Lines:      linesAt(cart, decimal.Zero),
		}, nil
	}

	total, err := c.source.GrandTotal(ctx, cart)
	if err != nil {
		return nil, fmt.Errorf("fetch grand total: %w", err)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("pricing source returned negative total %s", total.StringFixed(Scale))
	}

	return Allocate(total, cart), nil
}

// Allocate computes unitPrice = total / itemCount (2dp, half away from zero).
// The rounding remainder is spread one cent per unit over the trailing units,
// so each unit costs unitPrice or unitPrice ± 0.01 and the lines sum to total
// exactly. A cart line whose units end up at two prices is returned as two
// lines for the same product. Every line satisfies
// LineTotal == UnitPrice * Quantity and none is negative.
func Allocate(total decimal.Decimal, cart *domain.Cart) *domain.PriceBreakdown {
	total = total.Round(Scale)
	count := cart.ItemCount()
	if count == 0 {
		return &domain.PriceBreakdown{GrandTotal: total, UnitPrice: decimal.Zero, Lines: linesAt(cart, decimal.Zero)}
	}

	unit := total.DivRound(decimal.NewFromInt(int64(count)), Scale)

	// |remainder| <= count/2 cents. It is only negative when unit was rounded
	// up, so unit - 0.01 is never below zero.
	cent := decimal.New(1, -Scale)
	remainder := total.Sub(unit.Mul(decimal.NewFromInt(int64(count)))).Div(cent).IntPart()
	adjustedUnit := unit.Add(cent)
	if remainder < 0 {
		adjustedUnit = unit.Sub(cent)
		remainder = -remainder
	}

	adjusted := make([]int, len(cart.Items))
	for i := len(cart.Items) - 1; i >= 0 && remainder > 0; i-- {
		n := min(int64(cart.Items[i].Quantity), remainder)
		adjusted[i] = int(n)
		remainder -= n
	}

	lines := make([]domain.LinePrice, 0, len(cart.Items)+1)
	for i, item := range cart.Items {
		if plain := item.Quantity - adjusted[i]; plain > 0 {
			lines = append(lines, linePrice(item.ProductID, plain, unit))
		}
		if adjusted[i] > 0 {
			lines = append(lines, linePrice(item.ProductID, adjusted[i], adjustedUnit))
		}
	}

	return &domain.PriceBreakdown{GrandTotal: total, UnitPrice: unit, Lines: lines}
}

func linePrice(productID string, quantity int, unit decimal.Decimal) domain.LinePrice {
	return domain.LinePrice{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(quantity))).Round(Scale),
	}
}

func linesAt(cart *domain.Cart, unit decimal.Decimal) []domain.LinePrice {
	if cart == nil {
		return []domain.LinePrice{}
	}
	lines := make([]domain.LinePrice, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = linePrice(item.ProductID, item.Quantity, unit)
	}
	return lines
}
