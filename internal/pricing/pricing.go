// Package pricing implements the dynamic surge-pricing policy: each sale of
// a product in a dynamically priced category nudges its effective price up by
// the organization's fixed step, capped at the product's ceiling.
package pricing

import (
	"github.com/shopspring/decimal"

	"barvault/backend/internal/domain"
)

// Next computes the post-sale unit price. It is a pure function: no change
// when the category (or its flag) is absent, otherwise current + step,
// clamped to the product's max price when one is set.
func Next(current decimal.Decimal, category *domain.Category, org domain.Organization, product domain.Product) decimal.Decimal {
	if category == nil || !category.DynamicPricing {
		return current
	}
	next := current.Add(org.PriceIncreaseStep)
	if product.MaxPrice != nil && next.GreaterThan(*product.MaxPrice) {
		next = *product.MaxPrice
	}
	return next
}
