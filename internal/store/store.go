package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"barvault/backend/internal/apperr"
	"barvault/backend/internal/domain"
	"barvault/backend/internal/pricing"
)

// Repository is the persistence boundary. Implementations must enforce
// tenant isolation on every read and write, and must run SettleSale and
// ApplyStockChange under one atomic boundary per call: either every row
// mutation and audit append commits, or none does.
type Repository interface {
	CreateOrganization(ctx context.Context, org domain.Organization) (*domain.Organization, error)
	GetOrganization(ctx context.Context, id int64) (*domain.Organization, error)
	UpdateOrganization(ctx context.Context, org domain.Organization) (*domain.Organization, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context, organizationID int64) ([]domain.Category, error)
	GetCategory(ctx context.Context, id int64, organizationID int64) (*domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, organizationID int64, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64, organizationID int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id int64, organizationID int64) error

	CreateBarStation(ctx context.Context, station domain.BarStation) (*domain.BarStation, error)
	ListBarStations(ctx context.Context, organizationID int64) ([]domain.BarStation, error)
	GetBarStation(ctx context.Context, id int64, organizationID int64) (*domain.BarStation, error)
	UpdateBarStation(ctx context.Context, station domain.BarStation) (*domain.BarStation, error)
	DeleteBarStation(ctx context.Context, id int64, organizationID int64) error

	GetInventoryByOrganization(ctx context.Context, organizationID int64, categoryID *int64) ([]domain.InventoryItem, error)
	GetProductInventory(ctx context.Context, productID int64, organizationID int64) (*domain.InventoryItem, error)
	ListTransactionHistory(ctx context.Context, productID int64, organizationID int64) ([]domain.InventoryTransaction, error)

	SettleSale(ctx context.Context, sale domain.SaleSettlement) (*domain.SaleReceipt, error)
	ApplyStockChange(ctx context.Context, change domain.StockChange) (*domain.InventoryItem, error)

	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
}

// RequireOrganization is the tenant isolation guard: a resource read under
// one organization must never surface to a caller from another.
func RequireOrganization(resourceOrgID int64, callerOrgID int64, resourceType string) error {
	if resourceOrgID != callerOrgID {
		return apperr.Forbidden("%s does not belong to your organization", resourceType)
	}
	return nil
}

// ItemSettlement is the computed outcome of selling one line item against a
// snapshot of its product, category, organization and inventory row.
type ItemSettlement struct {
	NewQuantity decimal.Decimal
	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
	TotalPrice  decimal.Decimal
}

// CheckSellable verifies tenant ownership and that the product has not been
// soft-deleted. It runs before the inventory row is even looked up, so a
// cross-tenant or deleted product never leaks its stock state.
func CheckSellable(product domain.Product, callerOrgID int64) error {
	if err := RequireOrganization(product.OrganizationID, callerOrgID, "Product"); err != nil {
		return err
	}
	if !product.Active {
		return apperr.Gone("product %q has been deleted", product.Name)
	}
	return nil
}

// SettleSaleItem applies the stock and pricing rules for one line item
// against an in-transaction snapshot. Both store implementations call it
// under their respective locks so memory and postgres settle identically.
// The caller has already passed CheckSellable. category may be nil when the
// product's category row is gone; dynamic pricing then simply does not fire.
func SettleSaleItem(product domain.Product, category *domain.Category, org domain.Organization, inv domain.Inventory, quantity decimal.Decimal) (ItemSettlement, error) {
	newQuantity := inv.Quantity.Sub(quantity)
	if newQuantity.IsNegative() {
		return ItemSettlement{}, apperr.BadRequest(
			"insufficient stock for %s. Available: %s, Requested: %s",
			product.Name, inv.Quantity, quantity)
	}

	priceBefore := inv.CurrentPrice(product)
	return ItemSettlement{
		NewQuantity: newQuantity,
		PriceBefore: priceBefore,
		PriceAfter:  pricing.Next(priceBefore, category, org, product),
		TotalPrice:  priceBefore.Mul(quantity),
	}, nil
}
