// Package service orchestrates the sale settlement and catalog operations
// on top of the store. It owns request validation and role checks; the
// store owns tenant checks and the transactional stock rules.
package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barvault/backend/internal/apperr"
	"barvault/backend/internal/cache"
	"barvault/backend/internal/domain"
	"barvault/backend/internal/store"
	"barvault/backend/internal/xid"
)

type Service struct {
	repo     store.Repository
	inv      cache.InventoryCache
	cacheTTL time.Duration
}

func New(repo store.Repository, inv cache.InventoryCache, cacheTTL time.Duration) *Service {
	if inv == nil {
		inv = cache.NoopInventoryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		inv:      inv,
		cacheTTL: cacheTTL,
	}
}

func requireAdmin(principal domain.Principal) error {
	if !principal.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

// --- sales ---

// ProcessSale validates the request shape, then hands the whole sale to the
// store as one unit. Either every line item settles or none do.
func (s *Service) ProcessSale(ctx context.Context, principal domain.Principal, req domain.SaleRequest) (*domain.SaleReceipt, error) {
	if len(req.Items) == 0 {
		return nil, apperr.BadRequest("sale requires at least one item")
	}
	for _, item := range req.Items {
		if item.ProductID < 1 {
			return nil, apperr.BadRequest("product id is required")
		}
		if !item.Quantity.IsPositive() {
			return nil, apperr.BadRequest("quantity must be greater than zero")
		}
	}

	settlement := domain.SaleSettlement{
		ReferenceID:    xid.New("SALE"),
		OrganizationID: principal.OrganizationID,
		UserID:         principal.UserID,
		BarStationID:   req.BarStationID,
		Notes:          strings.TrimSpace(req.Notes),
		Items:          req.Items,
	}

	receipt, err := s.repo.SettleSale(ctx, settlement)
	if err != nil {
		return nil, err
	}

	s.invalidateInventory(ctx, principal.OrganizationID)
	log.Printf("[service] sale %s settled: org=%d items=%d total=%s",
		receipt.SaleReferenceID, principal.OrganizationID, len(receipt.Items), receipt.TotalAmount)
	return receipt, nil
}

// --- stock ---

func (s *Service) AddStock(ctx context.Context, principal domain.Principal, req domain.AddStockRequest) (*domain.InventoryItem, error) {
	if req.ProductID < 1 {
		return nil, apperr.BadRequest("product id is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, apperr.BadRequest("quantity must be greater than zero")
	}
	return s.applyStockChange(ctx, principal, domain.StockChange{
		Type:         domain.TxTypeAdd,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		BarStationID: req.BarStationID,
		Notes:        defaultNotes(req.Notes, "Stock added"),
		ReferenceID:  xid.New("ADD"),
	})
}

func (s *Service) RemoveStock(ctx context.Context, principal domain.Principal, req domain.RemoveStockRequest) (*domain.InventoryItem, error) {
	if req.ProductID < 1 {
		return nil, apperr.BadRequest("product id is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, apperr.BadRequest("quantity must be greater than zero")
	}
	return s.applyStockChange(ctx, principal, domain.StockChange{
		Type:         domain.TxTypeRemove,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		BarStationID: req.BarStationID,
		Notes:        defaultNotes(req.Notes, "Stock removed"),
		ReferenceID:  xid.New("REMOVE"),
	})
}

func (s *Service) AdjustStock(ctx context.Context, principal domain.Principal, req domain.AdjustStockRequest) (*domain.InventoryItem, error) {
	if req.ProductID < 1 {
		return nil, apperr.BadRequest("product id is required")
	}
	if req.NewQuantity.IsNegative() {
		return nil, apperr.BadRequest("new quantity must not be negative")
	}
	return s.applyStockChange(ctx, principal, domain.StockChange{
		Type:         domain.TxTypeAdjust,
		ProductID:    req.ProductID,
		Quantity:     req.NewQuantity,
		BarStationID: req.BarStationID,
		Notes:        defaultNotes(req.Notes, "Stock adjusted"),
		ReferenceID:  xid.New("ADJUST"),
	})
}

func (s *Service) applyStockChange(ctx context.Context, principal domain.Principal, change domain.StockChange) (*domain.InventoryItem, error) {
	change.OrganizationID = principal.OrganizationID
	change.UserID = principal.UserID

	item, err := s.repo.ApplyStockChange(ctx, change)
	if err != nil {
		return nil, err
	}

	s.invalidateInventory(ctx, principal.OrganizationID)
	log.Printf("[service] stock change %s applied: org=%d product=%d qty=%s",
		change.ReferenceID, principal.OrganizationID, change.ProductID, item.Quantity)
	return item, nil
}

func defaultNotes(notes string, fallback string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return fallback
	}
	return notes
}

// --- inventory reads ---

// GetInventory serves the unfiltered snapshot from cache when possible.
// Category-filtered reads always go to the store; they are rare enough that
// caching every filter combination is not worth the invalidation churn.
func (s *Service) GetInventory(ctx context.Context, principal domain.Principal, categoryID *int64) ([]domain.InventoryItem, error) {
	if categoryID != nil {
		return s.repo.GetInventoryByOrganization(ctx, principal.OrganizationID, categoryID)
	}

	if items, ok, err := s.inv.Get(ctx, principal.OrganizationID); err != nil {
		log.Printf("[service] WARN: inventory cache read failed org=%d: %v", principal.OrganizationID, err)
	} else if ok {
		return items, nil
	}

	items, err := s.repo.GetInventoryByOrganization(ctx, principal.OrganizationID, nil)
	if err != nil {
		return nil, err
	}
	if err := s.inv.Set(ctx, principal.OrganizationID, items, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: inventory cache write failed org=%d: %v", principal.OrganizationID, err)
	}
	return items, nil
}

func (s *Service) GetProductInventory(ctx context.Context, principal domain.Principal, productID int64) (*domain.InventoryItem, error) {
	return s.repo.GetProductInventory(ctx, productID, principal.OrganizationID)
}

func (s *Service) GetTransactionHistory(ctx context.Context, principal domain.Principal, productID int64) ([]domain.InventoryTransaction, error) {
	return s.repo.ListTransactionHistory(ctx, productID, principal.OrganizationID)
}

func (s *Service) invalidateInventory(ctx context.Context, organizationID int64) {
	if err := s.inv.Invalidate(ctx, organizationID); err != nil {
		log.Printf("[service] WARN: inventory cache invalidate failed org=%d: %v", organizationID, err)
	}
}

// --- organizations ---

func (s *Service) CreateOrganization(ctx context.Context, principal domain.Principal, req domain.OrganizationRequest) (*domain.Organization, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("organization name is required")
	}
	if req.PriceIncreaseStep.IsNegative() {
		return nil, apperr.BadRequest("price increase step must not be negative")
	}
	return s.repo.CreateOrganization(ctx, domain.Organization{
		Name:              name,
		PriceIncreaseStep: req.PriceIncreaseStep,
	})
}

func (s *Service) GetOrganization(ctx context.Context, principal domain.Principal) (*domain.Organization, error) {
	return s.repo.GetOrganization(ctx, principal.OrganizationID)
}

func (s *Service) UpdateOrganization(ctx context.Context, principal domain.Principal, req domain.OrganizationRequest) (*domain.Organization, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("organization name is required")
	}
	if req.PriceIncreaseStep.IsNegative() {
		return nil, apperr.BadRequest("price increase step must not be negative")
	}

	org, err := s.repo.UpdateOrganization(ctx, domain.Organization{
		ID:                principal.OrganizationID,
		Name:              name,
		PriceIncreaseStep: req.PriceIncreaseStep,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[service] organization %d updated: step=%s", org.ID, org.PriceIncreaseStep)
	return org, nil
}

// --- categories ---

func (s *Service) CreateCategory(ctx context.Context, principal domain.Principal, req domain.CategoryRequest) (*domain.Category, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("category name is required")
	}
	return s.repo.CreateCategory(ctx, domain.Category{
		OrganizationID: principal.OrganizationID,
		Name:           name,
		DynamicPricing: req.DynamicPricing,
	})
}

func (s *Service) ListCategories(ctx context.Context, principal domain.Principal) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, principal.OrganizationID)
}

// --- products ---

func validatePrices(basePrice decimal.Decimal, maxPrice *decimal.Decimal) error {
	if !basePrice.IsPositive() {
		return apperr.BadRequest("base price must be greater than zero")
	}
	if maxPrice != nil && maxPrice.LessThan(basePrice) {
		return apperr.BadRequest("max price must not be below base price")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, principal domain.Principal, req domain.ProductRequest) (*domain.Product, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("product name is required")
	}
	if req.CategoryID < 1 {
		return nil, apperr.BadRequest("category id is required")
	}
	if err := validatePrices(req.BasePrice, req.MaxPrice); err != nil {
		return nil, err
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		OrganizationID: principal.OrganizationID,
		CategoryID:     req.CategoryID,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		BasePrice:      req.BasePrice,
		MaxPrice:       req.MaxPrice,
	})
}

func (s *Service) ListProducts(ctx context.Context, principal domain.Principal, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, principal.OrganizationID, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, principal domain.Principal, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id, principal.OrganizationID)
}

func (s *Service) UpdateProduct(ctx context.Context, principal domain.Principal, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, id, principal.OrganizationID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.CategoryID != nil {
		if *req.CategoryID < 1 {
			return nil, apperr.BadRequest("category id is required")
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.BadRequest("product name is required")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.BasePrice != nil {
		updated.BasePrice = *req.BasePrice
	}
	if req.MaxPrice != nil {
		updated.MaxPrice = req.MaxPrice
	}
	if err := validatePrices(updated.BasePrice, updated.MaxPrice); err != nil {
		return nil, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidateInventory(ctx, principal.OrganizationID)
	return saved, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, principal domain.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if err := s.repo.DeactivateProduct(ctx, id, principal.OrganizationID); err != nil {
		return err
	}
	s.invalidateInventory(ctx, principal.OrganizationID)
	log.Printf("[service] product %d deactivated: org=%d", id, principal.OrganizationID)
	return nil
}

// --- bar stations ---

func (s *Service) CreateBarStation(ctx context.Context, principal domain.Principal, req domain.BarStationRequest) (*domain.BarStation, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("bar station name is required")
	}
	return s.repo.CreateBarStation(ctx, domain.BarStation{
		OrganizationID: principal.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
	})
}

func (s *Service) ListBarStations(ctx context.Context, principal domain.Principal) ([]domain.BarStation, error) {
	return s.repo.ListBarStations(ctx, principal.OrganizationID)
}

func (s *Service) GetBarStation(ctx context.Context, principal domain.Principal, id int64) (*domain.BarStation, error) {
	return s.repo.GetBarStation(ctx, id, principal.OrganizationID)
}

func (s *Service) UpdateBarStation(ctx context.Context, principal domain.Principal, id int64, req domain.BarStationRequest) (*domain.BarStation, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("bar station name is required")
	}
	return s.repo.UpdateBarStation(ctx, domain.BarStation{
		ID:             id,
		OrganizationID: principal.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
	})
}

func (s *Service) DeleteBarStation(ctx context.Context, principal domain.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	return s.repo.DeleteBarStation(ctx, id, principal.OrganizationID)
}
