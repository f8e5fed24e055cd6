// Package memory provides an in-memory Repository used for local
// development and tests. A single mutex guards all state; sale settlement
// stages its writes on copies and commits only once every line item has
// cleared, so a failed sale leaves nothing behind.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"barvault/backend/internal/apperr"
	"barvault/backend/internal/domain"
	"barvault/backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	organizations map[int64]domain.Organization
	categories    map[int64]domain.Category
	products      map[int64]domain.Product
	inventories   map[int64]domain.Inventory
	invByProduct  map[int64]int64
	transactions  []domain.InventoryTransaction
	barStations   map[int64]domain.BarStation
	usersByEmail  map[string]domain.User

	nextOrgID      int64
	nextCategoryID int64
	nextProductID  int64
	nextInvID      int64
	nextTxID       int64
	nextStationID  int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		organizations: make(map[int64]domain.Organization),
		categories:    make(map[int64]domain.Category),
		products:      make(map[int64]domain.Product),
		inventories:   make(map[int64]domain.Inventory),
		invByProduct:  make(map[int64]int64),
		barStations:   make(map[int64]domain.BarStation),
		usersByEmail:  make(map[string]domain.User),
	}
}

// NewSeeded returns a store pre-loaded with two tenants, a small drink
// catalog and login accounts, enough to exercise every endpoint without a
// database. Seed passwords can be overridden via SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	dec := decimal.RequireFromString

	taproom := s.putOrganization(domain.Organization{Name: "Borealis Taproom", PriceIncreaseStep: dec("2.00"), CreatedAt: now, UpdatedAt: now})
	lounge := s.putOrganization(domain.Organization{Name: "Harbor Lounge", PriceIncreaseStep: dec("1.00"), CreatedAt: now, UpdatedAt: now})

	draft := s.putCategory(domain.Category{OrganizationID: taproom.ID, Name: "Draft Beer", DynamicPricing: true, CreatedAt: now})
	snacks := s.putCategory(domain.Category{OrganizationID: taproom.ID, Name: "Snacks", DynamicPricing: false, CreatedAt: now})
	cocktails := s.putCategory(domain.Category{OrganizationID: lounge.ID, Name: "Cocktails", DynamicPricing: true, CreatedAt: now})

	maxLager := dec("15.00")
	maxAle := dec("10.00")
	maxNegroni := dec("16.00")

	lager := s.putProduct(domain.Product{OrganizationID: taproom.ID, CategoryID: draft.ID, Name: "House Lager", Description: "Crisp, 4.8%", BasePrice: dec("10.00"), MaxPrice: &maxLager, Active: true, CreatedAt: now, UpdatedAt: now})
	ale := s.putProduct(domain.Product{OrganizationID: taproom.ID, CategoryID: draft.ID, Name: "Pale Ale", BasePrice: dec("7.00"), MaxPrice: &maxAle, Active: true, CreatedAt: now, UpdatedAt: now})
	pretzel := s.putProduct(domain.Product{OrganizationID: taproom.ID, CategoryID: snacks.ID, Name: "Bar Pretzel", BasePrice: dec("4.50"), Active: true, CreatedAt: now, UpdatedAt: now})
	stout := s.putProduct(domain.Product{OrganizationID: taproom.ID, CategoryID: draft.ID, Name: "Retired Stout", BasePrice: dec("6.00"), Active: false, CreatedAt: now, UpdatedAt: now})
	s.putProduct(domain.Product{OrganizationID: taproom.ID, CategoryID: draft.ID, Name: "Unstocked Cider", BasePrice: dec("5.00"), Active: true, CreatedAt: now, UpdatedAt: now})
	negroni := s.putProduct(domain.Product{OrganizationID: lounge.ID, CategoryID: cocktails.ID, Name: "Negroni", BasePrice: dec("11.00"), MaxPrice: &maxNegroni, Active: true, CreatedAt: now, UpdatedAt: now})

	s.putInventory(domain.Inventory{OrganizationID: taproom.ID, ProductID: lager.ID, Quantity: dec("5"), UpdatedAt: now})
	s.putInventory(domain.Inventory{OrganizationID: taproom.ID, ProductID: ale.ID, Quantity: dec("200"), UpdatedAt: now})
	s.putInventory(domain.Inventory{OrganizationID: taproom.ID, ProductID: pretzel.ID, Quantity: dec("50"), UpdatedAt: now})
	s.putInventory(domain.Inventory{OrganizationID: taproom.ID, ProductID: stout.ID, Quantity: dec("10"), UpdatedAt: now})
	s.putInventory(domain.Inventory{OrganizationID: lounge.ID, ProductID: negroni.ID, Quantity: dec("40"), UpdatedAt: now})

	s.putBarStation(domain.BarStation{OrganizationID: taproom.ID, Name: "Main Bar", CreatedAt: now})
	s.putBarStation(domain.BarStation{OrganizationID: lounge.ID, Name: "Terrace Bar", CreatedAt: now})

	adminPassword := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPassword := envOr("SEED_STAFF_PASSWORD", "staff123")
	if adminPassword == "admin123" || staffPassword == "staff123" {
		log.Printf("store: using default seed passwords; set SEED_ADMIN_PASSWORD / SEED_STAFF_PASSWORD in any shared environment")
	}

	s.putUser(taproom.ID, "admin@borealis.bar", "Taproom Admin", adminPassword, domain.RoleAdmin, now)
	s.putUser(taproom.ID, "staff@borealis.bar", "Taproom Staff", staffPassword, domain.RoleStaff, now)
	s.putUser(lounge.ID, "admin@harbor.bar", "Harbor Admin", adminPassword, domain.RoleAdmin, now)

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) putOrganization(org domain.Organization) domain.Organization {
	s.nextOrgID++
	org.ID = s.nextOrgID
	s.organizations[org.ID] = org
	return org
}

func (s *Store) putCategory(c domain.Category) domain.Category {
	s.nextCategoryID++
	c.ID = s.nextCategoryID
	s.categories[c.ID] = c
	return c
}

func (s *Store) putProduct(p domain.Product) domain.Product {
	s.nextProductID++
	p.ID = s.nextProductID
	s.products[p.ID] = p
	return p
}

func (s *Store) putInventory(inv domain.Inventory) domain.Inventory {
	s.nextInvID++
	inv.ID = s.nextInvID
	s.inventories[inv.ID] = inv
	s.invByProduct[inv.ProductID] = inv.ID
	return inv
}

func (s *Store) putBarStation(b domain.BarStation) domain.BarStation {
	s.nextStationID++
	b.ID = s.nextStationID
	s.barStations[b.ID] = b
	return b
}

func (s *Store) putUser(orgID int64, email, name, password, role string, now time.Time) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("store: seed user %s skipped: %v", email, err)
		return
	}
	s.usersByEmail[strings.ToLower(email)] = domain.User{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          strings.ToLower(email),
		Name:           name,
		PasswordHash:   string(hash),
		Role:           role,
		Active:         true,
		CreatedAt:      now,
	}
}

// --- organizations ---

func (s *Store) CreateOrganization(_ context.Context, org domain.Organization) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now
	created := s.putOrganization(org)
	return &created, nil
}

func (s *Store) GetOrganization(_ context.Context, id int64) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.organizations[id]
	if !ok {
		return nil, apperr.NotFound("organization %d not found", id)
	}
	return &org, nil
}

func (s *Store) UpdateOrganization(_ context.Context, org domain.Organization) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.organizations[org.ID]
	if !ok {
		return nil, apperr.NotFound("organization %d not found", org.ID)
	}
	existing.Name = org.Name
	existing.PriceIncreaseStep = org.PriceIncreaseStep
	existing.UpdatedAt = time.Now().UTC()
	s.organizations[existing.ID] = existing
	return &existing, nil
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[category.OrganizationID]; !ok {
		return nil, apperr.NotFound("organization %d not found", category.OrganizationID)
	}
	for _, existing := range s.categories {
		if existing.OrganizationID == category.OrganizationID && strings.EqualFold(existing.Name, category.Name) {
			return nil, apperr.Conflict("category %q already exists", category.Name)
		}
	}
	category.CreatedAt = time.Now().UTC()
	created := s.putCategory(category)
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context, organizationID int64) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0)
	for _, c := range s.categories {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64, organizationID int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, apperr.NotFound("category %d not found", id)
	}
	if err := store.RequireOrganization(c.OrganizationID, organizationID, "Category"); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- products ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[product.CategoryID]
	if !ok {
		return nil, apperr.NotFound("category %d not found", product.CategoryID)
	}
	if err := store.RequireOrganization(category.OrganizationID, product.OrganizationID, "Category"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	created := s.putProduct(product)
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, organizationID int64, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.OrganizationID != organizationID {
			continue
		}
		if !p.Active && !includeInactive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64, organizationID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product %d not found", id)
	}
	if err := store.RequireOrganization(p.OrganizationID, organizationID, "Product"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, apperr.NotFound("product %d not found", product.ID)
	}
	if err := store.RequireOrganization(existing.OrganizationID, product.OrganizationID, "Product"); err != nil {
		return nil, err
	}
	if product.CategoryID != existing.CategoryID {
		category, ok := s.categories[product.CategoryID]
		if !ok {
			return nil, apperr.NotFound("category %d not found", product.CategoryID)
		}
		if err := store.RequireOrganization(category.OrganizationID, existing.OrganizationID, "Category"); err != nil {
			return nil, err
		}
	}
	existing.CategoryID = product.CategoryID
	existing.Name = product.Name
	existing.Description = product.Description
	existing.BasePrice = product.BasePrice
	existing.MaxPrice = product.MaxPrice
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id int64, organizationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok {
		return apperr.NotFound("product %d not found", id)
	}
	if err := store.RequireOrganization(existing.OrganizationID, organizationID, "Product"); err != nil {
		return err
	}
	existing.Active = false
	existing.UpdatedAt = time.Now().UTC()
	s.products[id] = existing
	return nil
}

// --- bar stations ---

func (s *Store) CreateBarStation(_ context.Context, station domain.BarStation) (*domain.BarStation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[station.OrganizationID]; !ok {
		return nil, apperr.NotFound("organization %d not found", station.OrganizationID)
	}
	station.CreatedAt = time.Now().UTC()
	created := s.putBarStation(station)
	return &created, nil
}

func (s *Store) ListBarStations(_ context.Context, organizationID int64) ([]domain.BarStation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BarStation, 0)
	for _, b := range s.barStations {
		if b.OrganizationID == organizationID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetBarStation(_ context.Context, id int64, organizationID int64) (*domain.BarStation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.barStations[id]
	if !ok {
		return nil, apperr.NotFound("bar station %d not found", id)
	}
	if err := store.RequireOrganization(b.OrganizationID, organizationID, "Bar station"); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) UpdateBarStation(_ context.Context, station domain.BarStation) (*domain.BarStation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.barStations[station.ID]
	if !ok {
		return nil, apperr.NotFound("bar station %d not found", station.ID)
	}
	if err := store.RequireOrganization(existing.OrganizationID, station.OrganizationID, "Bar station"); err != nil {
		return nil, err
	}
	existing.Name = station.Name
	existing.Description = station.Description
	s.barStations[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteBarStation(_ context.Context, id int64, organizationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.barStations[id]
	if !ok {
		return apperr.NotFound("bar station %d not found", id)
	}
	if err := store.RequireOrganization(existing.OrganizationID, organizationID, "Bar station"); err != nil {
		return err
	}
	delete(s.barStations, id)
	return nil
}

// --- inventory reads ---

func (s *Store) GetInventoryByOrganization(_ context.Context, organizationID int64, categoryID *int64) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryItem, 0)
	for _, inv := range s.inventories {
		if inv.OrganizationID != organizationID {
			continue
		}
		product, ok := s.products[inv.ProductID]
		if !ok {
			continue
		}
		if categoryID != nil && product.CategoryID != *categoryID {
			continue
		}
		out = append(out, s.inventoryItem(product, inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryName != out[j].CategoryName {
			return out[i].CategoryName < out[j].CategoryName
		}
		return out[i].ProductName < out[j].ProductName
	})
	return out, nil
}

func (s *Store) GetProductInventory(_ context.Context, productID int64, organizationID int64) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, inv, err := s.productInventoryLocked(productID, organizationID)
	if err != nil {
		return nil, err
	}
	item := s.inventoryItem(product, inv)
	return &item, nil
}

func (s *Store) ListTransactionHistory(_ context.Context, productID int64, organizationID int64) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, inv, err := s.productInventoryLocked(productID, organizationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.InventoryTransaction, 0)
	for _, tx := range s.transactions {
		if tx.InventoryID == inv.ID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) productInventoryLocked(productID, organizationID int64) (domain.Product, domain.Inventory, error) {
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, domain.Inventory{}, apperr.NotFound("product %d not found", productID)
	}
	if err := store.RequireOrganization(product.OrganizationID, organizationID, "Product"); err != nil {
		return domain.Product{}, domain.Inventory{}, err
	}
	invID, ok := s.invByProduct[productID]
	if !ok {
		return domain.Product{}, domain.Inventory{}, apperr.NotFound("no inventory found for product %s", product.Name)
	}
	return product, s.inventories[invID], nil
}

func (s *Store) inventoryItem(product domain.Product, inv domain.Inventory) domain.InventoryItem {
	categoryName := ""
	if c, ok := s.categories[product.CategoryID]; ok {
		categoryName = c.Name
	}
	return domain.InventoryItem{
		ProductID:     product.ID,
		ProductName:   product.Name,
		CategoryID:    product.CategoryID,
		CategoryName:  categoryName,
		Quantity:      inv.Quantity,
		BasePrice:     product.BasePrice,
		AdjustedPrice: inv.AdjustedPrice,
		CurrentPrice:  inv.CurrentPrice(product),
		UpdatedAt:     inv.UpdatedAt,
	}
}

// --- sale settlement ---

// SettleSale settles every line item or none. Writes are staged on copies
// keyed by inventory id, so two line items for the same product within one
// sale observe each other's decrements, and a failure mid-list discards
// everything.
func (s *Store) SettleSale(_ context.Context, sale domain.SaleSettlement) (*domain.SaleReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.organizations[sale.OrganizationID]
	if !ok {
		return nil, apperr.NotFound("organization %d not found", sale.OrganizationID)
	}
	if sale.BarStationID != nil {
		station, ok := s.barStations[*sale.BarStationID]
		if !ok {
			return nil, apperr.NotFound("bar station %d not found", *sale.BarStationID)
		}
		if err := store.RequireOrganization(station.OrganizationID, sale.OrganizationID, "Bar station"); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	staged := make(map[int64]domain.Inventory)
	pending := make([]domain.InventoryTransaction, 0, len(sale.Items))
	receipt := &domain.SaleReceipt{
		SaleReferenceID: sale.ReferenceID,
		Items:           make([]domain.SaleReceiptItem, 0, len(sale.Items)),
		TotalAmount:     decimal.Zero,
		Notes:           sale.Notes,
		SettledAt:       now,
	}

	for _, item := range sale.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %d not found", item.ProductID)
		}
		if err := store.CheckSellable(product, sale.OrganizationID); err != nil {
			return nil, err
		}
		invID, ok := s.invByProduct[product.ID]
		if !ok {
			return nil, apperr.NotFound("no inventory found for product %s", product.Name)
		}
		inv, ok := staged[invID]
		if !ok {
			inv = s.inventories[invID]
		}

		var category *domain.Category
		if c, ok := s.categories[product.CategoryID]; ok {
			category = &c
		}

		settled, err := store.SettleSaleItem(product, category, org, inv, item.Quantity)
		if err != nil {
			return nil, err
		}

		quantityBefore := inv.Quantity
		inv.Quantity = settled.NewQuantity
		adjusted := settled.PriceAfter
		inv.AdjustedPrice = &adjusted
		inv.UpdatedAt = now
		staged[invID] = inv

		pending = append(pending, domain.InventoryTransaction{
			InventoryID:     invID,
			TransactionType: domain.TxTypeSale,
			QuantityChange:  item.Quantity.Neg(),
			QuantityBefore:  quantityBefore,
			QuantityAfter:   settled.NewQuantity,
			PriceBefore:     settled.PriceBefore,
			PriceAfter:      settled.PriceAfter,
			ReferenceID:     sale.ReferenceID,
			Notes:           "POS Sale",
			CreatedBy:       sale.UserID,
			BarStationID:    sale.BarStationID,
			CreatedAt:       now,
		})
		receipt.Items = append(receipt.Items, domain.SaleReceiptItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   settled.PriceBefore,
			TotalPrice:  settled.TotalPrice,
		})
		receipt.TotalAmount = receipt.TotalAmount.Add(settled.TotalPrice)
	}

	for id, inv := range staged {
		s.inventories[id] = inv
	}
	for _, tx := range pending {
		s.nextTxID++
		tx.ID = s.nextTxID
		s.transactions = append(s.transactions, tx)
	}
	return receipt, nil
}

// --- stock changes ---

func (s *Store) ApplyStockChange(_ context.Context, change domain.StockChange) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[change.ProductID]
	if !ok {
		return nil, apperr.NotFound("product %d not found", change.ProductID)
	}
	if err := store.RequireOrganization(product.OrganizationID, change.OrganizationID, "Product"); err != nil {
		return nil, err
	}
	if change.BarStationID != nil {
		station, ok := s.barStations[*change.BarStationID]
		if !ok {
			return nil, apperr.NotFound("bar station %d not found", *change.BarStationID)
		}
		if err := store.RequireOrganization(station.OrganizationID, change.OrganizationID, "Bar station"); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	invID, exists := s.invByProduct[change.ProductID]
	var inv domain.Inventory
	if exists {
		inv = s.inventories[invID]
	} else {
		if change.Type != domain.TxTypeAdd {
			return nil, apperr.NotFound("no inventory found for product %s", product.Name)
		}
		inv = s.putInventory(domain.Inventory{
			OrganizationID: product.OrganizationID,
			ProductID:      product.ID,
			Quantity:       decimal.Zero,
			UpdatedAt:      now,
		})
		invID = inv.ID
	}

	quantityBefore := inv.Quantity
	var newQuantity, delta decimal.Decimal
	switch change.Type {
	case domain.TxTypeAdd:
		delta = change.Quantity
		newQuantity = quantityBefore.Add(change.Quantity)
	case domain.TxTypeRemove:
		newQuantity = quantityBefore.Sub(change.Quantity)
		if newQuantity.IsNegative() {
			return nil, apperr.BadRequest("insufficient stock for %s. Available: %s, Requested: %s",
				product.Name, quantityBefore, change.Quantity)
		}
		delta = change.Quantity.Neg()
	case domain.TxTypeAdjust:
		newQuantity = change.Quantity
		delta = newQuantity.Sub(quantityBefore)
	default:
		return nil, apperr.New(apperr.KindInternal, "unknown stock change type %q", change.Type)
	}

	price := inv.CurrentPrice(product)
	inv.Quantity = newQuantity
	inv.UpdatedAt = now
	s.inventories[invID] = inv

	s.nextTxID++
	s.transactions = append(s.transactions, domain.InventoryTransaction{
		ID:              s.nextTxID,
		InventoryID:     invID,
		TransactionType: change.Type,
		QuantityChange:  delta,
		QuantityBefore:  quantityBefore,
		QuantityAfter:   newQuantity,
		PriceBefore:     price,
		PriceAfter:      price,
		ReferenceID:     change.ReferenceID,
		Notes:           change.Notes,
		CreatedBy:       change.UserID,
		BarStationID:    change.BarStationID,
		CreatedAt:       now,
	})

	item := s.inventoryItem(product, inv)
	return &item, nil
}

// --- users ---

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByEmail {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.usersByEmail[key]; ok {
		return apperr.Conflict("user %s already exists", user.Email)
	}
	user.Email = key
	s.usersByEmail[key] = user
	return nil
}
