package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization is the tenant boundary. Every catalog and inventory row is
// partitioned by organization id.
type Organization struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	PriceIncreaseStep decimal.Decimal `json:"price_increase_step"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Category struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	DynamicPricing bool      `json:"dynamic_pricing"`
	CreatedAt      time.Time `json:"created_at"`
}

type Product struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	CategoryID     int64            `json:"category_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	BasePrice      decimal.Decimal  `json:"base_price"`
	MaxPrice       *decimal.Decimal `json:"max_price,omitempty"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Inventory is the current stock row for one product. Quantity never goes
// negative; AdjustedPrice overrides the product's BasePrice once dynamic
// pricing has fired at least once.
type Inventory struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	ProductID      int64            `json:"product_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	AdjustedPrice  *decimal.Decimal `json:"adjusted_price,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CurrentPrice is the effective unit price: the adjusted price when dynamic
// pricing has fired at least once, otherwise the product's base price.
func (inv Inventory) CurrentPrice(product Product) decimal.Decimal {
	if inv.AdjustedPrice != nil {
		return *inv.AdjustedPrice
	}
	return product.BasePrice
}

const (
	TxTypeSale   = "SALE"
	TxTypeAdd    = "ADD"
	TxTypeRemove = "REMOVE"
	TxTypeAdjust = "ADJUST"
)

// InventoryTransaction is one append-only audit record. Rows are never
// updated or deleted; an inventory row's quantity always equals the running
// sum of its transaction deltas.
type InventoryTransaction struct {
	ID              int64           `json:"id"`
	InventoryID     int64           `json:"inventory_id"`
	TransactionType string          `json:"transaction_type"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	QuantityBefore  decimal.Decimal `json:"quantity_before"`
	QuantityAfter   decimal.Decimal `json:"quantity_after"`
	PriceBefore     decimal.Decimal `json:"price_before"`
	PriceAfter      decimal.Decimal `json:"price_after"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	BarStationID    *int64          `json:"bar_station_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type BarStation struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is an internal persistence model for auth credentials.
type User struct {
	ID             uuid.UUID
	OrganizationID int64
	Email          string
	Name           string
	PasswordHash   string
	Role           string
	Active         bool
	CreatedAt      time.Time
}

// UserAccount is the outward view of a User, without the credential hash.
type UserAccount struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u User) Account() UserAccount {
	return UserAccount{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Active:         u.Active,
		CreatedAt:      u.CreatedAt,
	}
}

// Principal identifies an authenticated caller. It is produced by the auth
// layer and threaded explicitly into every operation; there is no ambient
// "current user" state.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID int64
	Role           string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type SaleItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SaleRequest struct {
	Items        []SaleItemRequest `json:"items"`
	BarStationID *int64            `json:"bar_station_id,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

type SaleReceiptItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type SaleReceipt struct {
	SaleReferenceID string            `json:"sale_reference_id"`
	Items           []SaleReceiptItem `json:"items"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Notes           string            `json:"notes,omitempty"`
	SettledAt       time.Time         `json:"settled_at"`
}

// SaleSettlement is the fully validated unit of work handed to the store.
// All items settle inside one transactional boundary or not at all.
type SaleSettlement struct {
	ReferenceID    string
	OrganizationID int64
	UserID         uuid.UUID
	BarStationID   *int64
	Notes          string
	Items          []SaleItemRequest
}

// StockChange is a single ADD, REMOVE or ADJUST mutation. For ADD and REMOVE
// Quantity is the (positive) amount moved; for ADJUST it is the target
// quantity the row is set to.
type StockChange struct {
	Type           string
	OrganizationID int64
	UserID         uuid.UUID
	ProductID      int64
	Quantity       decimal.Decimal
	BarStationID   *int64
	Notes          string
	ReferenceID    string
}

// InventoryItem is the read model returned by inventory queries: the stock
// row joined with its product and category.
type InventoryItem struct {
	ProductID     int64            `json:"product_id"`
	ProductName   string           `json:"product_name"`
	CategoryID    int64            `json:"category_id"`
	CategoryName  string           `json:"category_name"`
	Quantity      decimal.Decimal  `json:"quantity"`
	BasePrice     decimal.Decimal  `json:"base_price"`
	AdjustedPrice *decimal.Decimal `json:"adjusted_price,omitempty"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type OrganizationRequest struct {
	Name              string          `json:"name"`
	PriceIncreaseStep decimal.Decimal `json:"price_increase_step"`
}

type CategoryRequest struct {
	Name           string `json:"name"`
	DynamicPricing bool   `json:"dynamic_pricing"`
}

type ProductRequest struct {
	CategoryID  int64            `json:"category_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	BasePrice   decimal.Decimal  `json:"base_price"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
}

type ProductUpdateRequest struct {
	CategoryID  *int64           `json:"category_id,omitempty"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	BasePrice   *decimal.Decimal `json:"base_price,omitempty"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
}

type BarStationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddStockRequest struct {
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	BarStationID *int64          `json:"bar_station_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type RemoveStockRequest struct {
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	BarStationID *int64          `json:"bar_station_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type AdjustStockRequest struct {
	ProductID    int64           `json:"product_id"`
	NewQuantity  decimal.Decimal `json:"new_quantity"`
	BarStationID *int64          `json:"bar_station_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type UserCreateRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}
