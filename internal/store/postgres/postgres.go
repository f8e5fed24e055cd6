package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"barvault/backend/internal/apperr"
	"barvault/backend/internal/domain"
	"barvault/backend/internal/store"
)

// settleAttempts bounds the retry loop around serialization failures. A
// sale that still cannot settle after this many attempts surfaces as a
// conflict for the client to retry.
const settleAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(err, "ping database")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Repository = (*Store)(nil)

// --- organizations ---

func (s *Store) CreateOrganization(ctx context.Context, org domain.Organization) (*domain.Organization, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (name, price_increase_step, created_at, updated_at)
		VALUES ($1,$2,now(),now())
		RETURNING id, created_at, updated_at
	`, org.Name, org.PriceIncreaseStep).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Store) GetOrganization(ctx context.Context, id int64) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price_increase_step, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.PriceIncreaseStep, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("organization %d not found", id)
		}
		return nil, err
	}
	return &org, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, org domain.Organization) (*domain.Organization, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE organizations
		SET name = $2, price_increase_step = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, price_increase_step, created_at, updated_at
	`, org.ID, org.Name, org.PriceIncreaseStep).Scan(&org.ID, &org.Name, &org.PriceIncreaseStep, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("organization %d not found", org.ID)
		}
		return nil, err
	}
	return &org, nil
}

// --- categories ---

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (organization_id, name, dynamic_pricing, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, category.OrganizationID, category.Name, category.DynamicPricing).Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("category %q already exists", category.Name)
		}
		if isForeignKeyViolation(err) {
			return nil, apperr.NotFound("organization %d not found", category.OrganizationID)
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context, organizationID int64) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, dynamic_pricing, created_at
		FROM categories
		WHERE organization_id = $1
		ORDER BY name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.DynamicPricing, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64, organizationID int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, dynamic_pricing, created_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.DynamicPricing, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("category %d not found", id)
		}
		return nil, err
	}
	if err := store.RequireOrganization(c.OrganizationID, organizationID, "Category"); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- products ---

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if _, err := s.GetCategory(ctx, product.CategoryID, product.OrganizationID); err != nil {
		return nil, err
	}

	product.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (organization_id, category_id, name, description, base_price, max_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING id, created_at, updated_at
	`, product.OrganizationID, product.CategoryID, product.Name, product.Description,
		product.BasePrice, nullDecimal(product.MaxPrice), product.Active).Scan(
		&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, organizationID int64, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, category_id, name, description, base_price, max_price, active, created_at, updated_at
		FROM products
		WHERE organization_id = $1
			AND ($2 OR active = true)
		ORDER BY name
	`, organizationID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64, organizationID int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, category_id, name, description, base_price, max_price, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		return nil, err
	}
	if err := store.RequireOrganization(p.OrganizationID, organizationID, "Product"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	existing, err := s.GetProduct(ctx, product.ID, product.OrganizationID)
	if err != nil {
		return nil, err
	}
	if product.CategoryID != existing.CategoryID {
		if _, err := s.GetCategory(ctx, product.CategoryID, product.OrganizationID); err != nil {
			return nil, err
		}
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE products
		SET category_id = $2, name = $3, description = $4, base_price = $5, max_price = $6, updated_at = now()
		WHERE id = $1
		RETURNING active, created_at, updated_at
	`, product.ID, product.CategoryID, product.Name, product.Description,
		product.BasePrice, nullDecimal(product.MaxPrice)).Scan(
		&product.Active, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64, organizationID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish missing from cross-tenant for the caller.
		_, err := s.GetProduct(ctx, id, organizationID)
		if err != nil {
			return err
		}
	}
	return nil
}

// --- bar stations ---

func (s *Store) CreateBarStation(ctx context.Context, station domain.BarStation) (*domain.BarStation, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bar_stations (organization_id, name, description, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, station.OrganizationID, station.Name, station.Description).Scan(&station.ID, &station.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperr.NotFound("organization %d not found", station.OrganizationID)
		}
		return nil, err
	}
	return &station, nil
}

func (s *Store) ListBarStations(ctx context.Context, organizationID int64) ([]domain.BarStation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description,''), created_at
		FROM bar_stations
		WHERE organization_id = $1
		ORDER BY name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]domain.BarStation, 0, 8)
	for rows.Next() {
		var b domain.BarStation
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}

func (s *Store) GetBarStation(ctx context.Context, id int64, organizationID int64) (*domain.BarStation, error) {
	var b domain.BarStation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description,''), created_at
		FROM bar_stations
		WHERE id = $1
	`, id).Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Description, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("bar station %d not found", id)
		}
		return nil, err
	}
	if err := store.RequireOrganization(b.OrganizationID, organizationID, "Bar station"); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) UpdateBarStation(ctx context.Context, station domain.BarStation) (*domain.BarStation, error) {
	existing, err := s.GetBarStation(ctx, station.ID, station.OrganizationID)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE bar_stations
		SET name = $2, description = $3
		WHERE id = $1
		RETURNING created_at
	`, station.ID, station.Name, station.Description).Scan(&station.CreatedAt)
	if err != nil {
		return nil, err
	}
	station.OrganizationID = existing.OrganizationID
	return &station, nil
}

func (s *Store) DeleteBarStation(ctx context.Context, id int64, organizationID int64) error {
	if _, err := s.GetBarStation(ctx, id, organizationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM bar_stations WHERE id = $1`, id)
	return err
}

// --- inventory reads ---

func (s *Store) GetInventoryByOrganization(ctx context.Context, organizationID int64, categoryID *int64) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.category_id, COALESCE(c.name,''), i.quantity, p.base_price, i.adjusted_price, i.updated_at
		FROM inventories i
		JOIN products p ON p.id = i.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE i.organization_id = $1
			AND ($2::bigint IS NULL OR p.category_id = $2)
		ORDER BY COALESCE(c.name,''), p.name
	`, organizationID, nullInt64(categoryID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		var item domain.InventoryItem
		var basePrice decimal.Decimal
		var adjusted decimal.NullDecimal
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.CategoryID, &item.CategoryName,
			&item.Quantity, &basePrice, &adjusted, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.BasePrice = basePrice
		item.CurrentPrice = basePrice
		if adjusted.Valid {
			v := adjusted.Decimal
			item.AdjustedPrice = &v
			item.CurrentPrice = v
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetProductInventory(ctx context.Context, productID int64, organizationID int64) (*domain.InventoryItem, error) {
	product, err := s.GetProduct(ctx, productID, organizationID)
	if err != nil {
		return nil, err
	}

	var item domain.InventoryItem
	var adjusted decimal.NullDecimal
	err = s.db.QueryRowContext(ctx, `
		SELECT i.quantity, i.adjusted_price, i.updated_at, COALESCE(c.name,'')
		FROM inventories i
		LEFT JOIN categories c ON c.id = $3
		WHERE i.product_id = $1 AND i.organization_id = $2
	`, productID, organizationID, product.CategoryID).Scan(&item.Quantity, &adjusted, &item.UpdatedAt, &item.CategoryName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no inventory found for product %s", product.Name)
		}
		return nil, err
	}
	item.ProductID = product.ID
	item.ProductName = product.Name
	item.CategoryID = product.CategoryID
	item.BasePrice = product.BasePrice
	item.CurrentPrice = product.BasePrice
	if adjusted.Valid {
		v := adjusted.Decimal
		item.AdjustedPrice = &v
		item.CurrentPrice = v
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (s *Store) ListTransactionHistory(ctx context.Context, productID int64, organizationID int64) ([]domain.InventoryTransaction, error) {
	product, err := s.GetProduct(ctx, productID, organizationID)
	if err != nil {
		return nil, err
	}

	var invID int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM inventories WHERE product_id = $1 AND organization_id = $2
	`, productID, organizationID).Scan(&invID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no inventory found for product %s", product.Name)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inventory_id, transaction_type, quantity_change, quantity_before, quantity_after,
			price_before, price_after, reference_id, COALESCE(notes,''), created_by, bar_station_id, created_at
		FROM inventory_transactions
		WHERE inventory_id = $1
		ORDER BY id ASC
	`, invID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.InventoryTransaction, 0, 64)
	for rows.Next() {
		var tx domain.InventoryTransaction
		var stationID sql.NullInt64
		if err := rows.Scan(&tx.ID, &tx.InventoryID, &tx.TransactionType, &tx.QuantityChange,
			&tx.QuantityBefore, &tx.QuantityAfter, &tx.PriceBefore, &tx.PriceAfter,
			&tx.ReferenceID, &tx.Notes, &tx.CreatedBy, &stationID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if stationID.Valid {
			v := stationID.Int64
			tx.BarStationID = &v
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		history = append(history, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// --- sale settlement ---

// SettleSale runs the whole sale inside one serializable transaction with
// the inventory rows locked FOR UPDATE. Serialization failures are retried
// a bounded number of times before surfacing as a conflict.
func (s *Store) SettleSale(ctx context.Context, sale domain.SaleSettlement) (*domain.SaleReceipt, error) {
	for attempt := 0; attempt < settleAttempts; attempt++ {
		receipt, err := s.settleSaleOnce(ctx, sale)
		if err == nil {
			return receipt, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
	}
	return nil, apperr.Conflict("sale conflicted with concurrent updates, please retry")
}

func (s *Store) settleSaleOnce(ctx context.Context, sale domain.SaleSettlement) (*domain.SaleReceipt, error) {
	org, err := s.GetOrganization(ctx, sale.OrganizationID)
	if err != nil {
		return nil, err
	}
	if sale.BarStationID != nil {
		if _, err := s.GetBarStation(ctx, *sale.BarStationID, sale.OrganizationID); err != nil {
			return nil, err
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	receipt := &domain.SaleReceipt{
		SaleReferenceID: sale.ReferenceID,
		Items:           make([]domain.SaleReceiptItem, len(sale.Items)),
		TotalAmount:     decimal.Zero,
		Notes:           sale.Notes,
		SettledAt:       now,
	}

	// Lock inventory rows in product-id order so two concurrent sales never
	// acquire the same pair of row locks in opposite order. The receipt still
	// lists items as requested.
	for _, idx := range settleOrder(sale.Items) {
		item := sale.Items[idx]
		var product domain.Product
		var maxPrice decimal.NullDecimal
		var catID sql.NullInt64
		var catName sql.NullString
		var dynamic sql.NullBool
		err := pgTx.QueryRowContext(ctx, `
			SELECT p.id, p.organization_id, p.category_id, p.name, p.base_price, p.max_price, p.active,
				c.id, c.name, c.dynamic_pricing
			FROM products p
			LEFT JOIN categories c ON c.id = p.category_id
			WHERE p.id = $1
		`, item.ProductID).Scan(&product.ID, &product.OrganizationID, &product.CategoryID, &product.Name,
			&product.BasePrice, &maxPrice, &product.Active, &catID, &catName, &dynamic)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperr.NotFound("product %d not found", item.ProductID)
			}
			return nil, err
		}
		if maxPrice.Valid {
			v := maxPrice.Decimal
			product.MaxPrice = &v
		}
		if err := store.CheckSellable(product, sale.OrganizationID); err != nil {
			return nil, err
		}

		var category *domain.Category
		if catID.Valid {
			category = &domain.Category{
				ID:             catID.Int64,
				OrganizationID: product.OrganizationID,
				Name:           catName.String,
				DynamicPricing: dynamic.Bool,
			}
		}

		var inv domain.Inventory
		var adjusted decimal.NullDecimal
		err = pgTx.QueryRowContext(ctx, `
			SELECT id, organization_id, product_id, quantity, adjusted_price, updated_at
			FROM inventories
			WHERE product_id = $1
			FOR UPDATE
		`, product.ID).Scan(&inv.ID, &inv.OrganizationID, &inv.ProductID, &inv.Quantity, &adjusted, &inv.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperr.NotFound("no inventory found for product %s", product.Name)
			}
			return nil, err
		}
		if adjusted.Valid {
			v := adjusted.Decimal
			inv.AdjustedPrice = &v
		}

		settled, err := store.SettleSaleItem(product, category, *org, inv, item.Quantity)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE inventories
			SET quantity = $2, adjusted_price = $3, updated_at = now()
			WHERE id = $1
		`, inv.ID, settled.NewQuantity, settled.PriceAfter)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_transactions (
				inventory_id, transaction_type, quantity_change, quantity_before, quantity_after,
				price_before, price_after, reference_id, notes, created_by, bar_station_id, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, inv.ID, domain.TxTypeSale, item.Quantity.Neg(), inv.Quantity, settled.NewQuantity,
			settled.PriceBefore, settled.PriceAfter, sale.ReferenceID, "POS Sale",
			sale.UserID, nullInt64(sale.BarStationID), now)
		if err != nil {
			return nil, err
		}

		receipt.Items[idx] = domain.SaleReceiptItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   settled.PriceBefore,
			TotalPrice:  settled.TotalPrice,
		}
		receipt.TotalAmount = receipt.TotalAmount.Add(settled.TotalPrice)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, apperr.Wrap(err, "commit sale %s", sale.ReferenceID)
	}
	return receipt, nil
}

// settleOrder returns item indices sorted by product id, with request order
// preserved between duplicate lines for the same product so the later line
// sees the earlier line's decrement.
func settleOrder(items []domain.SaleItemRequest) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].ProductID < items[order[b]].ProductID
	})
	return order
}

// --- stock changes ---

func (s *Store) ApplyStockChange(ctx context.Context, change domain.StockChange) (*domain.InventoryItem, error) {
	product, err := s.GetProduct(ctx, change.ProductID, change.OrganizationID)
	if err != nil {
		return nil, err
	}
	if change.BarStationID != nil {
		if _, err := s.GetBarStation(ctx, *change.BarStationID, change.OrganizationID); err != nil {
			return nil, err
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var inv domain.Inventory
	var adjusted decimal.NullDecimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, organization_id, product_id, quantity, adjusted_price, updated_at
		FROM inventories
		WHERE product_id = $1
		FOR UPDATE
	`, product.ID).Scan(&inv.ID, &inv.OrganizationID, &inv.ProductID, &inv.Quantity, &adjusted, &inv.UpdatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if change.Type != domain.TxTypeAdd {
			return nil, apperr.NotFound("no inventory found for product %s", product.Name)
		}
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO inventories (organization_id, product_id, quantity, updated_at)
			VALUES ($1,$2,0,now())
			RETURNING id
		`, product.OrganizationID, product.ID).Scan(&inv.ID)
		if err != nil {
			return nil, err
		}
		inv.OrganizationID = product.OrganizationID
		inv.ProductID = product.ID
		inv.Quantity = decimal.Zero
	}
	if adjusted.Valid {
		v := adjusted.Decimal
		inv.AdjustedPrice = &v
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

	now := time.Now().UTC()
	price := inv.CurrentPrice(*product)

	_, err = pgTx.ExecContext(ctx, `
		UPDATE inventories
		SET quantity = $2, updated_at = now()
		WHERE id = $1
	`, inv.ID, newQuantity)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			inventory_id, transaction_type, quantity_change, quantity_before, quantity_after,
			price_before, price_after, reference_id, notes, created_by, bar_station_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, inv.ID, change.Type, delta, quantityBefore, newQuantity,
		price, price, change.ReferenceID, change.Notes,
		change.UserID, nullInt64(change.BarStationID), now)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, apperr.Wrap(err, "commit stock change %s", change.ReferenceID)
	}

	item := domain.InventoryItem{
		ProductID:     product.ID,
		ProductName:   product.Name,
		CategoryID:    product.CategoryID,
		Quantity:      newQuantity,
		BasePrice:     product.BasePrice,
		AdjustedPrice: inv.AdjustedPrice,
		CurrentPrice:  price,
		UpdatedAt:     now,
	}
	return &item, nil
}

// --- users ---

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, name, password_hash, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, name, password_hash, role, active, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, name, password_hash, role, active, created_at)
		VALUES ($1,$2,lower($3),$4,$5,$6,$7,$8)
	`, user.ID, user.OrganizationID, user.Email, user.Name, user.PasswordHash, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("user %s already exists", user.Email)
		}
		return err
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var maxPrice decimal.NullDecimal
	err := row.Scan(&p.ID, &p.OrganizationID, &p.CategoryID, &p.Name, &p.Description,
		&p.BasePrice, &maxPrice, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if maxPrice.Valid {
		v := maxPrice.Decimal
		p.MaxPrice = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
