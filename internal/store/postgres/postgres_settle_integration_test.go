package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"barvault/backend/internal/domain"
)

func TestSettleSaleDecrementsStockAndStepsPrice(t *testing.T) {
	databaseURL := os.Getenv("BARVAULT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BARVAULT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	orgName := fmt.Sprintf("it-org-%d", stamp)

	org, err := s.CreateOrganization(ctx, domain.Organization{
		Name:              orgName,
		PriceIncreaseStep: decimal.RequireFromString("2.00"),
	})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `
			DELETE FROM inventory_transactions
			WHERE inventory_id IN (SELECT id FROM inventories WHERE organization_id = $1)
		`, org.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventories WHERE organization_id = $1`, org.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE organization_id = $1`, org.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE organization_id = $1`, org.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, org.ID)
	})

	category, err := s.CreateCategory(ctx, domain.Category{
		OrganizationID: org.ID,
		Name:           fmt.Sprintf("it-draft-%d", stamp),
		DynamicPricing: true,
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	maxPrice := decimal.RequireFromString("15.00")
	product, err := s.CreateProduct(ctx, domain.Product{
		OrganizationID: org.ID,
		CategoryID:     category.ID,
		Name:           fmt.Sprintf("it-lager-%d", stamp),
		BasePrice:      decimal.RequireFromString("10.00"),
		MaxPrice:       &maxPrice,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	userID := uuid.New()
	if _, err := s.ApplyStockChange(ctx, domain.StockChange{
		Type:           domain.TxTypeAdd,
		OrganizationID: org.ID,
		UserID:         userID,
		ProductID:      product.ID,
		Quantity:       decimal.RequireFromString("10"),
		Notes:          "Stock added",
		ReferenceID:    fmt.Sprintf("ADD-it-%d", stamp),
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	receipt, err := s.SettleSale(ctx, domain.SaleSettlement{
		ReferenceID:    fmt.Sprintf("SALE-it-%d", stamp),
		OrganizationID: org.ID,
		UserID:         userID,
		Items: []domain.SaleItemRequest{
			{ProductID: product.ID, Quantity: decimal.RequireFromString("3")},
		},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}
	if !receipt.TotalAmount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("total amount = %s, want 30.00", receipt.TotalAmount)
	}

	item, err := s.GetProductInventory(ctx, product.ID, org.ID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if !item.Quantity.Equal(decimal.RequireFromString("7")) {
		t.Fatalf("quantity = %s, want 7", item.Quantity)
	}
	if item.AdjustedPrice == nil || !item.AdjustedPrice.Equal(decimal.RequireFromString("12.00")) {
		t.Fatalf("adjusted price = %v, want 12.00", item.AdjustedPrice)
	}

	history, err := s.ListTransactionHistory(ctx, product.ID, org.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	last := history[len(history)-1]
	if last.TransactionType != domain.TxTypeSale {
		t.Fatalf("last transaction type = %s, want %s", last.TransactionType, domain.TxTypeSale)
	}
	if last.Notes != "POS Sale" {
		t.Fatalf("last transaction notes = %q, want %q", last.Notes, "POS Sale")
	}
}
