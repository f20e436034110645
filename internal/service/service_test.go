package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"warungku/backend/internal/cache"
	"warungku/backend/internal/domain"
	"warungku/backend/internal/reporting"
	"warungku/backend/internal/store"
	"warungku/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	reports := reporting.NewEngine(repo, cache.NoopReportCache{}, 5*time.Second)
	return New(repo, reports), repo
}

func staffContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "staff",
		Role:     domain.RoleStaff,
	})
}

// seedProduct adds a product with a controlled price so totals are predictable.
func seedProduct(t *testing.T, svc *Service, sku string, priceCents int64, stock int) {
	t.Helper()
	_, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		SKU:            sku,
		Name:           "Test " + sku,
		Category:       "test",
		PriceCents:     priceCents,
		CostPriceCents: priceCents / 2,
		InitialStock:   stock,
		MinimumStock:   2,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", sku, err)
	}
}

func TestCreateSaleComputesTotals(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()
	seedProduct(t, svc, "SKU-A", 2000, 50)
	seedProduct(t, svc, "SKU-B", 2000, 50)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		DiscountPercent: 10,
		TaxPercent:      5,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-A", Qty: 2},
			{SKU: "SKU-B", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if sale.SubtotalCents != 6000 {
		t.Fatalf("expected subtotal 6000, got %d", sale.SubtotalCents)
	}
	if sale.DiscountCents != 600 {
		t.Fatalf("expected discount 600, got %d", sale.DiscountCents)
	}
	if sale.TaxCents != 270 {
		t.Fatalf("expected tax 270, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 5670 {
		t.Fatalf("expected total 5670, got %d", sale.TotalCents)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected default status COMPLETED, got %s", sale.Status)
	}
	if sale.PaymentMethod != "cash" {
		t.Fatalf("expected default payment method cash, got %s", sale.PaymentMethod)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(sale.Items))
	}
	if sale.Items[0].LineTotalCents != 4000 {
		t.Fatalf("expected line total 4000, got %d", sale.Items[0].LineTotalCents)
	}
}

func TestCreateSaleAssignsSequentialInvoiceNumbers(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	first, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-KOPI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second sale failed: %v", err)
	}

	if first.InvoiceNumber != "INV-00001" {
		t.Fatalf("expected INV-00001, got %s", first.InvoiceNumber)
	}
	if second.InvoiceNumber != "INV-00002" {
		t.Fatalf("expected INV-00002, got %s", second.InvoiceNumber)
	}
}

func TestCreateSaleRejectsEmptyItems(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateSaleRejectsUnknownProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-GHOST-99", Qty: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "SKU-GHOST-99") {
		t.Fatalf("expected error to name the offending sku, got %q", err.Error())
	}
}

func TestCreateSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffContext()
	seedProduct(t, svc, "SKU-SCARCE", 1000, 3)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-MIE-01", Qty: 1},
			{SKU: "SKU-SCARCE", Qty: 5},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "SKU-SCARCE") {
		t.Fatalf("expected error to name the sku, got %q", err.Error())
	}

	// The whole transaction must roll back: stock of the first item untouched,
	// no sale stored, no sale ledger entries.
	product, err := repo.GetProductBySKU(ctx, "SKU-MIE-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 120 {
		t.Fatalf("expected untouched stock 120, got %d", product.Quantity)
	}
	sales, err := svc.ListSales(ctx, "", 0)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales stored, got %d", len(sales))
	}
	logs, err := svc.ListInventoryLogs(ctx, "SKU-MIE-01", 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(logs))
	}
}

func TestCreateSaleRejectsRepeatedSKUExceedingStock(t *testing.T) {
	svc, _ := newTestService()
	seedProduct(t, svc, "SKU-TIGHT", 1000, 3)

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-TIGHT", Qty: 2},
			{SKU: "SKU-TIGHT", Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for repeated sku lines, got %v", err)
	}
}

func TestCreateSaleDecrementsStockAndWritesLedger(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffContext()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	product, err := repo.GetProductBySKU(ctx, "SKU-MIE-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 117 {
		t.Fatalf("expected stock 117, got %d", product.Quantity)
	}

	logs, err := svc.ListInventoryLogs(ctx, "SKU-MIE-01", 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.Type != domain.InventoryLogSale {
		t.Fatalf("expected SALE entry, got %s", entry.Type)
	}
	if entry.DeltaQty != -3 {
		t.Fatalf("expected delta -3, got %d", entry.DeltaQty)
	}
	if entry.Reference != sale.InvoiceNumber {
		t.Fatalf("expected reference %s, got %s", sale.InvoiceNumber, entry.Reference)
	}
	if entry.Notes != "sale to walk-in" {
		t.Fatalf("expected walk-in ledger note, got %q", entry.Notes)
	}
}

func TestCreateSaleWithInlineCustomer(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		NewCustomer: &domain.CustomerCreateRequest{
			Name:  "Bu Siti",
			Phone: "0812000111",
		},
		Items: []domain.SaleItemRequest{{SKU: "SKU-TELUR-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.CustomerID == "" {
		t.Fatalf("expected inline customer to be created and linked")
	}
	if sale.Customer == nil || sale.Customer.Name != "Bu Siti" {
		t.Fatalf("expected customer snapshot on sale, got %+v", sale.Customer)
	}

	logs, err := svc.ListInventoryLogs(ctx, "SKU-TELUR-01", 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Notes != "sale to Bu Siti" {
		t.Fatalf("expected ledger note naming the customer, got %+v", logs)
	}

	customers, err := svc.ListCustomers(ctx, 0)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected one stored customer, got %d", len(customers))
	}
}

func TestCreateSaleRejectsUnknownCustomerID(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		CustomerID: "cust-missing",
		Items:      []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown customer, got %v", err)
	}
}

func TestCreateSaleValidatesRequestShape(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	cases := []struct {
		name string
		req  domain.SaleCreateRequest
	}{
		{"bad payment method", domain.SaleCreateRequest{
			PaymentMethod: "crypto",
			Items:         []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
		}},
		{"bad status", domain.SaleCreateRequest{
			Status: "ARCHIVED",
			Items:  []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
		}},
		{"bad date", domain.SaleCreateRequest{
			Date:  "31-12-2025",
			Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
		}},
		{"discount out of range", domain.SaleCreateRequest{
			DiscountPercent: 130,
			Items:           []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
		}},
		{"zero qty", domain.SaleCreateRequest{
			Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 0}},
		}},
	}

	for _, tc := range cases {
		if _, err := svc.CreateSale(ctx, tc.req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCancelSaleRestocksAndWritesReturnEntries(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffContext()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-ROTI-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	resp, err := svc.CancelSale(ctx, sale.ID, "customer changed mind")
	if err != nil {
		t.Fatalf("cancel sale failed: %v", err)
	}
	if resp.Status != domain.SaleStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", resp.Status)
	}

	product, err := repo.GetProductBySKU(ctx, "SKU-ROTI-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 120 {
		t.Fatalf("expected stock restored to 120, got %d", product.Quantity)
	}

	logs, err := svc.ListInventoryLogs(ctx, "SKU-ROTI-01", 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected sale + return entries, got %d", len(logs))
	}
	var foundReturn bool
	for _, entry := range logs {
		if entry.Type == domain.InventoryLogReturn && entry.DeltaQty == 4 {
			foundReturn = true
		}
	}
	if !foundReturn {
		t.Fatalf("expected a RETURN entry with delta 4, got %+v", logs)
	}

	// Cancelling twice must conflict, and stock must not restock again.
	if _, err := svc.CancelSale(ctx, sale.ID, "again"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
	product, _ = repo.GetProductBySKU(ctx, "SKU-ROTI-01")
	if product.Quantity != 120 {
		t.Fatalf("expected stock unchanged after rejected cancel, got %d", product.Quantity)
	}
}

func TestAdjustStockAndWriteOff(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffContext()

	resp, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:      "SKU-GULA-01",
		DeltaQty: 10,
		Type:     "adjustment",
		Notes:    "recount",
	})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if resp.NewQuantity != 130 {
		t.Fatalf("expected 130 after adjustment, got %d", resp.NewQuantity)
	}

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:      "SKU-GULA-01",
		DeltaQty: 5,
		Type:     domain.InventoryLogWriteOff,
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for positive write-off, got %v", err)
	}

	writeOff, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:      "SKU-GULA-01",
		DeltaQty: -30,
		Type:     domain.InventoryLogWriteOff,
		Notes:    "expired batch",
	})
	if err != nil {
		t.Fatalf("write-off failed: %v", err)
	}
	if writeOff.NewQuantity != 100 {
		t.Fatalf("expected 100 after write-off, got %d", writeOff.NewQuantity)
	}

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		SKU:      "SKU-GULA-01",
		DeltaQty: -500,
		Type:     domain.InventoryLogAdjustment,
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for oversized negative delta, got %v", err)
	}

	product, _ := repo.GetProductBySKU(ctx, "SKU-GULA-01")
	if product.Quantity != 100 {
		t.Fatalf("expected stock to stay 100, got %d", product.Quantity)
	}
}

func TestReceiveGoodsIncreasesStockAndCost(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffContext()

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "PT Sumber Segar"})
	if err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}

	purchase, err := svc.ReceiveGoods(ctx, domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseItemRequest{
			{SKU: "SKU-KOPI-01", Qty: 40, CostCents: 1800},
		},
	})
	if err != nil {
		t.Fatalf("receive goods failed: %v", err)
	}
	if purchase.TotalCents != 72000 {
		t.Fatalf("expected purchase total 72000, got %d", purchase.TotalCents)
	}

	product, _ := repo.GetProductBySKU(ctx, "SKU-KOPI-01")
	if product.Quantity != 160 {
		t.Fatalf("expected stock 160 after receipt, got %d", product.Quantity)
	}
	if product.CostPriceCents != 1800 {
		t.Fatalf("expected cost price updated to 1800, got %d", product.CostPriceCents)
	}

	logs, err := svc.ListInventoryLogs(ctx, "SKU-KOPI-01", 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Type != domain.InventoryLogPurchase || logs[0].DeltaQty != 40 {
		t.Fatalf("expected one PURCHASE entry with delta 40, got %+v", logs)
	}

	if _, err := svc.ReceiveGoods(ctx, domain.PurchaseCreateRequest{
		SupplierID: "sup-missing",
		Items: []domain.PurchaseItemRequest{
			{SKU: "SKU-KOPI-01", Qty: 1, CostCents: 1800},
		},
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown supplier, got %v", err)
	}
}

func TestLowStockListing(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()
	seedProduct(t, svc, "SKU-LOW", 1000, 2)

	products, err := svc.ListLowStockProducts(ctx)
	if err != nil {
		t.Fatalf("list low stock failed: %v", err)
	}
	if len(products) != 1 || products[0].SKU != "SKU-LOW" {
		t.Fatalf("expected only SKU-LOW under threshold, got %+v", products)
	}
}

func TestSalesSummaryExcludesCancelledSales(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	kept, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "qris",
		Items:         []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	cancelled, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-KOPI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second sale failed: %v", err)
	}
	if _, err := svc.CancelSale(ctx, cancelled.ID, "void"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("sales summary failed: %v", err)
	}
	if summary.Transactions != 1 {
		t.Fatalf("expected 1 transaction after cancel, got %d", summary.Transactions)
	}
	if summary.NetSalesCents != kept.TotalCents {
		t.Fatalf("expected net %d, got %d", kept.TotalCents, summary.NetSalesCents)
	}
	if len(summary.ByPayment) != 1 || summary.ByPayment[0].PaymentMethod != "qris" {
		t.Fatalf("expected single qris payment bucket, got %+v", summary.ByPayment)
	}

	if _, err := svc.SalesSummary(ctx, "not-a-date"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestListSalesFiltersByDate(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	sales, err := svc.ListSales(ctx, today, 0)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale today, got %d", len(sales))
	}

	sales, err = svc.ListSales(ctx, "2001-01-01", 0)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales on old date, got %d", len(sales))
	}

	if _, err := svc.ListSales(ctx, "bad-date", 0); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}

func TestAuditTrailRecordsSaleActions(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleManager})

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-AIR-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.CreatedBy != "manager" {
		t.Fatalf("expected sale attributed to manager, got %s", sale.CreatedBy)
	}
	if _, err := svc.CancelSale(ctx, sale.ID, "test void"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "", 0)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	var sawCreate, sawCancel bool
	for _, entry := range logs {
		if entry.Action == "sale_create" && entry.EntityID == sale.ID {
			sawCreate = true
			if entry.ActorUsername != "manager" {
				t.Fatalf("expected actor manager, got %s", entry.ActorUsername)
			}
		}
		if entry.Action == "sale_cancel" && entry.EntityID == sale.ID {
			sawCancel = true
		}
	}
	if !sawCreate || !sawCancel {
		t.Fatalf("expected sale_create and sale_cancel audit entries, got %+v", logs)
	}
}

func TestUpdateProductPartialPatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffContext()

	newPrice := int64(4200)
	inactive := false
	updated, err := svc.UpdateProduct(ctx, "sku-mie-01", domain.ProductUpdateRequest{
		PriceCents: &newPrice,
		Active:     &inactive,
	})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.PriceCents != 4200 {
		t.Fatalf("expected price 4200, got %d", updated.PriceCents)
	}
	if updated.Active {
		t.Fatalf("expected product deactivated")
	}
	if updated.Name != "Mie Goreng Instan" {
		t.Fatalf("expected untouched name, got %s", updated.Name)
	}

	// Inactive products cannot be sold.
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error selling inactive product, got %v", err)
	}
}
