package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customersByID   map[string]domain.Customer
	suppliersByID   map[string]domain.Supplier
	salesByID       map[string]*domain.Sale
	purchasesByID   map[string]domain.Purchase
	inventoryLogs   []domain.InventoryLog
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	invoiceCounter  int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_STAFF_PASSWORD environment variables. If unset, hardcoded dev defaults
// are used with a warning printed to stdout. These credentials are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, CostPriceCents: 2700, Quantity: 120, MinimumStock: 20, Active: true, CreatedAt: now},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500, CostPriceCents: 23000, Quantity: 120, MinimumStock: 15, Active: true, CreatedAt: now},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, CostPriceCents: 13600, Quantity: 120, MinimumStock: 15, Active: true, CreatedAt: now},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800, CostPriceCents: 12400, Quantity: 120, MinimumStock: 10, Active: true, CreatedAt: now},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, CostPriceCents: 1700, Quantity: 120, MinimumStock: 30, Active: true, CreatedAt: now},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400, CostPriceCents: 15300, Quantity: 120, MinimumStock: 15, Active: true, CreatedAt: now},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", PriceCents: 9800, CostPriceCents: 7200, Quantity: 120, MinimumStock: 15, Active: true, CreatedAt: now},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900, CostPriceCents: 3200, Quantity: 120, MinimumStock: 40, Active: true, CreatedAt: now},
		{SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", PriceCents: 12800, CostPriceCents: 8000, Quantity: 120, MinimumStock: 10, Active: true, CreatedAt: now},
		{SKU: "SKU-COKLAT-01", Name: "Coklat Batang", Category: "snack", PriceCents: 8600, CostPriceCents: 5600, Quantity: 120, MinimumStock: 10, Active: true, CreatedAt: now},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", PriceCents: 7400, CostPriceCents: 5000, Quantity: 120, MinimumStock: 12, Active: true, CreatedAt: now},
		{SKU: "SKU-SHAMPOO-01", Name: "Shampoo Sachet", Category: "household", PriceCents: 3200, CostPriceCents: 2100, Quantity: 120, MinimumStock: 25, Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.SKU] = p
	}

	return &Store{
		products:        productMap,
		customersByID:   make(map[string]domain.Customer),
		suppliersByID:   make(map[string]domain.Supplier),
		salesByID:       make(map[string]*domain.Sale),
		purchasesByID:   make(map[string]domain.Purchase),
		inventoryLogs:   make([]domain.InventoryLog, 0, 256),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if !p.Active || p.Quantity > p.MinimumStock {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Quantity == b.Quantity {
			return cmpString(a.SKU, b.SKU)
		}
		if a.Quantity < b.Quantity {
			return -1
		}
		return 1
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.Quantity < 0 || product.MinimumStock < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
	}

	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.SKU] = product

	if product.Quantity > 0 {
		s.inventoryLogs = append(s.inventoryLogs, domain.InventoryLog{
			ID:        xid.New("ilog"),
			SKU:       product.SKU,
			DeltaQty:  product.Quantity,
			Type:      domain.InventoryLogAdjustment,
			Notes:     "initial stock",
			CreatedAt: product.CreatedAt,
		})
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	current, exists := s.products[product.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Quantity moves only through sales, purchases and adjustments.
	product.Quantity = current.Quantity
	product.CreatedAt = current.CreatedAt
	s.products[product.SKU] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customersByID[customer.ID] = customer
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	current, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = current.CreatedAt
	s.customersByID[customer.ID] = customer
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

// CreateSale performs the whole sale transaction under the store mutex:
// stock validation, invoice numbering, totals, stock decrement and ledger
// entries either all succeed or none are applied.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}

	customerName := "walk-in"
	if sale.CustomerID != "" {
		customer, exists := s.customersByID[sale.CustomerID]
		if !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		customerName = customer.Name
		copyCustomer := customer
		sale.Customer = &copyCustomer
	}

	subtotal := int64(0)
	remaining := make(map[string]int, len(sale.Items))
	resolvedItems := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, fmt.Errorf("%w: qty for %s must be at least 1", store.ErrValidation, item.SKU)
		}
		product, exists := s.products[item.SKU]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s not found", store.ErrValidation, item.SKU)
		}
		if _, seen := remaining[item.SKU]; !seen {
			remaining[item.SKU] = product.Quantity
		}
		if remaining[item.SKU] < item.Qty {
			return nil, fmt.Errorf("%w for %s: have %d, need %d", store.ErrInsufficientStock, item.SKU, product.Quantity, item.Qty)
		}
		remaining[item.SKU] -= item.Qty
		unitPrice := item.UnitPriceCents
		if unitPrice == 0 {
			unitPrice = product.PriceCents
		}
		if unitPrice < 0 {
			return nil, fmt.Errorf("%w: unit price for %s", store.ErrValidation, item.SKU)
		}
		lineTotal := int64(item.Qty) * unitPrice
		resolvedItems = append(resolvedItems, domain.SaleItem{
			SKU:            item.SKU,
			ProductName:    product.Name,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
	}

	if sale.DiscountPercent < 0 || sale.DiscountPercent > 100 {
		return nil, fmt.Errorf("%w: discount percent out of range", store.ErrValidation)
	}
	if sale.TaxPercent < 0 || sale.TaxPercent > 100 {
		return nil, fmt.Errorf("%w: tax percent out of range", store.ErrValidation)
	}

	discountCents := int64(math.Round(float64(subtotal) * sale.DiscountPercent / 100))
	taxBase := subtotal - discountCents
	taxCents := int64(math.Round(float64(taxBase) * sale.TaxPercent / 100))

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Date.IsZero() {
		sale.Date = sale.CreatedAt
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	s.invoiceCounter++
	sale.InvoiceNumber = fmt.Sprintf("INV-%05d", s.invoiceCounter)
	sale.Items = resolvedItems
	sale.SubtotalCents = subtotal
	sale.DiscountCents = discountCents
	sale.TaxCents = taxCents
	sale.TotalCents = taxBase + taxCents

	for _, item := range sale.Items {
		product := s.products[item.SKU]
		product.Quantity -= item.Qty
		s.products[item.SKU] = product
		s.inventoryLogs = append(s.inventoryLogs, domain.InventoryLog{
			ID:        xid.New("ilog"),
			SKU:       item.SKU,
			DeltaQty:  -item.Qty,
			Type:      domain.InventoryLogSale,
			Reference: sale.InvoiceNumber,
			Notes:     fmt.Sprintf("sale to %s", customerName),
			CreatedAt: sale.CreatedAt,
		})
	}

	saleCopy := cloneSale(&sale)
	s.salesByID[sale.ID] = saleCopy

	return cloneSale(saleCopy), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, date string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if date != "" && sale.Date.UTC().Format("2006-01-02") != date {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CancelSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, fmt.Errorf("%w: sale already cancelled", store.ErrConflict)
	}

	for _, item := range sale.Items {
		product := s.products[item.SKU]
		product.Quantity += item.Qty
		s.products[item.SKU] = product
		s.inventoryLogs = append(s.inventoryLogs, domain.InventoryLog{
			ID:        xid.New("ilog"),
			SKU:       item.SKU,
			DeltaQty:  item.Qty,
			Type:      domain.InventoryLogReturn,
			Reference: sale.InvoiceNumber,
			Notes:     "restock from cancelled sale",
			CreatedAt: at,
		})
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelReason = reason
	sale.CancelledAt = &at

	return cloneSale(sale), nil
}

func (s *Store) AdjustStock(_ context.Context, entry domain.InventoryLog) (*domain.Product, *domain.InventoryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.SKU == "" || entry.DeltaQty == 0 {
		return nil, nil, store.ErrValidation
	}
	product, exists := s.products[entry.SKU]
	if !exists {
		return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, entry.SKU)
	}
	next := product.Quantity + entry.DeltaQty
	if next < 0 {
		return nil, nil, fmt.Errorf("%w for %s: have %d, need %d", store.ErrInsufficientStock, entry.SKU, product.Quantity, -entry.DeltaQty)
	}

	if entry.ID == "" {
		entry.ID = xid.New("ilog")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	product.Quantity = next
	s.products[entry.SKU] = product
	s.inventoryLogs = append(s.inventoryLogs, entry)

	copyProduct := product
	copyEntry := entry
	return &copyProduct, &copyEntry, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.suppliersByID[purchase.SupplierID]; !exists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
	}
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.CostCents < 1 {
			return nil, fmt.Errorf("%w: purchase item %s", store.ErrValidation, item.SKU)
		}
		if _, exists := s.products[item.SKU]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.SKU)
		}
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	if purchase.Reference == "" {
		purchase.Reference = "GR-" + purchase.ID
	}

	total := int64(0)
	for _, item := range purchase.Items {
		product := s.products[item.SKU]
		product.Quantity += item.Qty
		product.CostPriceCents = item.CostCents
		s.products[item.SKU] = product
		total += int64(item.Qty) * item.CostCents
		s.inventoryLogs = append(s.inventoryLogs, domain.InventoryLog{
			ID:        xid.New("ilog"),
			SKU:       item.SKU,
			DeltaQty:  item.Qty,
			Type:      domain.InventoryLogPurchase,
			Reference: purchase.Reference,
			Notes:     fmt.Sprintf("goods receipt from supplier %s", purchase.SupplierID),
			CreatedAt: purchase.CreatedAt,
		})
	}
	purchase.TotalCents = total

	s.purchasesByID[purchase.ID] = clonePurchase(purchase)
	saved := clonePurchase(s.purchasesByID[purchase.ID])
	return &saved, nil
}

func (s *Store) ListInventoryLogs(_ context.Context, sku string, limit int) ([]domain.InventoryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryLog, 0, 64)
	for _, entry := range s.inventoryLogs {
		if sku != "" && entry.SKU != sku {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.InventoryLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		Date:      from.UTC().Format("2006-01-02"),
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}
	byPayment := map[string]*domain.SalesSummaryPayment{}

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if sale.Status == domain.SaleStatusCancelled {
			continue
		}

		summary.Transactions++
		summary.GrossSalesCents += sale.SubtotalCents
		summary.DiscountCents += sale.DiscountCents
		summary.TaxCents += sale.TaxCents
		summary.NetSalesCents += sale.TotalCents

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.SalesSummaryPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Transactions++
		payment.TotalCents += sale.TotalCents
	}

	for _, entry := range byPayment {
		summary.ByPayment = append(summary.ByPayment, *entry)
	}
	slices.SortFunc(summary.ByPayment, func(a, b domain.SalesSummaryPayment) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	return summary, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrConflict, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.Customer != nil {
		customer := *src.Customer
		dup.Customer = &customer
	}
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dup := src
	items := make([]domain.PurchaseItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
