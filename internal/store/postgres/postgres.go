package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

// invoiceCounterID is the single row in invoice_counters that hands out
// sequential sale invoice numbers. Bumping it inside the sale transaction
// makes the sequence gap-free under concurrent checkouts.
const invoiceCounterID = "sales"

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
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_cents, cost_price_cents, quantity, minimum_stock, active, created_at
		FROM products
		WHERE ($1 = false OR active = true)
		ORDER BY category, name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
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

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_cents, cost_price_cents, quantity, minimum_stock, active, created_at
		FROM products
		WHERE active = true AND quantity <= minimum_stock
		ORDER BY quantity ASC, sku ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
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

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.Quantity < 0 || product.MinimumStock < 0 {
		return nil, store.ErrValidation
	}

	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, cost_price_cents, quantity, minimum_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.CostPriceCents, product.Quantity, product.MinimumStock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}

	if product.Quantity > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_logs (id, sku, delta_qty, type, reference, notes, created_at)
			VALUES ($1,$2,$3,$4,NULL,$5,$6)
		`, xid.New("ilog"), product.SKU, product.Quantity, domain.InventoryLogAdjustment, "initial stock", product.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, price_cents, cost_price_cents, quantity, minimum_stock, active, created_at
		FROM products
		WHERE sku = $1
	`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	// Quantity is deliberately not part of the update: it only moves through
	// sales, purchases and adjustments.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, cost_price_cents = $5, minimum_stock = $6, active = $7, updated_at = now()
		WHERE sku = $1
		RETURNING sku, name, category, price_cents, cost_price_cents, quantity, minimum_stock, active, created_at
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.CostPriceCents, product.MinimumStock, product.Active)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCustomerByID(ctx, customer.ID)
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, supplier.ID, supplier.Name, supplier.Phone, nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	var email, address sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &email, &address, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	supplier.Email = email.String
	supplier.Address = address.String
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM suppliers
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		var email, address sql.NullString
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &email, &address, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.Email = email.String
		supplier.Address = address.String
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// CreateSale runs the whole sale as one serializable transaction: product
// row locks, stock validation, invoice numbering from the counter row, the
// sale and its items, stock decrements and the SALE ledger entries. Any
// failure rolls the entire thing back.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}
	if sale.DiscountPercent < 0 || sale.DiscountPercent > 100 {
		return nil, fmt.Errorf("%w: discount percent out of range", store.ErrValidation)
	}
	if sale.TaxPercent < 0 || sale.TaxPercent > 100 {
		return nil, fmt.Errorf("%w: tax percent out of range", store.ErrValidation)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	customerName := "walk-in"
	if sale.CustomerID != "" {
		var customer domain.Customer
		var email, address sql.NullString
		err := pgTx.QueryRowContext(ctx, `
			SELECT id, name, phone, email, address, created_at
			FROM customers
			WHERE id = $1
		`, sale.CustomerID).Scan(&customer.ID, &customer.Name, &customer.Phone, &email, &address, &customer.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
			}
			return nil, err
		}
		customer.Email = email.String
		customer.Address = address.String
		customer.CreatedAt = customer.CreatedAt.UTC()
		customerName = customer.Name
		sale.Customer = &customer
	}

	skus := uniqueSKUs(sale.Items)
	if len(skus) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT sku, name, price_cents, quantity, active
		FROM products
		WHERE sku = ANY($1)
		FOR UPDATE
	`, skus)
	if err != nil {
		return nil, err
	}
	type productState struct {
		name     string
		price    int64
		quantity int
		active   bool
	}
	productMap := make(map[string]productState, len(skus))
	for productRows.Next() {
		var sku string
		var p productState
		if err := productRows.Scan(&sku, &p.name, &p.price, &p.quantity, &p.active); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[sku] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotalCents := int64(0)
	resolvedItems := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, fmt.Errorf("%w: qty for %s must be at least 1", store.ErrValidation, item.SKU)
		}
		product, exists := productMap[item.SKU]
		if !exists || !product.active {
			return nil, fmt.Errorf("%w: product %s not found", store.ErrValidation, item.SKU)
		}
		if product.quantity < item.Qty {
			return nil, fmt.Errorf("%w for %s: have %d, need %d", store.ErrInsufficientStock, item.SKU, product.quantity, item.Qty)
		}
		// Repeated SKUs draw down the same balance.
		product.quantity -= item.Qty
		productMap[item.SKU] = product
		unitPrice := item.UnitPriceCents
		if unitPrice == 0 {
			unitPrice = product.price
		}
		if unitPrice < 0 {
			return nil, fmt.Errorf("%w: unit price for %s", store.ErrValidation, item.SKU)
		}
		lineTotal := int64(item.Qty) * unitPrice
		resolvedItems = append(resolvedItems, domain.SaleItem{
			SKU:            item.SKU,
			ProductName:    product.name,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
		})
		subtotalCents += lineTotal
	}

	discountCents := int64(math.Round(float64(subtotalCents) * sale.DiscountPercent / 100))
	taxBase := subtotalCents - discountCents
	taxCents := int64(math.Round(float64(taxBase) * sale.TaxPercent / 100))

	var lastNumber int
	err = pgTx.QueryRowContext(ctx, `
		UPDATE invoice_counters
		SET last_number = last_number + 1, updated_at = now()
		WHERE id = $1
		RETURNING last_number
	`, invoiceCounterID).Scan(&lastNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = pgTx.QueryRowContext(ctx, `
				INSERT INTO invoice_counters (id, last_number, updated_at)
				VALUES ($1, 1, now())
				RETURNING last_number
			`, invoiceCounterID).Scan(&lastNumber)
		}
		if err != nil {
			return nil, err
		}
	}

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
	sale.InvoiceNumber = fmt.Sprintf("INV-%05d", lastNumber)
	sale.Items = resolvedItems
	sale.SubtotalCents = subtotalCents
	sale.DiscountCents = discountCents
	sale.TaxCents = taxCents
	sale.TotalCents = taxBase + taxCents

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, customer_id, date, subtotal_cents, discount_percent,
			discount_cents, tax_percent, tax_cents, total_cents, payment_method,
			status, cancel_reason, cancelled_at, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULL,NULL,$13,$14)
	`, sale.ID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerID), sale.Date, sale.SubtotalCents,
		sale.DiscountPercent, sale.DiscountCents, sale.TaxPercent, sale.TaxCents, sale.TotalCents,
		sale.PaymentMethod, sale.Status, sale.CreatedBy, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice number %s", store.ErrConflict, sale.InvoiceNumber)
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, sku, product_name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.SKU, item.ProductName, item.Qty, item.UnitPriceCents, item.LineTotalCents)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $1, updated_at = now()
			WHERE sku = $2
		`, item.Qty, item.SKU)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_logs (id, sku, delta_qty, type, reference, notes, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("ilog"), item.SKU, -item.Qty, domain.InventoryLogSale, sale.InvoiceNumber, fmt.Sprintf("sale to %s", customerName), sale.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, customer_id, date, subtotal_cents, discount_percent,
			discount_cents, tax_percent, tax_cents, total_cents, payment_method,
			status, cancel_reason, cancelled_at, created_by, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.fetchSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]

	if sale.CustomerID != "" {
		customer, err := s.GetCustomerByID(ctx, sale.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		sale.Customer = customer
	}

	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, date string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, invoice_number, customer_id, date, subtotal_cents, discount_percent,
			discount_cents, tax_percent, tax_cents, total_cents, payment_method,
			status, cancel_reason, cancelled_at, created_by, created_at
		FROM sales
	`
	args := []any{}
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		query += ` WHERE date >= $1 AND date < $2 ORDER BY created_at DESC, invoice_number DESC LIMIT $3`
		args = append(args, day, day.Add(24*time.Hour), limit)
	} else {
		query += ` ORDER BY created_at DESC, invoice_number DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	saleIDs := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.fetchSaleItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}

	return sales, nil
}

// CancelSale flips the sale to CANCELLED and restocks its items with RETURN
// ledger entries, all in one transaction. A second cancel fails.
func (s *Store) CancelSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status, invoiceNumber string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, invoice_number
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status, &invoiceNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.SaleStatusCancelled {
		return nil, fmt.Errorf("%w: sale already cancelled", store.ErrConflict)
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT sku, qty
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	type restockLine struct {
		sku string
		qty int
	}
	lines := make([]restockLine, 0, 8)
	for itemRows.Next() {
		var line restockLine
		if err := itemRows.Scan(&line.sku, &line.qty); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, cancel_reason = $3, cancelled_at = $4
		WHERE id = $1
	`, id, domain.SaleStatusCancelled, reason, at)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $1, updated_at = now()
			WHERE sku = $2
		`, line.qty, line.sku)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_logs (id, sku, delta_qty, type, reference, notes, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("ilog"), line.sku, line.qty, domain.InventoryLogReturn, invoiceNumber, "restock from cancelled sale", at)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, id)
}

func (s *Store) AdjustStock(ctx context.Context, entry domain.InventoryLog) (*domain.Product, *domain.InventoryLog, error) {
	if entry.SKU == "" || entry.DeltaQty == 0 {
		return nil, nil, store.ErrValidation
	}
	if entry.ID == "" {
		entry.ID = xid.New("ilog")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var quantity int
	err = pgTx.QueryRowContext(ctx, `
		SELECT quantity
		FROM products
		WHERE sku = $1
		FOR UPDATE
	`, entry.SKU).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, entry.SKU)
		}
		return nil, nil, err
	}
	if quantity+entry.DeltaQty < 0 {
		return nil, nil, fmt.Errorf("%w for %s: have %d, need %d", store.ErrInsufficientStock, entry.SKU, quantity, -entry.DeltaQty)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $1, updated_at = now()
		WHERE sku = $2
	`, entry.DeltaQty, entry.SKU)
	if err != nil {
		return nil, nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO inventory_logs (id, sku, delta_qty, type, reference, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.SKU, entry.DeltaQty, entry.Type, nullIfEmpty(entry.Reference), entry.Notes, entry.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	product, err := s.GetProductBySKU(ctx, entry.SKU)
	if err != nil {
		return nil, nil, err
	}
	copyEntry := entry
	return product, &copyEntry, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrValidation
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var supplierID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id FROM suppliers WHERE id = $1
	`, purchase.SupplierID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
		}
		return nil, err
	}

	total := int64(0)
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.CostCents < 1 {
			return nil, fmt.Errorf("%w: purchase item %s", store.ErrValidation, item.SKU)
		}
		total += int64(item.Qty) * item.CostCents
	}
	purchase.TotalCents = total

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, reference, total_cents, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, purchase.ID, purchase.SupplierID, purchase.Reference, purchase.TotalCents, purchase.ReceivedBy, purchase.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range purchase.Items {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $1, cost_price_cents = $2, updated_at = now()
			WHERE sku = $3
		`, item.Qty, item.CostCents, item.SKU)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.SKU)
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, sku, qty, cost_cents)
			VALUES ($1,$2,$3,$4)
		`, purchase.ID, item.SKU, item.Qty, item.CostCents)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_logs (id, sku, delta_qty, type, reference, notes, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("ilog"), item.SKU, item.Qty, domain.InventoryLogPurchase, purchase.Reference, fmt.Sprintf("goods receipt from supplier %s", purchase.SupplierID), purchase.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &purchase, nil
}

func (s *Store) ListInventoryLogs(ctx context.Context, sku string, limit int) ([]domain.InventoryLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, delta_qty, type, reference, notes, created_at
		FROM inventory_logs
		WHERE ($1 = '' OR sku = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.InventoryLog, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLog
		var reference sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SKU, &entry.DeltaQty, &entry.Type, &reference, &entry.Notes, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Reference = reference.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		Date:      from.UTC().Format("2006-01-02"),
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(tax_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1
			AND created_at < $2
			AND status <> $3
	`, from, to, domain.SaleStatusCancelled).Scan(
		&summary.Transactions,
		&summary.GrossSalesCents,
		&summary.DiscountCents,
		&summary.TaxCents,
		&summary.NetSalesCents,
	)
	if err != nil {
		return summary, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1
			AND created_at < $2
			AND status <> $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to, domain.SaleStatusCancelled)
	if err != nil {
		return summary, err
	}
	for paymentRows.Next() {
		var row domain.SalesSummaryPayment
		if err := paymentRows.Scan(&row.PaymentMethod, &row.Transactions, &row.TotalCents); err != nil {
			_ = paymentRows.Close()
			return summary, err
		}
		summary.ByPayment = append(summary.ByPayment, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return summary, err
	}
	_ = paymentRows.Close()

	return summary, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s taken", store.ErrConflict, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) fetchSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, sku, product_name, qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.SKU, &item.ProductName, &item.Qty, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.CostPriceCents, &p.Quantity, &p.MinimumStock, &p.Active, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var customer domain.Customer
	var email, address sql.NullString
	err := row.Scan(&customer.ID, &customer.Name, &customer.Phone, &email, &address, &customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	customer.Email = email.String
	customer.Address = address.String
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID, cancelReason sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.InvoiceNumber,
		&customerID,
		&sale.Date,
		&sale.SubtotalCents,
		&sale.DiscountPercent,
		&sale.DiscountCents,
		&sale.TaxPercent,
		&sale.TaxCents,
		&sale.TotalCents,
		&sale.PaymentMethod,
		&sale.Status,
		&cancelReason,
		&cancelledAt,
		&sale.CreatedBy,
		&sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.CancelReason = cancelReason.String
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}
	sale.Date = sale.Date.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func uniqueSKUs(items []domain.SaleItem) []string {
	if len(items) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		set[item.SKU] = struct{}{}
	}

	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
