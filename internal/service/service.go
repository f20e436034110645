package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/reporting"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	reports *reporting.Engine
}

func New(repo store.Repository, reports *reporting.Engine) *Service {
	return &Service{
		repo:    repo,
		reports: reports,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, true)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: sku, name and category are required", store.ErrValidation)
	}
	if req.PriceCents < 1 || req.CostPriceCents < 0 || req.InitialStock < 0 || req.MinimumStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		SKU:            req.SKU,
		Name:           req.Name,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		CostPriceCents: req.CostPriceCents,
		Quantity:       req.InitialStock,
		MinimumStock:   req.MinimumStock,
		Active:         true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Quantity))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.MinimumStock = *req.MinimumStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.SKU, fmt.Sprintf("price=%d,min_stock=%d,active=%t", saved.PriceCents, saved.MinimumStock, saved.Active))

	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:      xid.New("cust"),
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)

	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", saved.ID, "name="+saved.Name)

	return *saved, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier name is required", store.ErrValidation)
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:      xid.New("sup"),
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)

	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateSale validates the request, resolves the customer and hands the
// whole write to the repository, which runs it as a single transaction.
// Nothing is persisted when any check fails.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, req.PaymentMethod)
	}

	if req.Status == "" {
		req.Status = domain.SaleStatusCompleted
	}
	if !isValidSaleStatus(req.Status) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported status %q", store.ErrValidation, req.Status)
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return domain.Sale{}, fmt.Errorf("%w: discount percent out of range", store.ErrValidation)
	}
	if req.TaxPercent < 0 || req.TaxPercent > 100 {
		return domain.Sale{}, fmt.Errorf("%w: tax percent out of range", store.ErrValidation)
	}

	saleDate := time.Time{}
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		saleDate = parsed
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" {
			return domain.Sale{}, fmt.Errorf("%w: item sku is required", store.ErrValidation)
		}
		if item.Qty < 1 {
			return domain.Sale{}, fmt.Errorf("%w: qty for %s must be at least 1", store.ErrValidation, sku)
		}
		if item.UnitPriceCents < 0 {
			return domain.Sale{}, fmt.Errorf("%w: unit price for %s", store.ErrValidation, sku)
		}
		items = append(items, domain.SaleItem{
			SKU:            sku,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" && req.NewCustomer != nil {
		customer, err := s.CreateCustomer(ctx, *req.NewCustomer)
		if err != nil {
			return domain.Sale{}, err
		}
		customerID = customer.ID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	sale := domain.Sale{
		ID:              xid.New("sale"),
		CustomerID:      customerID,
		Date:            saleDate,
		DiscountPercent: req.DiscountPercent,
		TaxPercent:      req.TaxPercent,
		PaymentMethod:   req.PaymentMethod,
		Status:          req.Status,
		CreatedBy:       actor.Username,
		CreatedAt:       time.Now().UTC(),
		Items:           items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("invoice=%s,total=%d,items=%d,status=%s", created.InvoiceNumber, created.TotalCents, len(created.Items), created.Status))

	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Sale{}, store.ErrValidation
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, limit int) ([]domain.Sale, error) {
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
	}
	return s.repo.ListSales(ctx, date, limit)
}

func (s *Service) CancelSale(ctx context.Context, saleID string, reason string) (domain.SaleCancelResponse, error) {
	if strings.TrimSpace(saleID) == "" {
		return domain.SaleCancelResponse{}, store.ErrValidation
	}
	if strings.TrimSpace(reason) == "" {
		reason = "unspecified"
	}

	cancelledAt := time.Now().UTC()
	sale, err := s.repo.CancelSale(ctx, saleID, reason, cancelledAt)
	if err != nil {
		return domain.SaleCancelResponse{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", sale.ID, reason)

	return domain.SaleCancelResponse{
		SaleID:      sale.ID,
		Status:      sale.Status,
		CancelledAt: cancelledAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if req.SKU == "" || req.DeltaQty == 0 {
		return domain.StockAdjustmentResponse{}, fmt.Errorf("%w: sku and a non-zero delta are required", store.ErrValidation)
	}
	if req.Type != domain.InventoryLogAdjustment && req.Type != domain.InventoryLogWriteOff {
		return domain.StockAdjustmentResponse{}, fmt.Errorf("%w: unsupported adjustment type %q", store.ErrValidation, req.Type)
	}
	if req.Type == domain.InventoryLogWriteOff && req.DeltaQty > 0 {
		return domain.StockAdjustmentResponse{}, fmt.Errorf("%w: write-off delta must be negative", store.ErrValidation)
	}

	product, entry, err := s.repo.AdjustStock(ctx, domain.InventoryLog{
		SKU:      req.SKU,
		DeltaQty: req.DeltaQty,
		Type:     req.Type,
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", req.SKU, fmt.Sprintf("delta=%d,type=%s", req.DeltaQty, req.Type))

	return domain.StockAdjustmentResponse{
		SKU:         product.SKU,
		NewQuantity: product.Quantity,
		LogID:       entry.ID,
	}, nil
}

func (s *Service) ReceiveGoods(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" {
		return domain.Purchase{}, fmt.Errorf("%w: supplier_id is required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Purchase{}, fmt.Errorf("%w: purchase requires at least one item", store.ErrValidation)
	}

	items := make([]domain.PurchaseItem, 0, len(req.Items))
	for _, item := range req.Items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" || item.Qty < 1 || item.CostCents < 1 {
			return domain.Purchase{}, fmt.Errorf("%w: purchase item %s", store.ErrValidation, sku)
		}
		items = append(items, domain.PurchaseItem{SKU: sku, Qty: item.Qty, CostCents: item.CostCents})
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		ID:         xid.New("pur"),
		SupplierID: req.SupplierID,
		Reference:  strings.TrimSpace(req.Reference),
		ReceivedBy: actor.Username,
		CreatedAt:  time.Now().UTC(),
		Items:      items,
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "goods_receipt", "purchase", created.ID, fmt.Sprintf("supplier=%s,total=%d,items=%d", created.SupplierID, created.TotalCents, len(created.Items)))

	return *created, nil
}

func (s *Service) ListInventoryLogs(ctx context.Context, sku string, limit int) ([]domain.InventoryLog, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	return s.repo.ListInventoryLogs(ctx, sku, limit)
}

func (s *Service) SalesSummary(ctx context.Context, date string) (domain.SalesSummary, error) {
	return s.reports.SalesSummary(ctx, date)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "transfer", "qris":
		return true
	default:
		return false
	}
}

func isValidSaleStatus(status string) bool {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusCompleted, domain.SaleStatusCancelled:
		return true
	default:
		return false
	}
}
