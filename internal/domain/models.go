package domain

import "time"

type Product struct {
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	PriceCents     int64     `json:"price_cents"`
	CostPriceCents int64     `json:"cost_price_cents"`
	Quantity       int       `json:"quantity"`
	MinimumStock   int       `json:"minimum_stock"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	InitialStock   int    `json:"initial_stock"`
	MinimumStock   int    `json:"minimum_stock"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
	MinimumStock   *int    `json:"minimum_stock,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type SupplierListResponse struct {
	Suppliers []Supplier `json:"suppliers"`
}

type SaleItemRequest struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID      string                 `json:"customer_id,omitempty"`
	NewCustomer     *CustomerCreateRequest `json:"new_customer,omitempty"`
	Date            string                 `json:"date,omitempty"`
	PaymentMethod   string                 `json:"payment_method,omitempty"`
	Status          string                 `json:"status,omitempty"`
	DiscountPercent float64                `json:"discount_percent"`
	TaxPercent      float64                `json:"tax_percent"`
	Items           []SaleItemRequest      `json:"items"`
}

type SaleItem struct {
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID              string     `json:"id"`
	InvoiceNumber   string     `json:"invoice_number"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Date            time.Time  `json:"date"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	DiscountPercent float64    `json:"discount_percent"`
	DiscountCents   int64      `json:"discount_cents"`
	TaxPercent      float64    `json:"tax_percent"`
	TaxCents        int64      `json:"tax_cents"`
	TotalCents      int64      `json:"total_cents"`
	PaymentMethod   string     `json:"payment_method"`
	Status          string     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	Items           []SaleItem `json:"items"`
	Customer        *Customer  `json:"customer,omitempty"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type SaleCancelRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type SaleCancelResponse struct {
	SaleID      string `json:"sale_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

type InventoryLog struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	DeltaQty  int       `json:"delta_qty"`
	Type      string    `json:"type"`
	Reference string    `json:"reference,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type InventoryLogListResponse struct {
	Logs []InventoryLog `json:"logs"`
}

type StockAdjustmentRequest struct {
	SKU      string `json:"sku"`
	DeltaQty int    `json:"delta_qty"`
	Type     string `json:"type"`
	Notes    string `json:"notes"`
}

type StockAdjustmentResponse struct {
	SKU         string `json:"sku"`
	NewQuantity int    `json:"new_quantity"`
	LogID       string `json:"log_id"`
}

type PurchaseItemRequest struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseCreateRequest struct {
	SupplierID string                `json:"supplier_id"`
	Reference  string                `json:"reference,omitempty"`
	Items      []PurchaseItemRequest `json:"items"`
}

type PurchaseItem struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	Reference  string         `json:"reference,omitempty"`
	TotalCents int64          `json:"total_cents"`
	ReceivedBy string         `json:"received_by"`
	CreatedAt  time.Time      `json:"created_at"`
	Items      []PurchaseItem `json:"items"`
}

type PurchaseResponse struct {
	Purchase Purchase `json:"purchase"`
}

type SalesSummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int64  `json:"transactions"`
	TotalCents    int64  `json:"total_cents"`
}

type SalesSummary struct {
	Date            string                `json:"date"`
	Transactions    int64                 `json:"transactions"`
	GrossSalesCents int64                 `json:"gross_sales_cents"`
	DiscountCents   int64                 `json:"discount_cents"`
	TaxCents        int64                 `json:"tax_cents"`
	NetSalesCents   int64                 `json:"net_sales_cents"`
	ByPayment       []SalesSummaryPayment `json:"by_payment"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserListResponse struct {
	Users []User `json:"users"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type AuditLogListResponse struct {
	Logs []AuditLog `json:"logs"`
}

const (
	SaleStatusPending   = "PENDING"
	SaleStatusCompleted = "COMPLETED"
	SaleStatusCancelled = "CANCELLED"
)

const (
	InventoryLogSale       = "SALE"
	InventoryLogPurchase   = "PURCHASE"
	InventoryLogAdjustment = "ADJUSTMENT"
	InventoryLogReturn     = "RETURN"
	InventoryLogWriteOff   = "WRITE_OFF"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)
