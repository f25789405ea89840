package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one billable row on an invoice. Amount is always derived from
// Quantity and UnitRate; it is never accepted from the caller as-is.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice statuses. Paid and cancelled are absorbing.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

type Invoice struct {
	ID            string          `json:"id"`
	Number        string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientPhone   string          `json:"client_phone,omitempty"`
	ClientAddress string          `json:"client_address,omitempty"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	DueDate       time.Time       `json:"due_date"`
	CreatedAt     time.Time       `json:"created_at"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SourceOrderID string          `json:"source_order_id,omitempty"`
	Version       int             `json:"version"`
}

type InvoiceCreateRequest struct {
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientPhone   string          `json:"client_phone,omitempty"`
	ClientAddress string          `json:"client_address,omitempty"`
	Items         []LineItem      `json:"items"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	DueDate       time.Time       `json:"due_date"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SourceOrderID string          `json:"source_order_id,omitempty"`
	// TotalOverride carries an authoritative total for invoices that have no
	// line items (the order bridge); ignored whenever Items is non-empty.
	TotalOverride *decimal.Decimal `json:"total_override,omitempty"`
	Status        string           `json:"status,omitempty"`
}

type InvoiceUpdateRequest struct {
	ClientName    *string          `json:"client_name,omitempty"`
	ClientEmail   *string          `json:"client_email,omitempty"`
	ClientPhone   *string          `json:"client_phone,omitempty"`
	ClientAddress *string          `json:"client_address,omitempty"`
	Items         *[]LineItem      `json:"items,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	PaymentTerms  *string          `json:"payment_terms,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	Number        *string          `json:"invoice_number,omitempty"`
	Version       int              `json:"version"`
}

// Order statuses. Transitions are forward-only through
// pending -> processing -> completed; cancelled is terminal from any
// non-completed state.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// ProductDetails is the catalog snapshot taken at order creation.
// PriceChangeReason is mandatory whenever the charged amount differs from
// OriginalPrice x Quantity.
type ProductDetails struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	OriginalPrice     decimal.Decimal `json:"original_price"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	PriceChangeReason string          `json:"price_change_reason,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Date          time.Time       `json:"date"`
	Product       *ProductDetails `json:"product_details,omitempty"`
}

type OrderCreateRequest struct {
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Amount        decimal.Decimal `json:"amount"`
	Product       *ProductDetails `json:"product_details,omitempty"`
}

// Fixed expense category set. Anything else folds into Other when reporting.
const (
	ExpenseCategoryOfficeSupplies = "Office Supplies"
	ExpenseCategoryMarketing      = "Marketing"
	ExpenseCategoryTravel         = "Travel"
	ExpenseCategorySoftware       = "Software"
	ExpenseCategoryEquipment      = "Equipment"
	ExpenseCategoryUtilities      = "Utilities"
	ExpenseCategoryOther          = "Other"
)

// ExpenseCategories lists the categories in their fixed display order.
var ExpenseCategories = []string{
	ExpenseCategoryOfficeSupplies,
	ExpenseCategoryMarketing,
	ExpenseCategoryTravel,
	ExpenseCategorySoftware,
	ExpenseCategoryEquipment,
	ExpenseCategoryUtilities,
	ExpenseCategoryOther,
}

type Expense struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

type ExpenseCreateRequest struct {
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// ReportWindow scopes an aggregation. From is inclusive, To is exclusive.
type ReportWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type MonthlyBucket struct {
	Month    string          `json:"month"` // YYYY-MM
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// ActivityEntry is one row of the merged ledger view: an order, an expense or
// an invoice flattened to the columns the exports and the activity feed share.
type ActivityEntry struct {
	Type        string          `json:"type"` // order, expense, invoice
	EntityID    string          `json:"entity_id"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Report is the ephemeral aggregation result. It is recomputed on every
// request and never persisted or cached.
//
// TotalRevenue counts paid invoices only. Completed orders that never
// produced an invoice are reported separately as PipelineRevenue and are not
// added into TotalRevenue, so the two figures never double count an order
// that was bridged and later paid.
type Report struct {
	Window          ReportWindow    `json:"window"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	PipelineRevenue decimal.Decimal `json:"pipeline_revenue"`
	TotalExpenses   decimal.Decimal `json:"total_expenses"`
	NetProfit       decimal.Decimal `json:"net_profit"`
	TotalOrders     int             `json:"total_orders"`
	Monthly         []MonthlyBucket `json:"monthly"`
	Categories      []CategoryTotal `json:"categories"`
	TopActivity     []ActivityEntry `json:"top_activity"`
}

// ReconciliationResult summarises one sweep over completed orders that are
// missing their bridged invoice.
type ReconciliationResult struct {
	Scanned  int      `json:"scanned"`
	Created  []string `json:"created_invoice_ids"`
	Failed   []string `json:"failed_order_ids"`
	SweptAt  string   `json:"swept_at"`
	Operator string   `json:"operator,omitempty"`
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
