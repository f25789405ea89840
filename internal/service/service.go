// Package service holds the business operations behind the console API:
// invoice lifecycle, order bridging, expense tracking, reporting and exports.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/billing"
	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/export"
	"agencydesk/backend/internal/logger"
	"agencydesk/backend/internal/money"
	"agencydesk/backend/internal/report"
	"agencydesk/backend/internal/store"
	"agencydesk/backend/internal/xid"
)

// ErrForbidden marks an operation the acting user's role does not permit.
var ErrForbidden = errors.New("forbidden")

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
	numbers *billing.NumberGenerator
	agg     *report.Aggregator
	log     zerolog.Logger
	now     func() time.Time
}

func New(repo store.Repository, numbers *billing.NumberGenerator) *Service {
	return &Service{
		repo:    repo,
		numbers: numbers,
		agg:     report.NewAggregator(repo),
		log:     logger.WithComponent("service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	return nil
}

// --- invoices ---

func (s *Service) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// CreateInvoice validates the request, recomputes every derived monetary
// field, assigns the next invoice number and persists. The stored totals are
// never taken from the caller when line items are present; TotalOverride is
// honored only for item-less invoices such as bridged orders.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.ClientName == "" || req.ClientEmail == "" || req.DueDate.IsZero() {
		return domain.Invoice{}, store.ErrMissingRequiredField
	}

	status := req.Status
	if status == "" {
		status = domain.InvoiceStatusDraft
	}
	if status != domain.InvoiceStatusDraft && status != domain.InvoiceStatusSent {
		return domain.Invoice{}, billing.ErrInvalidStatusTransition
	}

	invoice := domain.Invoice{
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   strings.TrimSpace(req.ClientPhone),
		ClientAddress: strings.TrimSpace(req.ClientAddress),
		Status:        status,
		DueDate:       req.DueDate.UTC(),
		CreatedAt:     s.now(),
		PaymentTerms:  strings.TrimSpace(req.PaymentTerms),
		Notes:         req.Notes,
		SourceOrderID: req.SourceOrderID,
	}

	if len(req.Items) > 0 {
		items, subtotal, total, err := money.Normalize(req.Items, req.TaxAmount)
		if err != nil {
			return domain.Invoice{}, err
		}
		invoice.Items = items
		invoice.Subtotal = subtotal
		invoice.TaxAmount = req.TaxAmount.Round(money.Places)
		invoice.TotalAmount = total
	} else {
		if req.TotalOverride == nil || !req.TotalOverride.IsPositive() {
			return domain.Invoice{}, store.ErrMissingRequiredField
		}
		invoice.Items = []domain.LineItem{}
		invoice.Subtotal = req.TotalOverride.Round(money.Places)
		invoice.TaxAmount = req.TaxAmount.Round(money.Places)
		total, err := money.Total(invoice.Subtotal, invoice.TaxAmount)
		if err != nil {
			return domain.Invoice{}, err
		}
		invoice.TotalAmount = total
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("assign invoice number: %w", err)
	}
	invoice.Number = number

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_create", "invoice", created.ID, fmt.Sprintf("number=%s,total=%s,status=%s", created.Number, created.TotalAmount, created.Status))
	return *created, nil
}

// UpdateInvoice applies a partial edit on top of the stored invoice and
// recomputes derived amounts before writing. The store rejects stale versions
// and number/createdAt edits outside draft.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req domain.InvoiceUpdateRequest) (domain.Invoice, error) {
	existing, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}

	updated := *existing
	if req.ClientName != nil {
		name := strings.TrimSpace(*req.ClientName)
		if name == "" {
			return domain.Invoice{}, store.ErrMissingRequiredField
		}
		updated.ClientName = name
	}
	if req.ClientEmail != nil {
		email := strings.TrimSpace(*req.ClientEmail)
		if email == "" {
			return domain.Invoice{}, store.ErrMissingRequiredField
		}
		updated.ClientEmail = email
	}
	if req.ClientPhone != nil {
		updated.ClientPhone = strings.TrimSpace(*req.ClientPhone)
	}
	if req.ClientAddress != nil {
		updated.ClientAddress = strings.TrimSpace(*req.ClientAddress)
	}
	if req.Items != nil {
		updated.Items = *req.Items
	}
	if req.TaxAmount != nil {
		updated.TaxAmount = *req.TaxAmount
	}
	if req.DueDate != nil {
		if req.DueDate.IsZero() {
			return domain.Invoice{}, store.ErrMissingRequiredField
		}
		updated.DueDate = req.DueDate.UTC()
	}
	if req.PaymentTerms != nil {
		updated.PaymentTerms = strings.TrimSpace(*req.PaymentTerms)
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}
	if req.Number != nil {
		updated.Number = strings.TrimSpace(*req.Number)
	}

	if len(updated.Items) > 0 {
		items, subtotal, total, err := money.Normalize(updated.Items, updated.TaxAmount)
		if err != nil {
			return domain.Invoice{}, err
		}
		updated.Items = items
		updated.Subtotal = subtotal
		updated.TaxAmount = updated.TaxAmount.Round(money.Places)
		updated.TotalAmount = total
	} else {
		// An item-less invoice carries its subtotal as the standing amount;
		// explicitly clearing the items resets it to zero. The total is
		// recomputed either way so it never drifts from subtotal plus tax.
		if req.Items != nil {
			updated.Subtotal = decimal.Zero
		}
		updated.Items = []domain.LineItem{}
		updated.Subtotal = updated.Subtotal.Round(money.Places)
		updated.TaxAmount = updated.TaxAmount.Round(money.Places)
		total, err := money.Total(updated.Subtotal, updated.TaxAmount)
		if err != nil {
			return domain.Invoice{}, err
		}
		updated.TotalAmount = total
	}

	updated.Version = req.Version
	saved, err := s.repo.UpdateInvoice(ctx, updated)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_update", "invoice", saved.ID, fmt.Sprintf("number=%s,total=%s,version=%d", saved.Number, saved.TotalAmount, saved.Version))
	return *saved, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "invoice_delete", "invoice", id, "")
	return nil
}

// SendInvoice transitions the invoice to sent and renders its PDF, the
// artifact handed to the client. The number and creation date freeze from
// this point on.
func (s *Service) SendInvoice(ctx context.Context, id string) (domain.Invoice, []byte, string, error) {
	invoice, err := s.transitionInvoice(ctx, id, domain.InvoiceStatusSent, "invoice_send")
	if err != nil {
		return domain.Invoice{}, nil, "", err
	}

	doc, err := export.InvoiceDocument(invoice, s.now())
	if err != nil {
		// The transition already persisted; the document can be regenerated.
		s.log.Error().Err(err).Str("invoice_id", invoice.ID).Msg("invoice document rendering failed")
		return invoice, nil, "", fmt.Errorf("render invoice document: %w", err)
	}
	return invoice, doc, export.InvoiceDocumentName(invoice.Number), nil
}

func (s *Service) MarkInvoicePaid(ctx context.Context, id string) (domain.Invoice, error) {
	return s.transitionInvoice(ctx, id, domain.InvoiceStatusPaid, "invoice_mark_paid")
}

func (s *Service) CancelInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	return s.transitionInvoice(ctx, id, domain.InvoiceStatusCancelled, "invoice_cancel")
}

func (s *Service) transitionInvoice(ctx context.Context, id string, next string, action string) (domain.Invoice, error) {
	existing, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := billing.TransitionInvoice(existing.Status, next); err != nil {
		return domain.Invoice{}, err
	}

	updated := *existing
	updated.Status = next
	saved, err := s.repo.UpdateInvoice(ctx, updated)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, action, "invoice", saved.ID, fmt.Sprintf("number=%s,status=%s", saved.Number, saved.Status))
	return *saved, nil
}

// MarkOverdueInvoices sweeps sent invoices whose due date has passed and
// flips them to overdue. Operator triggered; returns the ids it updated.
func (s *Service) MarkOverdueInvoices(ctx context.Context) ([]string, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated := []string{}
	for _, invoice := range invoices {
		if invoice.Status != domain.InvoiceStatusSent || !invoice.DueDate.Before(now) {
			continue
		}
		next := invoice
		next.Status = domain.InvoiceStatusOverdue
		if _, err := s.repo.UpdateInvoice(ctx, next); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("overdue sweep: update failed")
			continue
		}
		updated = append(updated, invoice.ID)
	}

	s.logAudit(ctx, "invoice_overdue_sweep", "invoice", "", fmt.Sprintf("updated=%d", len(updated)))
	return updated, nil
}

// --- orders ---

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CreateOrder persists a new pending order. When the charged amount deviates
// from the catalog snapshot, a price change reason is mandatory.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" || !req.Amount.IsPositive() {
		return domain.Order{}, store.ErrInvalidEntity
	}

	if req.Product != nil {
		expected := req.Product.OriginalPrice.Mul(decimal.NewFromInt(int64(req.Product.Quantity)))
		if !req.Amount.Equal(expected) && strings.TrimSpace(req.Product.PriceChangeReason) == "" {
			return domain.Order{}, fmt.Errorf("price change reason required: %w", store.ErrMissingRequiredField)
		}
	}

	order := domain.Order{
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Amount:        req.Amount.Round(money.Places),
		Status:        domain.OrderStatusPending,
		Date:          s.now(),
		Product:       req.Product,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("customer=%s,amount=%s", created.CustomerName, created.Amount))
	return *created, nil
}

// AdvanceOrderStatus moves an order along its lifecycle. Completing an order
// triggers the invoice bridge; a bridge failure is logged for reconciliation
// and does not roll the completion back.
func (s *Service) AdvanceOrderStatus(ctx context.Context, id string, next string) (domain.Order, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := billing.TransitionOrder(existing.Status, next); err != nil {
		return domain.Order{}, err
	}

	saved, err := s.repo.UpdateOrderStatus(ctx, id, next)
	if err != nil {
		return domain.Order{}, err
	}
	s.logAudit(ctx, "order_status", "order", saved.ID, fmt.Sprintf("status=%s", saved.Status))

	if next == domain.OrderStatusCompleted {
		if _, err := s.bridgeOrder(ctx, *saved); err != nil {
			s.log.Error().Err(err).Str("order_id", saved.ID).Msg("order completed but invoice bridge failed; reconciliation sweep will retry")
			s.logAudit(ctx, "invoice_bridge_failed", "order", saved.ID, err.Error())
		}
	}

	return *saved, nil
}

// bridgeOrder creates the invoice derived from a completed order unless one
// already exists for it. Safe to call more than once per order.
func (s *Service) bridgeOrder(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	if existing, err := s.repo.FindInvoiceBySourceOrder(ctx, order.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	req := billing.InvoiceFromCompletedOrder(order, s.now())
	invoice, err := s.CreateInvoice(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "invoice_bridge", "invoice", invoice.ID, fmt.Sprintf("order=%s,total=%s", order.ID, invoice.TotalAmount))
	return &invoice, nil
}

// ReconcileInvoices sweeps all completed orders and creates any invoice the
// bridge failed to write. Operator triggered, admin only.
func (s *Service) ReconcileInvoices(ctx context.Context) (domain.ReconciliationResult, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.ReconciliationResult{}, err
	}

	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	result := domain.ReconciliationResult{
		Created: []string{},
		Failed:  []string{},
		SweptAt: s.now().Format(time.RFC3339),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		result.Operator = actor.Username
	}

	for _, order := range orders {
		if order.Status != domain.OrderStatusCompleted {
			continue
		}
		result.Scanned++

		if _, err := s.repo.FindInvoiceBySourceOrder(ctx, order.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			result.Failed = append(result.Failed, order.ID)
			s.log.Warn().Err(err).Str("order_id", order.ID).Msg("reconciliation: lookup failed")
			continue
		}

		invoice, err := s.bridgeOrder(ctx, order)
		if err != nil {
			result.Failed = append(result.Failed, order.ID)
			s.log.Warn().Err(err).Str("order_id", order.ID).Msg("reconciliation: bridge failed")
			continue
		}
		result.Created = append(result.Created, invoice.ID)
	}

	s.logAudit(ctx, "invoice_reconcile", "order", "", fmt.Sprintf("scanned=%d,created=%d,failed=%d", result.Scanned, len(result.Created), len(result.Failed)))
	return result, nil
}

// --- expenses ---

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx)
}

func (s *Service) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if !req.Amount.IsPositive() {
		return domain.Expense{}, store.ErrInvalidEntity
	}

	expense := domain.Expense{
		Category:    normalizeCategory(req.Category),
		Amount:      req.Amount.Round(money.Places),
		Date:        req.Date.UTC(),
		Description: strings.TrimSpace(req.Description),
	}
	if expense.Date.IsZero() {
		expense.Date = s.now()
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%s", created.Category, created.Amount))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, store.ErrInvalidEntity
	}

	updated := *existing
	updated.Category = normalizeCategory(req.Category)
	updated.Amount = req.Amount.Round(money.Places)
	updated.Description = strings.TrimSpace(req.Description)
	if !req.Date.IsZero() {
		updated.Date = req.Date.UTC()
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_update", "expense", saved.ID, fmt.Sprintf("category=%s,amount=%s", saved.Category, saved.Amount))
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_delete", "expense", id, "")
	return nil
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if !slices.Contains(domain.ExpenseCategories, category) {
		return domain.ExpenseCategoryOther
	}
	return category
}

// --- reporting & exports ---

func (s *Service) BuildReport(ctx context.Context, window domain.ReportWindow, topN int) (domain.Report, error) {
	return s.agg.Aggregate(ctx, window, topN)
}

// ExportSpreadsheet renders the window's ledger as an xlsx workbook and
// returns the bytes with the download file name.
func (s *Service) ExportSpreadsheet(ctx context.Context, window domain.ReportWindow) ([]byte, string, error) {
	rows, err := s.agg.LedgerRows(ctx, window)
	if err != nil {
		return nil, "", err
	}
	data, err := export.Spreadsheet(rows)
	if err != nil {
		s.log.Error().Err(err).Msg("spreadsheet export failed")
		return nil, "", err
	}
	s.logAudit(ctx, "export_spreadsheet", "report", "", fmt.Sprintf("rows=%d", len(rows)))
	return data, export.SpreadsheetName("financial", s.now()), nil
}

// ExportDocument renders the window's report as a PDF and returns the bytes
// with the download file name.
func (s *Service) ExportDocument(ctx context.Context, window domain.ReportWindow) ([]byte, string, error) {
	rep, err := s.agg.Aggregate(ctx, window, report.DefaultTopN)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.agg.LedgerRows(ctx, window)
	if err != nil {
		return nil, "", err
	}
	data, err := export.Document("Financial Report", rep, rows, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("document export failed")
		return nil, "", err
	}
	s.logAudit(ctx, "export_document", "report", "", fmt.Sprintf("rows=%d", len(rows)))
	return data, export.DocumentName("financial", s.now()), nil
}

// ExportInvoiceDocument re-renders the PDF for an existing invoice.
func (s *Service) ExportInvoiceDocument(ctx context.Context, id string) ([]byte, string, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, err := export.InvoiceDocument(*invoice, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", id).Msg("invoice document export failed")
		return nil, "", err
	}
	return data, export.InvoiceDocumentName(invoice.Number), nil
}

// --- audit ---

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
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
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("audit write failed")
	}
}
