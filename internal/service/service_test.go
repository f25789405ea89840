package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/billing"
	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/sequence"
	"agencydesk/backend/internal/store"
	"agencydesk/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	svc := New(repo, billing.NewNumberGenerator(sequence.NewStoreSequencer(repo)))
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items: []domain.LineItem{
			{Description: "Brand refresh", Quantity: 2, UnitRate: decimal.NewFromInt(500)},
			{Description: "Launch video", Quantity: 1, UnitRate: decimal.NewFromInt(1500)},
		},
		TaxAmount: decimal.NewFromInt(200),
		DueDate:   time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if want := decimal.NewFromInt(2500); !created.Subtotal.Equal(want) {
		t.Errorf("subtotal = %s, want %s", created.Subtotal, want)
	}
	if want := decimal.NewFromInt(2700); !created.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", created.TotalAmount, want)
	}
	if created.Status != domain.InvoiceStatusDraft {
		t.Errorf("status = %s, want draft", created.Status)
	}
	if !strings.HasPrefix(created.Number, "INV-") || !strings.HasSuffix(created.Number, "-001") {
		t.Errorf("unexpected invoice number %s", created.Number)
	}
	if created.Version != 1 {
		t.Errorf("version = %d, want 1", created.Version)
	}
}

func TestCreateInvoiceWithoutItemsRequiresOverride(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if !errors.Is(err, store.ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestInvoiceRoundTripItemsNeverNil(t *testing.T) {
	svc, _ := newTestService()

	amount := decimal.NewFromInt(800)
	created, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{
		ClientName:    "Bluefin Legal",
		ClientEmail:   "ops@bluefin.test",
		TotalOverride: &amount,
		DueDate:       time.Now().AddDate(0, 0, 15),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	fetched, err := svc.GetInvoice(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if fetched.Items == nil {
		t.Fatal("items must round-trip as an empty slice, not nil")
	}
	if len(fetched.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(fetched.Items))
	}
}

func TestUpdateInvoiceNumberFrozenAfterSend(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	created, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items:       []domain.LineItem{{Description: "Retainer", Quantity: 1, UnitRate: decimal.NewFromInt(1200)}},
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	sent, _, _, err := svc.SendInvoice(ctx, created.ID)
	if err != nil {
		t.Fatalf("send invoice: %v", err)
	}

	forged := "INV-999999-999"
	_, err = svc.UpdateInvoice(ctx, created.ID, domain.InvoiceUpdateRequest{
		Number:  &forged,
		Version: sent.Version,
	})
	if !errors.Is(err, store.ErrImmutableField) {
		t.Fatalf("expected ErrImmutableField, got %v", err)
	}
}

func TestUpdateInvoiceStaleVersionRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	created, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items:       []domain.LineItem{{Description: "Retainer", Quantity: 1, UnitRate: decimal.NewFromInt(1200)}},
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	notes := "first edit"
	if _, err := svc.UpdateInvoice(ctx, created.ID, domain.InvoiceUpdateRequest{Notes: &notes, Version: created.Version}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale := "second edit with stale version"
	_, err = svc.UpdateInvoice(ctx, created.ID, domain.InvoiceUpdateRequest{Notes: &stale, Version: created.Version})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdateTaxRecomputesItemlessTotal(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	amount := decimal.NewFromInt(1000)
	created, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientName:    "Harbor Coffee",
		ClientEmail:   "owner@harborcoffee.test",
		TotalOverride: &amount,
		DueDate:       time.Now().AddDate(0, 0, 15),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	tax := decimal.NewFromInt(100)
	saved, err := svc.UpdateInvoice(ctx, created.ID, domain.InvoiceUpdateRequest{
		TaxAmount: &tax,
		Version:   created.Version,
	})
	if err != nil {
		t.Fatalf("update tax: %v", err)
	}

	if want := decimal.NewFromInt(1000); !saved.Subtotal.Equal(want) {
		t.Errorf("subtotal = %s, want %s", saved.Subtotal, want)
	}
	if want := decimal.NewFromInt(1100); !saved.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", saved.TotalAmount, want)
	}
	if !saved.TotalAmount.Equal(saved.Subtotal.Add(saved.TaxAmount)) {
		t.Errorf("total %s != subtotal %s + tax %s", saved.TotalAmount, saved.Subtotal, saved.TaxAmount)
	}
}

func TestClearingItemsResetsDerivedTotals(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	created, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items:       []domain.LineItem{{Description: "Retainer", Quantity: 1, UnitRate: decimal.NewFromInt(1000)}},
		TaxAmount:   decimal.NewFromInt(200),
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	empty := []domain.LineItem{}
	saved, err := svc.UpdateInvoice(ctx, created.ID, domain.InvoiceUpdateRequest{
		Items:   &empty,
		Version: created.Version,
	})
	if err != nil {
		t.Fatalf("clear items: %v", err)
	}

	if !saved.Subtotal.IsZero() {
		t.Errorf("subtotal = %s, want 0 after clearing items", saved.Subtotal)
	}
	if !saved.TotalAmount.Equal(saved.Subtotal.Add(saved.TaxAmount)) {
		t.Errorf("total %s != subtotal %s + tax %s", saved.TotalAmount, saved.Subtotal, saved.TaxAmount)
	}
}

func TestCreateInvoiceAllowsZeroRateItems(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items:       []domain.LineItem{{Description: "Goodwill credit", Quantity: 1, UnitRate: decimal.Zero}},
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("zero-rate create: %v", err)
	}
	if !created.TotalAmount.IsZero() {
		t.Errorf("total = %s, want 0", created.TotalAmount)
	}
}

func TestPaidIsAbsorbing(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	created, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		Items:       []domain.LineItem{{Description: "Retainer", Quantity: 1, UnitRate: decimal.NewFromInt(1200)}},
		DueDate:     time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, _, _, err := svc.SendInvoice(ctx, created.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.MarkInvoicePaid(ctx, created.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	if _, err := svc.CancelInvoice(ctx, created.ID); !errors.Is(err, billing.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	fetched, err := svc.GetInvoice(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != domain.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid (rejection must not mutate)", fetched.Status)
	}
}

func TestCompletedOrderBridgesToSentInvoice(t *testing.T) {
	svc, repo := newTestService()
	fixed := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := staffCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName:  "Harbor Coffee",
		CustomerEmail: "owner@harborcoffee.test",
		Amount:        decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.AdvanceOrderStatus(ctx, order.ID, domain.OrderStatusProcessing); err != nil {
		t.Fatalf("advance to processing: %v", err)
	}
	if _, err := svc.AdvanceOrderStatus(ctx, order.ID, domain.OrderStatusCompleted); err != nil {
		t.Fatalf("advance to completed: %v", err)
	}

	invoice, err := repo.FindInvoiceBySourceOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("bridged invoice missing: %v", err)
	}
	if !invoice.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total = %s, want 1000", invoice.TotalAmount)
	}
	if invoice.Status != domain.InvoiceStatusSent {
		t.Errorf("status = %s, want sent", invoice.Status)
	}
	if len(invoice.Items) != 0 {
		t.Errorf("bridged invoice must carry no line items, got %d", len(invoice.Items))
	}
	wantDue := fixed.AddDate(0, 0, billing.BridgeDueDays)
	if !invoice.DueDate.Equal(wantDue) {
		t.Errorf("due date = %s, want %s", invoice.DueDate, wantDue)
	}
	if !invoice.CreatedAt.Equal(fixed) {
		t.Errorf("created at = %s, want %s", invoice.CreatedAt, fixed)
	}
}

func TestOrderCannotSkipProcessing(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Harbor Coffee",
		Amount:       decimal.NewFromInt(400),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.AdvanceOrderStatus(ctx, order.ID, domain.OrderStatusCompleted); !errors.Is(err, billing.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestCreateOrderRequiresPriceChangeReason(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		CustomerName: "Harbor Coffee",
		Amount:       decimal.NewFromInt(900),
		Product: &domain.ProductDetails{
			ProductID:     "pkg-1",
			ProductName:   "Starter package",
			OriginalPrice: decimal.NewFromInt(500),
			Quantity:      2,
			UnitPrice:     decimal.NewFromInt(450),
		},
	})
	if !errors.Is(err, store.ErrMissingRequiredField) {
		t.Fatalf("expected missing price change reason error, got %v", err)
	}
}

func TestReconcileCreatesMissingInvoices(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	// A completed order written without going through the service, as if the
	// bridge had failed after the status write.
	orphan, err := repo.CreateOrder(ctx, domain.Order{
		CustomerName:  "Bluefin Legal",
		CustomerEmail: "ops@bluefin.test",
		Amount:        decimal.NewFromInt(3400),
		Status:        domain.OrderStatusCompleted,
		Date:          time.Now().UTC().AddDate(0, 0, -2),
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	result, err := svc.ReconcileInvoices(adminCtx())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Scanned != 1 || len(result.Created) != 1 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := repo.FindInvoiceBySourceOrder(ctx, orphan.ID); err != nil {
		t.Fatalf("invoice still missing after reconcile: %v", err)
	}

	// Second sweep is a no-op: the bridge is at-least-once but deduplicated.
	again, err := svc.ReconcileInvoices(adminCtx())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(again.Created) != 0 {
		t.Fatalf("second sweep created %d invoices, want 0", len(again.Created))
	}
}

func TestReconcileRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ReconcileInvoices(staffCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff, got %v", err)
	}
}

func TestMarkOverdueInvoicesSweep(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	pastDue, err := repo.CreateInvoice(ctx, domain.Invoice{
		ClientName: "Harbor Coffee", ClientEmail: "owner@harborcoffee.test",
		TotalAmount: decimal.NewFromInt(500), Status: domain.InvoiceStatusSent,
		DueDate: time.Now().UTC().AddDate(0, 0, -3), CreatedAt: time.Now().UTC().AddDate(0, 0, -20),
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	current, err := repo.CreateInvoice(ctx, domain.Invoice{
		ClientName: "Bluefin Legal", ClientEmail: "ops@bluefin.test",
		TotalAmount: decimal.NewFromInt(900), Status: domain.InvoiceStatusSent,
		DueDate: time.Now().UTC().AddDate(0, 0, 10), CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	updated, err := svc.MarkOverdueInvoices(adminCtx())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(updated) != 1 || updated[0] != pastDue.ID {
		t.Fatalf("updated = %v, want only %s", updated, pastDue.ID)
	}

	fetched, _ := repo.GetInvoice(ctx, current.ID)
	if fetched.Status != domain.InvoiceStatusSent {
		t.Errorf("not-yet-due invoice flipped to %s", fetched.Status)
	}
}

func TestExpenseUnknownCategoryFoldsToOther(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{
		Category:    "Snacks",
		Amount:      decimal.NewFromInt(40),
		Description: "Team lunch",
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if created.Category != domain.ExpenseCategoryOther {
		t.Errorf("category = %s, want Other", created.Category)
	}
}

func TestDeleteExpenseRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{
		Category: domain.ExpenseCategoryTravel,
		Amount:   decimal.NewFromInt(120),
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if err := svc.DeleteExpense(staffCtx(), created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff delete, got %v", err)
	}
	if err := svc.DeleteExpense(adminCtx(), created.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestExportSpreadsheetNamesFile(t *testing.T) {
	svc, _ := newTestService()

	window := domain.ReportWindow{
		From: time.Now().UTC().AddDate(0, -1, 0),
		To:   time.Now().UTC(),
	}
	data, name, err := svc.ExportSpreadsheet(staffCtx(), window)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty workbook bytes")
	}
	if !strings.HasPrefix(name, "financial-report-") || !strings.HasSuffix(name, ".xlsx") {
		t.Errorf("unexpected file name %s", name)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Harbor Coffee",
		Amount:       decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected at least one audit entry")
	}
	if logs[0].ActorUsername != "staff" {
		t.Errorf("actor = %s, want staff", logs[0].ActorUsername)
	}
}
