package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/store"
)

func validInvoice() domain.Invoice {
	return domain.Invoice{
		ClientName:  "Harbor Coffee",
		ClientEmail: "owner@harborcoffee.test",
		TotalAmount: decimal.NewFromInt(1200),
		Status:      domain.InvoiceStatusDraft,
		DueDate:     time.Now().AddDate(0, 1, 0),
	}
}

func TestCreateInvoiceRejectsMissingFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	cases := []func(*domain.Invoice){
		func(i *domain.Invoice) { i.ClientName = " " },
		func(i *domain.Invoice) { i.ClientEmail = "" },
		func(i *domain.Invoice) { i.TotalAmount = decimal.NewFromInt(-1) },
		func(i *domain.Invoice) { i.DueDate = time.Time{} },
	}
	for n, mutate := range cases {
		invoice := validInvoice()
		mutate(&invoice)
		if _, err := s.CreateInvoice(ctx, invoice); !errors.Is(err, store.ErrMissingRequiredField) {
			t.Errorf("case %d: expected ErrMissingRequiredField, got %v", n, err)
		}
	}
}

func TestCreateInvoiceAcceptsZeroTotal(t *testing.T) {
	s := New()
	ctx := context.Background()

	invoice := validInvoice()
	invoice.TotalAmount = decimal.Zero
	created, err := s.CreateInvoice(ctx, invoice)
	if err != nil {
		t.Fatalf("zero-total create: %v", err)
	}
	if !created.TotalAmount.IsZero() {
		t.Errorf("total = %s, want 0", created.TotalAmount)
	}
}

func TestInvoiceRoundTripNormalizesItemsAndDates(t *testing.T) {
	s := New()
	ctx := context.Background()

	invoice := validInvoice()
	invoice.Items = nil
	loc := time.FixedZone("UTC+7", 7*3600)
	invoice.DueDate = time.Date(2026, time.April, 1, 7, 0, 0, 0, loc)

	created, err := s.CreateInvoice(ctx, invoice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fetched, err := s.GetInvoice(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if fetched.Items == nil {
		t.Fatal("items must come back as an empty slice, not nil")
	}
	if fetched.DueDate.Location() != time.UTC {
		t.Errorf("due date location = %v, want UTC", fetched.DueDate.Location())
	}
	if fetched.Version != 1 {
		t.Errorf("version = %d, want 1", fetched.Version)
	}
}

func TestUpdateInvoiceVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateInvoice(ctx, validInvoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := *created
	first.Notes = "first writer"
	if _, err := s.UpdateInvoice(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second := *created
	second.Notes = "second writer with the same snapshot"
	if _, err := s.UpdateInvoice(ctx, second); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdateInvoiceImmutableFieldsOutsideDraft(t *testing.T) {
	s := New()
	ctx := context.Background()

	invoice := validInvoice()
	invoice.Number = "INV-202603-001"
	invoice.Status = domain.InvoiceStatusSent
	created, err := s.CreateInvoice(ctx, invoice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	edit := *created
	edit.Number = "INV-202603-777"
	if _, err := s.UpdateInvoice(ctx, edit); !errors.Is(err, store.ErrImmutableField) {
		t.Fatalf("number edit: expected ErrImmutableField, got %v", err)
	}

	edit = *created
	edit.CreatedAt = created.CreatedAt.Add(time.Hour)
	if _, err := s.UpdateInvoice(ctx, edit); !errors.Is(err, store.ErrImmutableField) {
		t.Fatalf("createdAt edit: expected ErrImmutableField, got %v", err)
	}

	// Everything else stays editable.
	edit = *created
	edit.Notes = "still editable"
	saved, err := s.UpdateInvoice(ctx, edit)
	if err != nil {
		t.Fatalf("notes edit: %v", err)
	}
	if saved.Version != created.Version+1 {
		t.Errorf("version = %d, want %d", saved.Version, created.Version+1)
	}
}

func TestListInvoicesBetweenWindowBounds(t *testing.T) {
	s := New()
	ctx := context.Background()

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	// from is inclusive, to is exclusive: only the first two land in the window.
	for _, created := range []time.Time{
		from,
		from.AddDate(0, 0, 15),
		to,
		from.AddDate(0, 0, -1),
		to.AddDate(0, 0, 1),
	} {
		invoice := validInvoice()
		invoice.CreatedAt = created
		if _, err := s.CreateInvoice(ctx, invoice); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListInvoicesBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 invoices in window, got %d", len(got))
	}
}

func TestFindInvoiceBySourceOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	invoice := validInvoice()
	invoice.SourceOrderID = "ord-123"
	if _, err := s.CreateInvoice(ctx, invoice); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := s.FindInvoiceBySourceOrder(ctx, "ord-123")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.SourceOrderID != "ord-123" {
		t.Errorf("source order = %s", found.SourceOrderID)
	}

	if _, err := s.FindInvoiceBySourceOrder(ctx, "ord-999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementCounterIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementCounter(ctx, "INV-202603")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("counter = %d, want %d", got, want)
		}
	}

	other, err := s.IncrementCounter(ctx, "INV-202604")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if other != 1 {
		t.Fatalf("independent key counter = %d, want 1", other)
	}
}
