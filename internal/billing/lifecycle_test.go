package billing

import (
	"errors"
	"testing"

	"agencydesk/backend/internal/domain"
)

func TestInvoiceTransitionTable(t *testing.T) {
	allowed := []struct{ from, to string }{
		{domain.InvoiceStatusDraft, domain.InvoiceStatusSent},
		{domain.InvoiceStatusDraft, domain.InvoiceStatusPaid},
		{domain.InvoiceStatusDraft, domain.InvoiceStatusOverdue},
		{domain.InvoiceStatusDraft, domain.InvoiceStatusCancelled},
		{domain.InvoiceStatusSent, domain.InvoiceStatusPaid},
		{domain.InvoiceStatusSent, domain.InvoiceStatusOverdue},
		{domain.InvoiceStatusSent, domain.InvoiceStatusCancelled},
		{domain.InvoiceStatusOverdue, domain.InvoiceStatusCancelled},
	}
	for _, tc := range allowed {
		if err := TransitionInvoice(tc.from, tc.to); err != nil {
			t.Fatalf("expected %s -> %s to be allowed, got %v", tc.from, tc.to, err)
		}
	}

	denied := []struct{ from, to string }{
		{domain.InvoiceStatusPaid, domain.InvoiceStatusSent},
		{domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled},
		{domain.InvoiceStatusPaid, domain.InvoiceStatusDraft},
		{domain.InvoiceStatusCancelled, domain.InvoiceStatusDraft},
		{domain.InvoiceStatusCancelled, domain.InvoiceStatusSent},
		{domain.InvoiceStatusCancelled, domain.InvoiceStatusPaid},
		{domain.InvoiceStatusSent, domain.InvoiceStatusDraft},
		{domain.InvoiceStatusOverdue, domain.InvoiceStatusPaid},
		{domain.InvoiceStatusOverdue, domain.InvoiceStatusSent},
	}
	for _, tc := range denied {
		if err := TransitionInvoice(tc.from, tc.to); !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected %s -> %s to be rejected, got %v", tc.from, tc.to, err)
		}
	}
}

func TestTransitionRejectionIsIdempotent(t *testing.T) {
	first := TransitionInvoice(domain.InvoiceStatusPaid, domain.InvoiceStatusSent)
	second := TransitionInvoice(domain.InvoiceStatusPaid, domain.InvoiceStatusSent)
	if first == nil || second == nil {
		t.Fatalf("expected both attempts to fail")
	}
	if first.Error() != second.Error() {
		t.Fatalf("expected identical errors, got %q and %q", first, second)
	}
}

func TestOrderTransitionsForwardOnly(t *testing.T) {
	if err := TransitionOrder(domain.OrderStatusPending, domain.OrderStatusProcessing); err != nil {
		t.Fatalf("pending -> processing should be allowed: %v", err)
	}
	if err := TransitionOrder(domain.OrderStatusProcessing, domain.OrderStatusCompleted); err != nil {
		t.Fatalf("processing -> completed should be allowed: %v", err)
	}
	if err := TransitionOrder(domain.OrderStatusPending, domain.OrderStatusCompleted); err == nil {
		t.Fatalf("pending -> completed must not skip processing")
	}
	if err := TransitionOrder(domain.OrderStatusCompleted, domain.OrderStatusCancelled); err == nil {
		t.Fatalf("completed orders cannot be cancelled")
	}
	if err := TransitionOrder(domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("pending -> cancelled should be allowed: %v", err)
	}
	if err := TransitionOrder(domain.OrderStatusCancelled, domain.OrderStatusPending); err == nil {
		t.Fatalf("cancelled is terminal")
	}
}

func TestInvoiceMutableInFull(t *testing.T) {
	if !InvoiceMutableInFull(domain.InvoiceStatusDraft) {
		t.Fatalf("draft must be fully mutable")
	}
	for _, status := range []string{domain.InvoiceStatusSent, domain.InvoiceStatusPaid, domain.InvoiceStatusOverdue, domain.InvoiceStatusCancelled} {
		if InvoiceMutableInFull(status) {
			t.Fatalf("%s must not be fully mutable", status)
		}
	}
}
