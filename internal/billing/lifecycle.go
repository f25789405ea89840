// Package billing holds the invoice lifecycle rules, invoice number
// generation and the order-to-invoice derivation. Nothing here touches the
// store; callers check transitions before any write happens.
package billing

import (
	"errors"
	"fmt"

	"agencydesk/backend/internal/domain"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// invoiceTransitions is the full transition table. Paid and cancelled have no
// outgoing edges.
var invoiceTransitions = map[string][]string{
	domain.InvoiceStatusDraft:   {domain.InvoiceStatusSent, domain.InvoiceStatusPaid, domain.InvoiceStatusOverdue, domain.InvoiceStatusCancelled},
	domain.InvoiceStatusSent:    {domain.InvoiceStatusPaid, domain.InvoiceStatusOverdue, domain.InvoiceStatusCancelled},
	domain.InvoiceStatusOverdue: {domain.InvoiceStatusCancelled},
}

// CanTransitionInvoice reports whether moving an invoice from one status to
// another is allowed by the lifecycle table.
func CanTransitionInvoice(from, to string) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionInvoice validates the requested status change. Rejection carries
// no side effect: calling it twice with the same arguments yields the same
// error and leaves nothing changed.
func TransitionInvoice(from, to string) error {
	if !CanTransitionInvoice(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return nil
}

// InvoiceMutableInFull reports whether the invoice can still be edited field
// by field. Once it leaves draft, the invoice number and creation date are
// frozen.
func InvoiceMutableInFull(status string) bool {
	return status == domain.InvoiceStatusDraft
}

// orderTransitions: forward-only through the fulfilment sequence; cancelled is
// terminal from any non-completed state.
var orderTransitions = map[string][]string{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// TransitionOrder validates an order status change against the forward-only
// fulfilment sequence.
func TransitionOrder(from, to string) error {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}
