package billing

import (
	"fmt"
	"time"

	"agencydesk/backend/internal/domain"
)

// BridgeDueDays is how long a bridged invoice's client has to pay.
const BridgeDueDays = 15

// InvoiceFromCompletedOrder derives the invoice create request for an order
// that just reached completed. The order amount carries over as the
// authoritative total: the generated invoice has no line items, only a
// description of what was sold, so the usual items-derived subtotal does not
// apply. Bridged invoices start life as sent, since the client already
// committed to the amount when the order was placed.
func InvoiceFromCompletedOrder(order domain.Order, at time.Time) domain.InvoiceCreateRequest {
	description := fmt.Sprintf("Order %s", order.ID)
	if order.Product != nil && order.Product.ProductName != "" {
		description = fmt.Sprintf("Order %s: %s x%d", order.ID, order.Product.ProductName, order.Product.Quantity)
	}

	amount := order.Amount
	return domain.InvoiceCreateRequest{
		ClientName:    order.CustomerName,
		ClientEmail:   order.CustomerEmail,
		Notes:         description,
		DueDate:       at.AddDate(0, 0, BridgeDueDays),
		SourceOrderID: order.ID,
		TotalOverride: &amount,
		Status:        domain.InvoiceStatusSent,
		PaymentTerms:  fmt.Sprintf("Net %d", BridgeDueDays),
	}
}
