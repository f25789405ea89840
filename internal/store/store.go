package store

import (
	"context"
	"errors"
	"time"

	"agencydesk/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrImmutableField       = errors.New("immutable field")
	ErrVersionConflict      = errors.New("version conflict")
	ErrInvalidEntity        = errors.New("invalid entity")
	ErrUnavailable          = errors.New("store unavailable")
)

// Repository is the named-collection document store behind the console. Every
// call is an independent round trip: there is no cross-call transaction, and a
// failure between two calls leaves whatever the first call wrote in place.
//
// Adapters normalize on read: a stored invoice with a missing or null items
// field comes back with an empty slice, and all timestamps come back in UTC.
type Repository interface {
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	// UpdateInvoice replaces the stored invoice if the caller's Version
	// matches the stored one, then bumps the version. A stale version fails
	// with ErrVersionConflict.
	UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	ListInvoices(ctx context.Context) ([]domain.Invoice, error)
	ListInvoicesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Invoice, error)
	FindInvoiceBySourceOrder(ctx context.Context, orderID string) (*domain.Invoice, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	// IncrementCounter atomically bumps a named counter document and returns
	// the new value, starting from 1.
	IncrementCounter(ctx context.Context, key string) (int64, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
