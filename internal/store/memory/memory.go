package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/store"
	"agencydesk/backend/internal/xid"
)

// Store is the in-memory repository used for tests and dev mode. It applies
// the same read normalization the postgres adapter does: items never come
// back nil and every timestamp is UTC.
type Store struct {
	mu              sync.RWMutex
	invoices        map[string]domain.Invoice
	orders          map[string]domain.Order
	expenses        map[string]domain.Expense
	counters        map[string]int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		invoices:        make(map[string]domain.Invoice),
		orders:          make(map[string]domain.Order),
		expenses:        make(map[string]domain.Expense),
		counters:        make(map[string]int64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables, with hardcoded dev defaults and a warning when
// unset. Production deployments use PostgreSQL and real accounts.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts and a handful of records so
// the console has something to show on first run.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	orders := []domain.Order{
		{ID: xid.New("ord"), CustomerName: "Harbor Coffee", CustomerEmail: "owner@harborcoffee.test", Amount: decimal.NewFromInt(1200), Status: domain.OrderStatusPending, Date: now.AddDate(0, 0, -12)},
		{ID: xid.New("ord"), CustomerName: "Bluefin Legal", CustomerEmail: "ops@bluefin.test", Amount: decimal.NewFromInt(3400), Status: domain.OrderStatusProcessing, Date: now.AddDate(0, 0, -6)},
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}

	expenses := []domain.Expense{
		{ID: xid.New("exp"), Category: domain.ExpenseCategorySoftware, Amount: decimal.NewFromFloat(89.99), Date: now.AddDate(0, 0, -20), Description: "Design suite subscription"},
		{ID: xid.New("exp"), Category: domain.ExpenseCategoryMarketing, Amount: decimal.NewFromInt(250), Date: now.AddDate(0, 0, -9), Description: "Ad campaign"},
	}
	for _, e := range expenses {
		s.expenses[e.ID] = e
	}

	return s
}

func normalizeInvoice(invoice domain.Invoice) domain.Invoice {
	if invoice.Items == nil {
		invoice.Items = []domain.LineItem{}
	} else {
		invoice.Items = slices.Clone(invoice.Items)
	}
	invoice.DueDate = invoice.DueDate.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	return invoice
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(invoice.ClientName) == "" || strings.TrimSpace(invoice.ClientEmail) == "" {
		return nil, store.ErrMissingRequiredField
	}
	// A zero total is legitimate (zero-rate items); only a negative one is not.
	if invoice.TotalAmount.IsNegative() || invoice.DueDate.IsZero() {
		return nil, store.ErrMissingRequiredField
	}

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if _, exists := s.invoices[invoice.ID]; exists {
		return nil, store.ErrInvalidEntity
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusDraft
	}
	invoice.Version = 1
	invoice = normalizeInvoice(invoice)

	s.invoices[invoice.ID] = invoice
	created := normalizeInvoice(invoice)
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := normalizeInvoice(invoice)
	return &found, nil
}

func (s *Store) UpdateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.invoices[invoice.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Version != stored.Version {
		return nil, store.ErrVersionConflict
	}
	if stored.Status != domain.InvoiceStatusDraft {
		if invoice.Number != stored.Number || !invoice.CreatedAt.Equal(stored.CreatedAt) {
			return nil, store.ErrImmutableField
		}
	}

	invoice.Version = stored.Version + 1
	invoice = normalizeInvoice(invoice)
	s.invoices[invoice.ID] = invoice
	updated := normalizeInvoice(invoice)
	return &updated, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.invoices, id)
	return nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		invoices = append(invoices, normalizeInvoice(invoice))
	}
	return invoices, nil
}

func (s *Store) ListInvoicesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0)
	for _, invoice := range s.invoices {
		if invoice.CreatedAt.Before(from) || !invoice.CreatedAt.Before(to) {
			continue
		}
		invoices = append(invoices, normalizeInvoice(invoice))
	}
	return invoices, nil
}

func (s *Store) FindInvoiceBySourceOrder(_ context.Context, orderID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, invoice := range s.invoices {
		if invoice.SourceOrderID == orderID {
			found := normalizeInvoice(invoice)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(order.CustomerName) == "" || !order.Amount.IsPositive() {
		return nil, store.ErrInvalidEntity
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrInvalidEntity
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	s.orders[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := order
	return &found, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	order.Status = status
	s.orders[id] = order
	updated := order
	return &updated, nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) ListOrdersBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Date.Before(from) || !order.Date.Before(to) {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidEntity
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if _, exists := s.expenses[expense.ID]; exists {
		return nil, store.ErrInvalidEntity
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}

	s.expenses[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expenses[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := expense
	return &found, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[expense.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.expenses[expense.ID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

func (s *Store) ListExpensesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0)
	for _, expense := range s.expenses {
		if expense.Date.Before(from) || !expense.Date.Before(to) {
			continue
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

func (s *Store) IncrementCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidEntity
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidEntity
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
