package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/store"
	"agencydesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// wrapStoreErr maps transport-level failures onto store.ErrUnavailable so
// callers can tell a dead store from a bad request.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func marshalItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	return json.Marshal(items)
}

// unmarshalItems tolerates NULL and missing items columns from rows that
// predate the line-item feature.
func unmarshalItems(raw []byte) ([]domain.LineItem, error) {
	if len(raw) == 0 {
		return []domain.LineItem{}, nil
	}
	var items []domain.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode invoice items: %w", err)
	}
	if items == nil {
		items = []domain.LineItem{}
	}
	return items, nil
}

const invoiceColumns = `id, invoice_number, client_name, client_email, client_phone, client_address,
	items, subtotal, tax_amount, total_amount, status, due_date, created_at,
	payment_terms, notes, source_order_id, version`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var (
		invoice  domain.Invoice
		rawItems []byte
	)
	err := row.Scan(
		&invoice.ID, &invoice.Number, &invoice.ClientName, &invoice.ClientEmail,
		&invoice.ClientPhone, &invoice.ClientAddress, &rawItems,
		&invoice.Subtotal, &invoice.TaxAmount, &invoice.TotalAmount,
		&invoice.Status, &invoice.DueDate, &invoice.CreatedAt,
		&invoice.PaymentTerms, &invoice.Notes, &invoice.SourceOrderID, &invoice.Version,
	)
	if err != nil {
		return domain.Invoice{}, err
	}
	items, err := unmarshalItems(rawItems)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.Items = items
	invoice.DueDate = invoice.DueDate.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	return invoice, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ClientName == "" || invoice.ClientEmail == "" {
		return nil, store.ErrMissingRequiredField
	}
	// A zero total is legitimate (zero-rate items); only a negative one is not.
	if invoice.TotalAmount.IsNegative() || invoice.DueDate.IsZero() {
		return nil, store.ErrMissingRequiredField
	}

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusDraft
	}
	invoice.Version = 1

	rawItems, err := marshalItems(invoice.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, client_name, client_email, client_phone, client_address,
			items, subtotal, tax_amount, total_amount, status, due_date, created_at,
			payment_terms, notes, source_order_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, invoice.ID, invoice.Number, invoice.ClientName, invoice.ClientEmail,
		invoice.ClientPhone, invoice.ClientAddress, rawItems,
		invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount,
		invoice.Status, invoice.DueDate, invoice.CreatedAt,
		invoice.PaymentTerms, invoice.Notes, invoice.SourceOrderID, invoice.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidEntity
		}
		return nil, wrapStoreErr(err)
	}

	if invoice.Items == nil {
		invoice.Items = []domain.LineItem{}
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &invoice, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	stored, err := s.GetInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if invoice.Version != stored.Version {
		return nil, store.ErrVersionConflict
	}
	if stored.Status != domain.InvoiceStatusDraft {
		if invoice.Number != stored.Number || !invoice.CreatedAt.Equal(stored.CreatedAt) {
			return nil, store.ErrImmutableField
		}
	}

	rawItems, err := marshalItems(invoice.Items)
	if err != nil {
		return nil, err
	}

	// The version predicate makes the write conditional: a concurrent editor
	// who already bumped the version turns this into a no-op.
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET invoice_number = $2, client_name = $3, client_email = $4, client_phone = $5,
			client_address = $6, items = $7, subtotal = $8, tax_amount = $9,
			total_amount = $10, status = $11, due_date = $12, created_at = $13,
			payment_terms = $14, notes = $15, source_order_id = $16, version = version + 1
		WHERE id = $1 AND version = $17
	`, invoice.ID, invoice.Number, invoice.ClientName, invoice.ClientEmail,
		invoice.ClientPhone, invoice.ClientAddress, rawItems,
		invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount,
		invoice.Status, invoice.DueDate, invoice.CreatedAt,
		invoice.PaymentTerms, invoice.Notes, invoice.SourceOrderID, invoice.Version)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrVersionConflict
	}

	invoice.Version++
	if invoice.Items == nil {
		invoice.Items = []domain.LineItem{}
	}
	updated := invoice
	return &updated, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices`)
}

func (s *Store) ListInvoicesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
	`, from, to)
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return invoices, nil
}

func (s *Store) FindInvoiceBySourceOrder(ctx context.Context, orderID string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE source_order_id = $1
		LIMIT 1
	`, orderID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &invoice, nil
}

func marshalProduct(product *domain.ProductDetails) ([]byte, error) {
	if product == nil {
		return nil, nil
	}
	return json.Marshal(product)
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order      domain.Order
		rawProduct []byte
	)
	err := row.Scan(&order.ID, &order.CustomerName, &order.CustomerEmail,
		&order.Amount, &order.Status, &order.Date, &rawProduct)
	if err != nil {
		return domain.Order{}, err
	}
	if len(rawProduct) > 0 {
		var product domain.ProductDetails
		if err := json.Unmarshal(rawProduct, &product); err != nil {
			return domain.Order{}, fmt.Errorf("decode product details: %w", err)
		}
		order.Product = &product
	}
	order.Date = order.Date.UTC()
	return order, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.CustomerName == "" || !order.Amount.IsPositive() {
		return nil, store.ErrInvalidEntity
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	rawProduct, err := marshalProduct(order.Product)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, amount, status, order_date, product_details)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, order.ID, order.CustomerName, order.CustomerEmail, order.Amount, order.Status, order.Date, rawProduct)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidEntity
		}
		return nil, wrapStoreErr(err)
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_email, amount, status, order_date, product_details
		FROM orders
		WHERE id = $1
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, customer_name, customer_email, amount, status, order_date, product_details
		FROM orders
	`)
}

func (s *Store) ListOrdersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, customer_name, customer_email, amount, status, order_date, product_details
		FROM orders
		WHERE order_date >= $1 AND order_date < $2
	`, from, to)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return orders, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidEntity
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, category, amount, expense_date, description)
		VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, expense.Category, expense.Amount, expense.Date, expense.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidEntity
		}
		return nil, wrapStoreErr(err)
	}

	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var expense domain.Expense
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, amount, expense_date, description
		FROM expenses
		WHERE id = $1
	`, id).Scan(&expense.ID, &expense.Category, &expense.Amount, &expense.Date, &expense.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapStoreErr(err)
	}
	expense.Date = expense.Date.UTC()
	return &expense, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET category = $2, amount = $3, expense_date = $4, description = $5
		WHERE id = $1
	`, expense.ID, expense.Category, expense.Amount, expense.Date, expense.Description)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT id, category, amount, expense_date, description FROM expenses
	`)
}

func (s *Store) ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT id, category, amount, expense_date, description
		FROM expenses
		WHERE expense_date >= $1 AND expense_date < $2
	`, from, to)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.Category, &expense.Amount, &expense.Date, &expense.Description); err != nil {
			return nil, err
		}
		expense.Date = expense.Date.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return expenses, nil
}

// IncrementCounter is the atomic increment document behind invoice numbering.
func (s *Store) IncrementCounter(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, value)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, key).Scan(&value)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return value, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return wrapStoreErr(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidEntity
		}
		return wrapStoreErr(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users
	`)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
