// Package report turns raw order, expense and invoice records into the
// windowed aggregates the dashboards and exports consume. Reports are
// recomputed on every call and never cached.
package report

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/domain"
	"agencydesk/backend/internal/money"
	"agencydesk/backend/internal/store"
)

// DefaultTopN is the activity feed length used when the caller passes 0.
const DefaultTopN = 5

type Aggregator struct {
	repo store.Repository
}

func NewAggregator(repo store.Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Aggregate fetches every order, expense and invoice inside the window and
// folds them into a Report.
//
// Revenue counts paid invoices only. Completed orders whose bridged invoice
// exists are therefore represented once, through the invoice; completed
// orders with no invoice at all surface as PipelineRevenue so they are
// visible without being double counted.
func (a *Aggregator) Aggregate(ctx context.Context, window domain.ReportWindow, topN int) (domain.Report, error) {
	if topN < 1 {
		topN = DefaultTopN
	}

	orders, err := a.repo.ListOrdersBetween(ctx, window.From, window.To)
	if err != nil {
		return domain.Report{}, fmt.Errorf("aggregate orders: %w", err)
	}
	expenses, err := a.repo.ListExpensesBetween(ctx, window.From, window.To)
	if err != nil {
		return domain.Report{}, fmt.Errorf("aggregate expenses: %w", err)
	}
	invoices, err := a.repo.ListInvoicesBetween(ctx, window.From, window.To)
	if err != nil {
		return domain.Report{}, fmt.Errorf("aggregate invoices: %w", err)
	}

	rep := domain.Report{
		Window:          window,
		TotalRevenue:    decimal.Zero,
		PipelineRevenue: decimal.Zero,
		TotalExpenses:   decimal.Zero,
		TotalOrders:     len(orders),
		Monthly:         denseMonths(window),
		Categories:      emptyCategories(),
		TopActivity:     []domain.ActivityEntry{},
	}
	monthIndex := make(map[string]int, len(rep.Monthly))
	for i, bucket := range rep.Monthly {
		monthIndex[bucket.Month] = i
	}

	bridgedOrders := make(map[string]struct{}, len(invoices))
	for _, invoice := range invoices {
		if invoice.SourceOrderID != "" {
			bridgedOrders[invoice.SourceOrderID] = struct{}{}
		}
	}

	for _, invoice := range invoices {
		if invoice.Status != domain.InvoiceStatusPaid {
			continue
		}
		rep.TotalRevenue = rep.TotalRevenue.Add(invoice.TotalAmount)
		if i, ok := monthIndex[monthKey(invoice.CreatedAt)]; ok {
			rep.Monthly[i].Revenue = rep.Monthly[i].Revenue.Add(invoice.TotalAmount)
		}
	}

	for _, order := range orders {
		if order.Status != domain.OrderStatusCompleted {
			continue
		}
		if _, bridged := bridgedOrders[order.ID]; bridged {
			continue
		}
		rep.PipelineRevenue = rep.PipelineRevenue.Add(order.Amount)
	}

	categoryIndex := make(map[string]int, len(rep.Categories))
	for i, cat := range rep.Categories {
		categoryIndex[cat.Category] = i
	}
	for _, expense := range expenses {
		rep.TotalExpenses = rep.TotalExpenses.Add(expense.Amount)
		if i, ok := monthIndex[monthKey(expense.Date)]; ok {
			rep.Monthly[i].Expenses = rep.Monthly[i].Expenses.Add(expense.Amount)
		}
		i, known := categoryIndex[expense.Category]
		if !known {
			i = categoryIndex[domain.ExpenseCategoryOther]
		}
		rep.Categories[i].Amount = rep.Categories[i].Amount.Add(expense.Amount)
	}

	rep.TotalRevenue = rep.TotalRevenue.Round(money.Places)
	rep.PipelineRevenue = rep.PipelineRevenue.Round(money.Places)
	rep.TotalExpenses = rep.TotalExpenses.Round(money.Places)
	rep.NetProfit = rep.TotalRevenue.Sub(rep.TotalExpenses).Round(money.Places)
	for i := range rep.Monthly {
		rep.Monthly[i].Revenue = rep.Monthly[i].Revenue.Round(money.Places)
		rep.Monthly[i].Expenses = rep.Monthly[i].Expenses.Round(money.Places)
	}
	for i := range rep.Categories {
		rep.Categories[i].Amount = rep.Categories[i].Amount.Round(money.Places)
	}

	rep.TopActivity = topActivity(orders, expenses, invoices, topN)
	return rep, nil
}

// LedgerRows flattens the window's records into the export row shape, newest
// first.
func (a *Aggregator) LedgerRows(ctx context.Context, window domain.ReportWindow) ([]domain.ActivityEntry, error) {
	orders, err := a.repo.ListOrdersBetween(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("ledger orders: %w", err)
	}
	expenses, err := a.repo.ListExpensesBetween(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("ledger expenses: %w", err)
	}
	invoices, err := a.repo.ListInvoicesBetween(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("ledger invoices: %w", err)
	}
	return topActivity(orders, expenses, invoices, 0), nil
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// denseMonths builds one zero bucket per calendar month touched by the
// window, so chart consumers always receive equal-length label and value
// arrays.
func denseMonths(window domain.ReportWindow) []domain.MonthlyBucket {
	buckets := []domain.MonthlyBucket{}
	if !window.From.Before(window.To) {
		return buckets
	}

	cursor := time.Date(window.From.Year(), window.From.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := window.To.UTC().Add(-time.Nanosecond)
	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		buckets = append(buckets, domain.MonthlyBucket{
			Month:    cursor.Format("2006-01"),
			Revenue:  decimal.Zero,
			Expenses: decimal.Zero,
		})
		cursor = cursor.AddDate(0, 1, 0)
	}
	return buckets
}

func emptyCategories() []domain.CategoryTotal {
	categories := make([]domain.CategoryTotal, 0, len(domain.ExpenseCategories))
	for _, name := range domain.ExpenseCategories {
		categories = append(categories, domain.CategoryTotal{Category: name, Amount: decimal.Zero})
	}
	return categories
}

// topActivity merges the three entity kinds, newest first. A limit of 0
// returns everything.
func topActivity(orders []domain.Order, expenses []domain.Expense, invoices []domain.Invoice, limit int) []domain.ActivityEntry {
	entries := make([]domain.ActivityEntry, 0, len(orders)+len(expenses)+len(invoices))
	for _, order := range orders {
		entries = append(entries, domain.ActivityEntry{
			Type:        "order",
			EntityID:    order.ID,
			Date:        order.Date,
			Category:    order.Status,
			Description: fmt.Sprintf("Order from %s", order.CustomerName),
			Amount:      order.Amount.Round(money.Places),
		})
	}
	for _, expense := range expenses {
		category := expense.Category
		if !slices.Contains(domain.ExpenseCategories, category) {
			category = domain.ExpenseCategoryOther
		}
		entries = append(entries, domain.ActivityEntry{
			Type:        "expense",
			EntityID:    expense.ID,
			Date:        expense.Date,
			Category:    category,
			Description: expense.Description,
			Amount:      expense.Amount.Round(money.Places),
		})
	}
	for _, invoice := range invoices {
		entries = append(entries, domain.ActivityEntry{
			Type:        "invoice",
			EntityID:    invoice.ID,
			Date:        invoice.CreatedAt,
			Category:    invoice.Status,
			Description: fmt.Sprintf("Invoice %s for %s", invoice.Number, invoice.ClientName),
			Amount:      invoice.TotalAmount.Round(money.Places),
		})
	}

	slices.SortFunc(entries, func(a, b domain.ActivityEntry) int {
		return b.Date.Compare(a.Date)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
