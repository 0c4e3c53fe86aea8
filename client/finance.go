package client

import (
	"context"
	"net/url"
	"strconv"
)

// MonthQuery scopes collection endpoints to a billing month.
type MonthQuery struct {
	Month int
	Year  int
}

func (q MonthQuery) values() url.Values {
	v := url.Values{}
	if q.Month > 0 {
		v.Set("month", strconv.Itoa(q.Month))
	}
	if q.Year > 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	return v
}

// Income is a monthly income entry.
type Income struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
	Month  int     `json:"month"`
	Year   int     `json:"year"`
	Note   string  `json:"note,omitempty"`
}

// IncomeInput creates or updates an income entry.
type IncomeInput struct {
	Amount float64 `json:"amount"`
	Month  int     `json:"month"`
	Year   int     `json:"year"`
	Note   string  `json:"note,omitempty"`
}

type IncomesService struct {
	client *Client
}

func (s *IncomesService) List(ctx context.Context, q MonthQuery) ([]Income, error) {
	return get[[]Income](ctx, s.client, "/incomes", q.values())
}

func (s *IncomesService) Create(ctx context.Context, in IncomeInput) (Income, error) {
	return post[Income](ctx, s.client, "/incomes", in)
}

func (s *IncomesService) Update(ctx context.Context, id string, in IncomeInput) (Income, error) {
	return put[Income](ctx, s.client, "/incomes/"+url.PathEscape(id), in)
}

func (s *IncomesService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.client, "/incomes/"+url.PathEscape(id))
}

// TransactionType discriminates spending from saving entries.
type TransactionType string

const (
	TransactionExpense TransactionType = "expense"
	TransactionSaving  TransactionType = "saving"
)

// Transaction is a dated expense or saving entry against a category.
type Transaction struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"categoryId"`
	Amount     float64         `json:"amount"`
	Type       TransactionType `json:"type"`
	Date       string          `json:"date"`
	Note       string          `json:"note,omitempty"`
}

// TransactionInput creates or updates a transaction.
type TransactionInput struct {
	CategoryID string          `json:"categoryId"`
	Amount     float64         `json:"amount"`
	Type       TransactionType `json:"type"`
	Date       string          `json:"date"`
	Note       string          `json:"note,omitempty"`
}

// TransactionQuery filters and paginates the transaction list.
type TransactionQuery struct {
	Month  int
	Year   int
	Type   TransactionType
	Limit  int
	Offset int
}

func (q TransactionQuery) values() url.Values {
	v := MonthQuery{Month: q.Month, Year: q.Year}.values()
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

type TransactionsService struct {
	client *Client
}

// List returns the matching page plus the total count across all pages.
func (s *TransactionsService) List(ctx context.Context, q TransactionQuery) ([]Transaction, int, error) {
	env, err := s.client.do(ctx, "GET", "/transactions", q.values(), nil)
	if err != nil {
		return nil, 0, err
	}

	items, err := decode[[]Transaction](env)
	if err != nil {
		return nil, 0, err
	}

	total := len(items)
	if env.Total != nil {
		total = *env.Total
	}
	return items, total, nil
}

func (s *TransactionsService) Create(ctx context.Context, in TransactionInput) (Transaction, error) {
	return post[Transaction](ctx, s.client, "/transactions", in)
}

func (s *TransactionsService) Update(ctx context.Context, id string, in TransactionInput) (Transaction, error) {
	return put[Transaction](ctx, s.client, "/transactions/"+url.PathEscape(id), in)
}

func (s *TransactionsService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.client, "/transactions/"+url.PathEscape(id))
}

// Category labels transactions and budgets.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type CategoriesService struct {
	client *Client
}

// List returns categories, optionally filtered by type.
func (s *CategoriesService) List(ctx context.Context, categoryType string) ([]Category, error) {
	var q url.Values
	if categoryType != "" {
		q = url.Values{"type": []string{categoryType}}
	}
	return get[[]Category](ctx, s.client, "/categories", q)
}

func (s *CategoriesService) Create(ctx context.Context, name, categoryType string) (Category, error) {
	return post[Category](ctx, s.client, "/categories", map[string]string{
		"name": name,
		"type": categoryType,
	})
}

func (s *CategoriesService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.client, "/categories/"+url.PathEscape(id))
}

// Budget caps spending for a category in a given month.
type Budget struct {
	ID          string  `json:"id"`
	CategoryID  string  `json:"categoryId"`
	LimitAmount float64 `json:"limitAmount"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
}

// BudgetInput creates or updates a budget.
type BudgetInput struct {
	CategoryID  string  `json:"categoryId"`
	LimitAmount float64 `json:"limitAmount"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
}

type BudgetsService struct {
	client *Client
}

func (s *BudgetsService) List(ctx context.Context, q MonthQuery) ([]Budget, error) {
	return get[[]Budget](ctx, s.client, "/budgets", q.values())
}

func (s *BudgetsService) Create(ctx context.Context, in BudgetInput) (Budget, error) {
	return post[Budget](ctx, s.client, "/budgets", in)
}

func (s *BudgetsService) Update(ctx context.Context, id string, in BudgetInput) (Budget, error) {
	return put[Budget](ctx, s.client, "/budgets/"+url.PathEscape(id), in)
}

func (s *BudgetsService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.client, "/budgets/"+url.PathEscape(id))
}
