package client

import "context"

// MonthlySummary aggregates one month of activity.
type MonthlySummary struct {
	TotalIncome         float64             `json:"totalIncome"`
	TotalExpenses       float64             `json:"totalExpenses"`
	TotalSavings        float64             `json:"totalSavings"`
	RemainingBalance    float64             `json:"remainingBalance"`
	PercentageBreakdown PercentageBreakdown `json:"percentageBreakdown"`
	ExpenseByCategory   []CategoryExpense   `json:"expenseByCategory,omitempty"`
}

type PercentageBreakdown struct {
	Expenses  float64 `json:"expenses"`
	Savings   float64 `json:"savings"`
	Remaining float64 `json:"remaining"`
}

type CategoryExpense struct {
	CategoryID   string  `json:"categoryId"`
	CategoryName string  `json:"categoryName"`
	Total        float64 `json:"total"`
}

// HealthScoreResult grades the month's finances with suggestions.
type HealthScoreResult struct {
	Score       int                `json:"score"`
	Status      string             `json:"status"`
	Suggestions []string           `json:"suggestions"`
	Metrics     HealthScoreMetrics `json:"metrics"`
}

type HealthScoreMetrics struct {
	SavingsRate         float64 `json:"savingsRate"`
	EmergencyFundMonths float64 `json:"emergencyFundMonths"`
	ExpenseRatio        float64 `json:"expenseRatio"`
}

// TrendPoint is one month in the income/expense/saving trend series.
type TrendPoint struct {
	Month    int     `json:"month"`
	Year     int     `json:"year"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Savings  float64 `json:"savings"`
}

// Allocation is the target percentage split of income.
type Allocation struct {
	Fixed     float64 `json:"fixed"`
	Variable  float64 `json:"variable"`
	Saving    float64 `json:"saving"`
	Emergency float64 `json:"emergency"`
}

// AllocationUpdate carries partial allocation changes; nil fields keep
// their current value.
type AllocationUpdate struct {
	FixedPercent     *float64 `json:"fixedPercent,omitempty"`
	VariablePercent  *float64 `json:"variablePercent,omitempty"`
	SavingPercent    *float64 `json:"savingPercent,omitempty"`
	EmergencyPercent *float64 `json:"emergencyPercent,omitempty"`
}

type ReportsService struct {
	client *Client
}

func (s *ReportsService) Monthly(ctx context.Context, q MonthQuery) (MonthlySummary, error) {
	return get[MonthlySummary](ctx, s.client, "/reports/monthly", q.values())
}

func (s *ReportsService) HealthScore(ctx context.Context, q MonthQuery) (HealthScoreResult, error) {
	return get[HealthScoreResult](ctx, s.client, "/reports/health-score", q.values())
}

func (s *ReportsService) Trend(ctx context.Context, q MonthQuery) ([]TrendPoint, error) {
	return get[[]TrendPoint](ctx, s.client, "/reports/trend", q.values())
}

func (s *ReportsService) GetAllocation(ctx context.Context) (Allocation, error) {
	return get[Allocation](ctx, s.client, "/reports/allocation", nil)
}

func (s *ReportsService) UpdateAllocation(ctx context.Context, in AllocationUpdate) (Allocation, error) {
	return put[Allocation](ctx, s.client, "/reports/allocation", in)
}
