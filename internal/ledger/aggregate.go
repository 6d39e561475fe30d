package ledger

import (
	"github.com/shopspring/decimal"
)

// RevenueClass is the customer segment of a revenue row.
type RevenueClass string

const (
	Retail    RevenueClass = "retail"
	Wholesale RevenueClass = "wholesale"
)

// ParseRevenueClass maps a classifier answer to a RevenueClass. Anything
// other than "wholesale" is retail.
func ParseRevenueClass(s string) RevenueClass {
	if RevenueClass(s) == Wholesale {
		return Wholesale
	}
	return Retail
}

// Partition splits joined rows by sign of amount: strictly positive rows
// are revenue, zero or negative rows are costs.
type Partition struct {
	Revenue []JoinedRow
	Costs   []JoinedRow
}

// SplitRevenueCosts partitions rows, preserving their order.
func SplitRevenueCosts(rows []JoinedRow) Partition {
	var p Partition
	for _, r := range rows {
		if r.Amount.IsPositive() {
			p.Revenue = append(p.Revenue, r)
		} else {
			p.Costs = append(p.Costs, r)
		}
	}
	return p
}

// CostSummary holds absolute cost sums overall and per dimension.
type CostSummary struct {
	TotalCosts    decimal.Decimal
	CostsByHolder map[string]decimal.Decimal
	CostsByRegion map[string]decimal.Decimal
}

// SummarizeCosts sums absolute amounts of cost rows. Rows without a holder
// or region count toward the total but not toward that grouping.
func SummarizeCosts(costs []JoinedRow) CostSummary {
	s := CostSummary{
		TotalCosts:    decimal.Zero,
		CostsByHolder: make(map[string]decimal.Decimal),
		CostsByRegion: make(map[string]decimal.Decimal),
	}
	for _, r := range costs {
		abs := r.Amount.Abs()
		s.TotalCosts = s.TotalCosts.Add(abs)
		if r.BudgetHolder != "" {
			s.CostsByHolder[r.BudgetHolder] = s.CostsByHolder[r.BudgetHolder].Add(abs)
		}
		if r.Region != "" {
			s.CostsByRegion[r.Region] = s.CostsByRegion[r.Region].Add(abs)
		}
	}
	return s
}

// AggregateResult is the verified metric set of one session.
type AggregateResult struct {
	TotalCosts       decimal.Decimal            `json:"totalCosts"`
	CostsByHolder    map[string]decimal.Decimal `json:"costsByHolder"`
	CostsByRegion    map[string]decimal.Decimal `json:"costsByRegion"`
	RetailRevenue    decimal.Decimal            `json:"retailRevenue"`
	WholesaleRevenue decimal.Decimal            `json:"wholesaleRevenue"`
}

// SumRevenue adds each revenue row to the bucket of its class. classes must
// be index-aligned with revenue; a missing entry counts as retail.
func SumRevenue(revenue []JoinedRow, classes []RevenueClass) (retail, wholesale decimal.Decimal) {
	retail, wholesale = decimal.Zero, decimal.Zero
	for i, r := range revenue {
		if i < len(classes) && classes[i] == Wholesale {
			wholesale = wholesale.Add(r.Amount)
			continue
		}
		retail = retail.Add(r.Amount)
	}
	return retail, wholesale
}

// Aggregate combines the cost summary with classified revenue.
func Aggregate(p Partition, classes []RevenueClass) AggregateResult {
	costs := SummarizeCosts(p.Costs)
	retail, wholesale := SumRevenue(p.Revenue, classes)
	return AggregateResult{
		TotalCosts:       costs.TotalCosts,
		CostsByHolder:    costs.CostsByHolder,
		CostsByRegion:    costs.CostsByRegion,
		RetailRevenue:    retail,
		WholesaleRevenue: wholesale,
	}
}
