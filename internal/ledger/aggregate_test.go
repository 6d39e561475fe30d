package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinedRow(amount int64, holder, region, counterparty string) JoinedRow {
	return JoinedRow{
		LedgerRow:    LedgerRow{Amount: decimal.NewFromInt(amount), Counterparty: counterparty},
		BudgetHolder: holder,
		Region:       region,
	}
}

func TestSplitRevenueCosts(t *testing.T) {
	rows := []JoinedRow{
		joinedRow(100, "", "", "ACME Ltd"),
		joinedRow(0, "A", "", ""),
		joinedRow(-30, "A", "R1", ""),
		joinedRow(50, "", "", ""),
	}

	p := SplitRevenueCosts(rows)
	require.Len(t, p.Revenue, 2)
	require.Len(t, p.Costs, 2, "zero amounts are costs")
	assertDecimal(t, "100", p.Revenue[0].Amount)
	assertDecimal(t, "50", p.Revenue[1].Amount)
	assert.Len(t, p.Revenue, len(rows)-len(p.Costs))
}

func TestSummarizeCosts(t *testing.T) {
	costs := []JoinedRow{
		joinedRow(-30, "A", "R1", ""),
		joinedRow(-20, "B", "R1", ""),
		joinedRow(-7, "", "R2", ""),
		joinedRow(-3, "A", "", ""),
	}

	s := SummarizeCosts(costs)
	assertDecimal(t, "60", s.TotalCosts)
	assertDecimal(t, "33", s.CostsByHolder["A"])
	assertDecimal(t, "20", s.CostsByHolder["B"])
	assertDecimal(t, "50", s.CostsByRegion["R1"])
	assertDecimal(t, "7", s.CostsByRegion["R2"])
	assert.NotContains(t, s.CostsByHolder, "")
	assert.NotContains(t, s.CostsByRegion, "")
}

func TestParseRevenueClass(t *testing.T) {
	assert.Equal(t, Wholesale, ParseRevenueClass("wholesale"))
	assert.Equal(t, Retail, ParseRevenueClass("retail"))
	assert.Equal(t, Retail, ParseRevenueClass("Wholesale-ish"))
	assert.Equal(t, Retail, ParseRevenueClass(""))
}

func TestAggregate_Scenario(t *testing.T) {
	rows := []JoinedRow{
		joinedRow(100, "", "", "ACME Ltd"),
		joinedRow(50, "", "", "John Smith"),
		joinedRow(-30, "A", "R1", ""),
		joinedRow(-20, "B", "R1", ""),
	}
	p := SplitRevenueCosts(rows)

	got := Aggregate(p, []RevenueClass{Wholesale, Retail})

	assertDecimal(t, "50", got.TotalCosts)
	assertDecimal(t, "50", got.RetailRevenue)
	assertDecimal(t, "100", got.WholesaleRevenue)
	assert.Len(t, got.CostsByHolder, 2)
	assertDecimal(t, "30", got.CostsByHolder["A"])
	assertDecimal(t, "20", got.CostsByHolder["B"])
	assert.Len(t, got.CostsByRegion, 1)
	assertDecimal(t, "50", got.CostsByRegion["R1"])

	holderSum := decimal.Zero
	for _, v := range got.CostsByHolder {
		holderSum = holderSum.Add(v)
	}
	assert.True(t, holderSum.Equal(got.TotalCosts), "every cost row has a holder here")

	revenue := decimal.Zero
	for _, r := range p.Revenue {
		revenue = revenue.Add(r.Amount)
	}
	assert.True(t, got.RetailRevenue.Add(got.WholesaleRevenue).Equal(revenue))
}

func TestAggregate_MissingClassesDefaultRetail(t *testing.T) {
	p := Partition{Revenue: []JoinedRow{joinedRow(10, "", "", "x"), joinedRow(5, "", "", "y")}}

	got := Aggregate(p, []RevenueClass{Wholesale})
	assertDecimal(t, "10", got.WholesaleRevenue)
	assertDecimal(t, "5", got.RetailRevenue)
	assertDecimal(t, "0", got.TotalCosts)
	assert.Empty(t, got.CostsByHolder)
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(Partition{}, nil)
	assert.True(t, got.TotalCosts.IsZero())
	assert.True(t, got.RetailRevenue.IsZero())
	assert.True(t, got.WholesaleRevenue.IsZero())
	assert.NotNil(t, got.CostsByHolder)
	assert.NotNil(t, got.CostsByRegion)
}
