// Package ledger turns uploaded general-ledger and mapping files into
// aggregated cost and revenue figures.
package ledger

import (
	"github.com/shopspring/decimal"
)

// Column names used by the uploaded files.
const (
	ColumnAmount         = "Amount_Reporting_Curr"
	ColumnTransactionID  = "Transaction_ID"
	ColumnCostItem       = "cost_item"
	ColumnBudgetArticle  = "budget_article"
	ColumnBudgetHolder   = "budget_holder"
	ColumnStructuralUnit = "structural_unit"
	ColumnRegion         = "region"
	ColumnCounterparty   = "counterparty"
)

// AmountColumns are normalized on every loaded table.
var AmountColumns = []string{ColumnAmount, "Subc_Debit", "Credit", "Debit"}

// LedgerRow is one general-ledger line with a parsed amount. Empty strings
// stand for missing attributes.
type LedgerRow struct {
	TransactionID  string
	CostItem       string
	BudgetArticle  string
	StructuralUnit string
	Counterparty   string
	Amount         decimal.Decimal
	Extra          map[string]string
}

// BuildLedger converts a loaded ledger table into rows. Rows without a valid
// amount are dropped and counted in the second return value.
func BuildLedger(t *Table) ([]LedgerRow, int, error) {
	if !t.HasColumn(ColumnAmount) {
		return nil, 0, &MissingColumnError{Table: t.Name, Column: ColumnAmount}
	}

	rows := make([]LedgerRow, 0, len(t.Rows))
	dropped := 0
	for _, r := range t.Rows {
		amount, ok := r.Amount(ColumnAmount)
		if !ok {
			dropped++
			continue
		}

		extra := make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			switch k {
			case ColumnTransactionID, ColumnCostItem, ColumnBudgetArticle,
				ColumnStructuralUnit, ColumnCounterparty, ColumnAmount:
				continue
			}
			extra[k] = v
		}

		rows = append(rows, LedgerRow{
			TransactionID:  r.Get(ColumnTransactionID),
			CostItem:       r.Get(ColumnCostItem),
			BudgetArticle:  r.Get(ColumnBudgetArticle),
			StructuralUnit: r.Get(ColumnStructuralUnit),
			Counterparty:   r.Get(ColumnCounterparty),
			Amount:         amount,
			Extra:          extra,
		})
	}

	return rows, dropped, nil
}

// ApplyCorrections overlays rows of a corrections table onto the ledger
// table, matching on Transaction_ID. Non-empty correction cells replace the
// ledger cells, and corrected amount columns are normalized again. The ledger
// table is modified in place; the number of corrected rows is returned.
func ApplyCorrections(ledgerTable, corrections *Table) (int, error) {
	if corrections == nil || len(corrections.Rows) == 0 {
		return 0, nil
	}
	if !corrections.HasColumn(ColumnTransactionID) {
		return 0, &MissingColumnError{Table: corrections.Name, Column: ColumnTransactionID}
	}

	byID := make(map[string]Row, len(corrections.Rows))
	for _, r := range corrections.Rows {
		if id := r.Get(ColumnTransactionID); id != "" {
			byID[id] = r
		}
	}

	corrected := 0
	for i := range ledgerTable.Rows {
		row := &ledgerTable.Rows[i]
		fix, ok := byID[row.Get(ColumnTransactionID)]
		if !ok {
			continue
		}
		for col, val := range fix.Values {
			if col == ColumnTransactionID || val == "" {
				continue
			}
			row.Values[col] = val
			if amount, ok := fix.Amounts[col]; ok {
				row.Amounts[col] = amount
			} else if isAmountColumn(col) {
				d, valid := NormalizeAmount(val)
				row.Amounts[col] = decimal.NullDecimal{Decimal: d, Valid: valid}
			}
		}
		corrected++
	}

	return corrected, nil
}

func isAmountColumn(col string) bool {
	for _, c := range AmountColumns {
		if c == col {
			return true
		}
	}
	return false
}
