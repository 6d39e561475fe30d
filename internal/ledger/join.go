package ledger

// Mapping is a key to attribute lookup built from a mapping table.
// When a key appears more than once, the last non-empty value wins.
type Mapping struct {
	Name        string
	KeyColumn   string
	ValueColumn string
	values      map[string]string
}

// NewMapping builds a Mapping from t. Rows with an empty key or value are
// skipped.
func NewMapping(t *Table, keyColumn, valueColumn string) (*Mapping, error) {
	for _, col := range []string{keyColumn, valueColumn} {
		if !t.HasColumn(col) {
			return nil, &MissingColumnError{Table: t.Name, Column: col}
		}
	}

	m := &Mapping{
		Name:        t.Name,
		KeyColumn:   keyColumn,
		ValueColumn: valueColumn,
		values:      make(map[string]string, len(t.Rows)),
	}
	for _, r := range t.Rows {
		key, val := r.Get(keyColumn), r.Get(valueColumn)
		if key == "" || val == "" {
			continue
		}
		m.values[key] = val
	}
	return m, nil
}

// MappingFromPairs builds a Mapping from literal key/value pairs.
func MappingFromPairs(name string, pairs map[string]string) *Mapping {
	m := &Mapping{Name: name, values: make(map[string]string, len(pairs))}
	for k, v := range pairs {
		if k != "" && v != "" {
			m.values[k] = v
		}
	}
	return m
}

// Lookup returns the attribute for key. A nil Mapping matches nothing.
func (m *Mapping) Lookup(key string) (string, bool) {
	if m == nil || key == "" {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of distinct keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Mappings groups the three lookups applied to the ledger.
type Mappings struct {
	CostItems      *Mapping // cost_item -> budget_article
	BudgetHolders  *Mapping // budget_article -> budget_holder
	RegionsByUnits *Mapping // structural_unit -> region
}

// JoinedRow is a ledger row with its resolved budget holder and region.
type JoinedRow struct {
	LedgerRow
	BudgetHolder string
	Region       string
}

// Join resolves the mappings against every ledger row with left-outer
// semantics: the output has exactly one row per input row, in order.
//
// budget_article is taken from the cost-item mapping when the row's cost
// item matches; otherwise the ledger's own budget_article cell is kept.
// budget_holder is looked up from the resulting article and region from the
// structural unit. Unmatched lookups leave the attribute empty.
func Join(rows []LedgerRow, m Mappings) []JoinedRow {
	out := make([]JoinedRow, len(rows))
	for i, r := range rows {
		if article, ok := m.CostItems.Lookup(r.CostItem); ok {
			r.BudgetArticle = article
		}
		holder, _ := m.BudgetHolders.Lookup(r.BudgetArticle)
		region, _ := m.RegionsByUnits.Lookup(r.StructuralUnit)

		out[i] = JoinedRow{
			LedgerRow:    r,
			BudgetHolder: holder,
			Region:       region,
		}
	}
	return out
}
