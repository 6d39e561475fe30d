package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/shopspring/decimal"
)

// Classifier labels revenue rows. The result is index-aligned with rows and
// never fails; unavailable answers default to retail.
type Classifier interface {
	ClassifyAll(ctx context.Context, rows []ledger.JoinedRow) []ledger.RevenueClass
}

// AnomalyDetector describes unusual per-holder costs. It never fails; an
// unavailable service yields an empty list.
type AnomalyDetector interface {
	Detect(ctx context.Context, costsByHolder map[string]decimal.Decimal) []string
}
