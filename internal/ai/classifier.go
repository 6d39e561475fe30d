package ai

import (
	"context"
	"strings"

	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Default keyword hints sent with each classification request.
const (
	DefaultRetailKeywords    = "individual,person"
	DefaultWholesaleKeywords = "company,ltd,llc"
)

// DefaultConcurrency bounds in-flight classification calls per run.
const DefaultConcurrency = 8

// RevenueClassifier labels revenue rows as retail or wholesale.
type RevenueClassifier struct {
	runner            FlowRunner
	retailKeywords    string
	wholesaleKeywords string
	concurrency       int
}

// ClassifierOption customizes a RevenueClassifier.
type ClassifierOption func(*RevenueClassifier)

// WithKeywords overrides the keyword hints. Empty values keep the defaults.
func WithKeywords(retail, wholesale string) ClassifierOption {
	return func(c *RevenueClassifier) {
		if retail != "" {
			c.retailKeywords = retail
		}
		if wholesale != "" {
			c.wholesaleKeywords = wholesale
		}
	}
}

// WithConcurrency sets the number of concurrent calls. Values below 1 are ignored.
func WithConcurrency(n int) ClassifierOption {
	return func(c *RevenueClassifier) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewRevenueClassifier creates a classifier over runner.
func NewRevenueClassifier(runner FlowRunner, opts ...ClassifierOption) *RevenueClassifier {
	c := &RevenueClassifier{
		runner:            runner,
		retailKeywords:    DefaultRetailKeywords,
		wholesaleKeywords: DefaultWholesaleKeywords,
		concurrency:       DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify labels one revenue entry. Any failure yields retail.
func (c *RevenueClassifier) Classify(ctx context.Context, entry string) ledger.RevenueClass {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ledger.Retail
	}

	var out ClassifyRevenueOutput
	err := c.runner.RunFlow(ctx, FlowClassifyRevenue, ClassifyRevenueInput{
		RevenueEntry:      entry,
		KeywordsRetail:    c.retailKeywords,
		KeywordsWholesale: c.wholesaleKeywords,
	}, &out)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("flow", FlowClassifyRevenue).Msg("Revenue classification degraded to retail")
		return ledger.Retail
	}

	return ledger.ParseRevenueClass(strings.ToLower(strings.TrimSpace(out.Classification)))
}

// ClassifyAll labels every revenue row using its counterparty. The result is
// index-aligned with rows. Calls run concurrently up to the configured limit
// and a failed call never affects the others.
func (c *RevenueClassifier) ClassifyAll(ctx context.Context, rows []ledger.JoinedRow) []ledger.RevenueClass {
	classes := make([]ledger.RevenueClass, len(rows))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, row := range rows {
		if strings.TrimSpace(row.Counterparty) == "" {
			classes[i] = ledger.Retail
			continue
		}
		g.Go(func() error {
			classes[i] = c.Classify(ctx, row.Counterparty)
			return nil
		})
	}
	_ = g.Wait()

	return classes
}
