// Package bigquery streams session results into a BigQuery table for
// analytics.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultDataset = "finance"
	ResultsTable   = "budget_results"
)

// AmountEntry is one key of a per-dimension cost map.
type AmountEntry struct {
	Key    string   `bigquery:"key"`
	Amount *big.Rat `bigquery:"amount"`
}

// ResultRow is one row of finance.budget_results.
type ResultRow struct {
	ResultID         string        `bigquery:"result_id"`
	UserID           string        `bigquery:"user_id"`
	SessionID        string        `bigquery:"session_id"`
	CreatedTS        time.Time     `bigquery:"created_ts"`
	TotalCosts       *big.Rat      `bigquery:"total_costs"`
	RetailRevenue    *big.Rat      `bigquery:"retail_revenue"`
	WholesaleRevenue *big.Rat      `bigquery:"wholesale_revenue"`
	CostsByHolder    []AmountEntry `bigquery:"costs_by_holder"`
	CostsByRegion    []AmountEntry `bigquery:"costs_by_region"`
	Anomalies        []string      `bigquery:"anomalies"`
	Insights         []string      `bigquery:"insights"`
	Recommendations  []string      `bigquery:"recommendations"`
	RevenueRowCount  int64         `bigquery:"revenue_row_count"`
	CostRowCount     int64         `bigquery:"cost_row_count"`
	DroppedRowCount  int64         `bigquery:"dropped_row_count"`
}

// ResultSink implements session.ResultStore by streaming rows into BigQuery.
type ResultSink struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewResultSink creates a sink with its own BigQuery client. An empty
// dataset selects DefaultDataset.
func NewResultSink(ctx context.Context, projectID, dataset string, opts ...option.ClientOption) (*ResultSink, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewResultSink: creating client: %w", err)
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &ResultSink{client: client, dataset: dataset, table: ResultsTable}, nil
}

// Close closes the BigQuery client connection.
func (s *ResultSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ResultSchema returns the table schema inferred from ResultRow.
func ResultSchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(ResultRow{})
}

// EnsureTable creates the results table, partitioned by day of created_ts,
// when it does not exist yet.
func (s *ResultSink) EnsureTable(ctx context.Context) error {
	log := logger.FromContext(ctx)
	table := s.client.Dataset(s.dataset).Table(s.table)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	schema, err := ResultSchema()
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	if err := table.Create(ctx, &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "created_ts"},
	}); err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", s.dataset, s.table, err)
	}

	log.Info().Str("dataset", s.dataset).Str("table", s.table).Msg("Created results table")
	return nil
}

// CreateResult implements session.ResultStore. The generated result_id is
// also the streaming insert ID, so a retried insert is deduplicated.
func (s *ResultSink) CreateResult(ctx context.Context, result *session.Result) (string, error) {
	row := toResultRow(uuid.NewString(), result)

	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	if err := inserter.Put(ctx, &bigquery.StructSaver{Struct: row, InsertID: row.ResultID}); err != nil {
		return "", fmt.Errorf("CreateResult: inserting row: %w", err)
	}
	return row.ResultID, nil
}

// DeleteResult implements session.ResultStore with a DML delete. BigQuery
// rejects DML on rows still in the streaming buffer, so a delete issued
// right after CreateResult can fail; the caller logs the orphaned ID.
func (s *ResultSink) DeleteResult(ctx context.Context, id string) error {
	q := s.client.Query(fmt.Sprintf("DELETE FROM `%s.%s` WHERE result_id = @result_id", s.dataset, s.table))
	q.Parameters = []bigquery.QueryParameter{{Name: "result_id", Value: id}}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("DeleteResult: starting delete of %s: %w", id, err)
	}
	st, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("DeleteResult: waiting for delete of %s: %w", id, err)
	}
	if err := st.Err(); err != nil {
		return fmt.Errorf("DeleteResult: deleting %s: %w", id, err)
	}
	return nil
}

func toResultRow(id string, r *session.Result) *ResultRow {
	created := r.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	m := r.VerifiedMetrics
	return &ResultRow{
		ResultID:         id,
		UserID:           r.UserID,
		SessionID:        r.SessionID,
		CreatedTS:        created,
		TotalCosts:       m.TotalCosts.Rat(),
		RetailRevenue:    m.RetailRevenue.Rat(),
		WholesaleRevenue: m.WholesaleRevenue.Rat(),
		CostsByHolder:    amountEntries(m.CostsByHolder),
		CostsByRegion:    amountEntries(m.CostsByRegion),
		Anomalies:        r.AIAnalysis.Anomalies,
		Insights:         r.AIAnalysis.Insights,
		Recommendations:  r.AIAnalysis.Recommendations,
		RevenueRowCount:  int64(r.RevenueRowCount),
		CostRowCount:     int64(r.CostRowCount),
		DroppedRowCount:  int64(r.DroppedRowCount),
	}
}

// amountEntries flattens a map into entries sorted by key.
func amountEntries(m map[string]decimal.Decimal) []AmountEntry {
	entries := make([]AmountEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, AmountEntry{Key: k, Amount: v.Rat()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

var _ session.ResultStore = (*ResultSink)(nil)
