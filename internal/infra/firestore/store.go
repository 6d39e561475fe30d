// Package firestore persists sessions and results in Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	SessionsCollection = "upload_sessions"
	ResultsCollection  = "budget_results"
)

// Store implements session.SessionStore over the upload_sessions collection
// and session.ResultStore over budget_results.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Store with its own Firestore client.
func NewStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// GetSession implements session.SessionStore.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	snap, err := s.client.Collection(SessionsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("GetSession: %s: %w", id, session.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: reading %s: %w", id, err)
	}

	var sess session.Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("GetSession: decoding %s: %w", id, err)
	}
	sess.ID = snap.Ref.ID
	return &sess, nil
}

// MarkProcessing implements session.SessionStore. The status check and the
// update run in one transaction so concurrent claims cannot both win.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, session.StatusReadyForProcessing, processingUpdates())
}

// MarkCompleted implements session.SessionStore.
func (s *Store) MarkCompleted(ctx context.Context, id, resultID string) error {
	return s.transition(ctx, id, session.StatusProcessing, completedUpdates(resultID))
}

// MarkFailed implements session.SessionStore.
func (s *Store) MarkFailed(ctx context.Context, id string, kind session.ErrorKind, message string) error {
	return s.transition(ctx, id, session.StatusProcessing, failedUpdates(kind, message))
}

func (s *Store) transition(ctx context.Context, id string, from session.Status, updates []firestore.Update) error {
	ref := s.client.Collection(SessionsCollection).Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", id, session.ErrNotFound)
		}
		if err != nil {
			return err
		}

		current, err := snap.DataAt("status")
		if err != nil {
			return fmt.Errorf("%s: reading status: %w", id, err)
		}
		if got, _ := current.(string); session.Status(got) != from {
			return fmt.Errorf("%s is %v: %w", id, current, session.ErrStatusConflict)
		}

		return tx.Update(ref, updates)
	})
	if err != nil {
		return fmt.Errorf("session transition to %v: %w", updates[0].Value, err)
	}
	return nil
}

func processingUpdates() []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: string(session.StatusProcessing)},
		{Path: "processedAt", Value: firestore.ServerTimestamp},
		{Path: "errorMessage", Value: firestore.Delete},
		{Path: "errorKind", Value: firestore.Delete},
		{Path: "resultId", Value: firestore.Delete},
		{Path: "completedAt", Value: firestore.Delete},
	}
}

func completedUpdates(resultID string) []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: string(session.StatusCompleted)},
		{Path: "resultId", Value: resultID},
		{Path: "completedAt", Value: firestore.ServerTimestamp},
	}
}

func failedUpdates(kind session.ErrorKind, message string) []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: string(session.StatusError)},
		{Path: "errorKind", Value: string(kind)},
		{Path: "errorMessage", Value: message},
		{Path: "completedAt", Value: firestore.ServerTimestamp},
	}
}

// resultDoc is the budget_results document layout. Amounts are stored as
// numbers so dashboards can chart them directly. Timestamp is left zero so
// Firestore fills in the commit time.
type resultDoc struct {
	UserID          string             `firestore:"userId"`
	SessionID       string             `firestore:"sessionId"`
	Timestamp       time.Time          `firestore:"timestamp,serverTimestamp"`
	VerifiedMetrics metricsDoc         `firestore:"verifiedMetrics"`
	AIAnalysis      session.AIAnalysis `firestore:"aiAnalysis"`
	RevenueRowCount int                `firestore:"revenueRowCount"`
	CostRowCount    int                `firestore:"costRowCount"`
	DroppedRowCount int                `firestore:"droppedRowCount"`
}

type metricsDoc struct {
	TotalCosts       float64            `firestore:"totalCosts"`
	CostsByHolder    map[string]float64 `firestore:"costsByHolder"`
	CostsByRegion    map[string]float64 `firestore:"costsByRegion"`
	RetailRevenue    float64            `firestore:"retailRevenue"`
	WholesaleRevenue float64            `firestore:"wholesaleRevenue"`
}

func toResultDoc(r *session.Result) resultDoc {
	return resultDoc{
		UserID:          r.UserID,
		SessionID:       r.SessionID,
		VerifiedMetrics: toMetricsDoc(r.VerifiedMetrics),
		AIAnalysis: session.AIAnalysis{
			Anomalies:       nonNil(r.AIAnalysis.Anomalies),
			Insights:        nonNil(r.AIAnalysis.Insights),
			Recommendations: nonNil(r.AIAnalysis.Recommendations),
		},
		RevenueRowCount: r.RevenueRowCount,
		CostRowCount:    r.CostRowCount,
		DroppedRowCount: r.DroppedRowCount,
	}
}

func toMetricsDoc(m ledger.AggregateResult) metricsDoc {
	return metricsDoc{
		TotalCosts:       m.TotalCosts.InexactFloat64(),
		CostsByHolder:    floatMap(m.CostsByHolder),
		CostsByRegion:    floatMap(m.CostsByRegion),
		RetailRevenue:    m.RetailRevenue.InexactFloat64(),
		WholesaleRevenue: m.WholesaleRevenue.InexactFloat64(),
	}
}

func floatMap(in map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v.InexactFloat64()
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreateResult implements session.ResultStore. Firestore assigns the ID.
func (s *Store) CreateResult(ctx context.Context, result *session.Result) (string, error) {
	ref, _, err := s.client.Collection(ResultsCollection).Add(ctx, toResultDoc(result))
	if err != nil {
		return "", fmt.Errorf("CreateResult: adding document: %w", err)
	}
	return ref.ID, nil
}

// DeleteResult implements session.ResultStore.
func (s *Store) DeleteResult(ctx context.Context, id string) error {
	if _, err := s.client.Collection(ResultsCollection).Doc(id).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("DeleteResult: deleting %s: %w", id, err)
	}
	return nil
}

var (
	_ session.SessionStore = (*Store)(nil)
	_ session.ResultStore  = (*Store)(nil)
)
