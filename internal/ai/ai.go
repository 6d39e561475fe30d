// Package ai talks to the external classification and anomaly services.
// Calls never fail the caller: transport problems degrade to default answers.
package ai

import (
	"context"
	"fmt"
)

// Flow names exposed by the AI service.
const (
	FlowClassifyRevenue = "classifyRevenue"
	FlowDetectAnomalies = "detectAnomalies"
)

// FlowRunner executes a named flow. input is marshalled as the flow input
// and the flow output is decoded into output.
type FlowRunner interface {
	RunFlow(ctx context.Context, flow string, input, output any) error
}

// TransportError reports a failed call to the AI service: network failure,
// timeout, non-2xx status or an undecodable payload.
type TransportError struct {
	Flow       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai flow %s: status %d: %v", e.Flow, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ai flow %s: %v", e.Flow, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClassifyRevenueInput is the classifyRevenue flow input.
type ClassifyRevenueInput struct {
	RevenueEntry      string `json:"revenueEntry"`
	KeywordsRetail    string `json:"keywordsRetail"`
	KeywordsWholesale string `json:"keywordsWholesale"`
}

// ClassifyRevenueOutput is the classifyRevenue flow output.
type ClassifyRevenueOutput struct {
	Classification string `json:"classification"`
}

// DetectAnomaliesInput is the detectAnomalies flow input. IncomeStatementData
// holds the per-holder cost map encoded as a JSON string.
type DetectAnomaliesInput struct {
	IncomeStatementData string `json:"incomeStatementData"`
}

// Anomaly is one finding of the detectAnomalies flow.
type Anomaly struct {
	Description string `json:"description"`
}

// DetectAnomaliesOutput is the detectAnomalies flow output.
type DetectAnomaliesOutput struct {
	Anomalies []Anomaly `json:"anomalies"`
}
