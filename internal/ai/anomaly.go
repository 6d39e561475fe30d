package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/shopspring/decimal"
)

// AnomalyDetector flags unusual cost-by-holder patterns in one batched call.
type AnomalyDetector struct {
	runner FlowRunner
}

// NewAnomalyDetector creates a detector over runner.
func NewAnomalyDetector(runner FlowRunner) *AnomalyDetector {
	return &AnomalyDetector{runner: runner}
}

// Detect returns anomaly descriptions for costsByHolder. On any failure it
// returns an empty, non-nil list.
func (d *AnomalyDetector) Detect(ctx context.Context, costsByHolder map[string]decimal.Decimal) []string {
	log := logger.FromContext(ctx)

	payload := make(map[string]float64, len(costsByHolder))
	for holder, amount := range costsByHolder {
		if holder == "" {
			continue
		}
		payload[holder] = amount.InexactFloat64()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("flow", FlowDetectAnomalies).Msg("Encoding cost data failed")
		return []string{}
	}

	var out DetectAnomaliesOutput
	if err := d.runner.RunFlow(ctx, FlowDetectAnomalies, DetectAnomaliesInput{IncomeStatementData: string(data)}, &out); err != nil {
		log.Warn().Err(err).Str("flow", FlowDetectAnomalies).Msg("Anomaly detection degraded to empty list")
		return []string{}
	}

	anomalies := make([]string, 0, len(out.Anomalies))
	for _, a := range out.Anomalies {
		if desc := strings.TrimSpace(a.Description); desc != "" {
			anomalies = append(anomalies, desc)
		}
	}
	return anomalies
}
