package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models used by GeminiRunner.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRunner runs the flows directly against Gemini instead of the flow
// service. It renders the flow prompt locally and decodes the model's JSON
// answer into the flow output.
type GeminiRunner struct {
	models contentGenerator
	model  string
}

// NewGeminiRunner creates a runner backed by the Gemini API.
func NewGeminiRunner(ctx context.Context, apiKey, model string) (*GeminiRunner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiRunner: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiRunner{models: client.Models, model: model}, nil
}

// RunFlow implements FlowRunner.
func (g *GeminiRunner) RunFlow(ctx context.Context, flow string, input, output any) error {
	prompt, err := renderPrompt(flow, input)
	if err != nil {
		return &TransportError{Flow: flow, Err: err}
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return &TransportError{Flow: flow, Err: fmt.Errorf("generate content: %w", err)}
	}

	raw := resp.Text()
	if raw == "" {
		return &TransportError{Flow: flow, Err: errors.New("empty response from model")}
	}

	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), output); err != nil {
		return &TransportError{Flow: flow, Err: fmt.Errorf("unmarshal model JSON: %w", err)}
	}
	return nil
}

func renderPrompt(flow string, input any) (string, error) {
	switch in := input.(type) {
	case ClassifyRevenueInput:
		return fmt.Sprintf(classifyRevenuePrompt, in.RevenueEntry, in.KeywordsRetail, in.KeywordsWholesale), nil
	case DetectAnomaliesInput:
		return fmt.Sprintf(detectAnomaliesPrompt, in.IncomeStatementData), nil
	default:
		return "", fmt.Errorf("no prompt for flow %q with input %T", flow, input)
	}
}

const classifyRevenuePrompt = "Classify the following revenue entry into 'wholesale' or 'retail' based on the description and provided keywords.\n\n" +
	"Revenue Entry: %s\n\n" +
	"Retail Keywords: %s\n" +
	"Wholesale Keywords: %s\n\n" +
	"If the entry matches wholesale keywords or looks like a business entity, classify as 'wholesale'.\n" +
	"If it matches retail keywords or looks like an individual, classify as 'retail'.\n" +
	"If uncertain, default to 'retail'.\n\n" +
	"Return ONLY a JSON object of the form {\"classification\": \"retail\"} or {\"classification\": \"wholesale\"}.\n"

const detectAnomaliesPrompt = "You are a financial analyst reviewing costs grouped by budget holder.\n\n" +
	"Costs by budget holder (JSON, absolute amounts in reporting currency):\n%s\n\n" +
	"Identify holders whose costs look anomalous compared with the others: outliers, suspicious round numbers, or\n" +
	"disproportionate shares of the total. Describe each finding in one sentence that names the holder and the amount.\n\n" +
	"Return ONLY a JSON object of the form {\"anomalies\": [{\"description\": \"...\"}]}.\n" +
	"Return {\"anomalies\": []} when nothing stands out.\n"

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object or array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		s = s[open : end+1]
	}
	return strings.TrimSpace(s)
}

var _ FlowRunner = (*GeminiRunner)(nil)
