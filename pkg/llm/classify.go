package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Scam categories the classifier may return.
const (
	CategoryBankFraud      = "bank_fraud"
	CategoryUPIFraud       = "upi_fraud"
	CategoryPhishing       = "phishing"
	CategoryJobScam        = "job_scam"
	CategoryInvestmentScam = "investment_scam"
	CategoryLotteryScam    = "lottery_scam"
	CategoryKYCScam        = "kyc_scam"
	CategoryUtilityScam    = "utility_scam"
	CategoryUnknown        = "unknown"
)

// Categories is the closed set of valid scam types.
var Categories = map[string]bool{
	CategoryBankFraud:      true,
	CategoryUPIFraud:       true,
	CategoryPhishing:       true,
	CategoryJobScam:        true,
	CategoryInvestmentScam: true,
	CategoryLotteryScam:    true,
	CategoryKYCScam:        true,
	CategoryUtilityScam:    true,
	CategoryUnknown:        true,
}

// Classifier labels a finished conversation with a scam category.
type Classifier interface {
	Classify(ctx context.Context, conversation string) (scamType string, confidence float64, err error)
}

const (
	classifyTemperature = 0
	classifyMaxTokens   = 120

	// defaultConfidence is used when the model omits confidenceLevel.
	defaultConfidence = 0.75
)

const classifyPromptFormat = `You are a cybersecurity classifier.

Classify the following conversation into one of the scam categories below.

Return STRICT JSON only in this format:

{
  "scamType": "bank_fraud | upi_fraud | phishing | job_scam | investment_scam | lottery_scam | kyc_scam | utility_scam | unknown",
  "confidenceLevel": float_between_0_and_1
}

Conversation:
"""%s"""`

type classifyResult struct {
	ScamType        string   `json:"scamType"`
	ConfidenceLevel *float64 `json:"confidenceLevel"`
}

// ChatClassifier classifies through the chat client.
type ChatClassifier struct {
	client *Client
}

// NewChatClassifier wraps a chat client as a Classifier.
func NewChatClassifier(client *Client) *ChatClassifier {
	return &ChatClassifier{client: client}
}

// Classify implements Classifier. Any transport, parse, or category failure
// surfaces as an error so the caller can fall through to the next classifier
// in its chain.
func (c *ChatClassifier) Classify(ctx context.Context, conversation string) (string, float64, error) {
	messages := []Message{{
		Role:    "user",
		Content: fmt.Sprintf(classifyPromptFormat, conversation),
	}}

	content, err := c.client.Chat(ctx, messages, classifyTemperature, classifyMaxTokens)
	if err != nil {
		return "", 0, err
	}
	return ParseClassification(content)
}

// ParseClassification decodes a classification completion: JSON is extracted
// defensively, the category is checked against the closed set, and confidence
// is clamped to [0, 1].
func ParseClassification(content string) (string, float64, error) {
	var parsed classifyResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return "", 0, fmt.Errorf("parse classification: %w", err)
	}

	scamType := parsed.ScamType
	if scamType == "" {
		scamType = CategoryUnknown
	}
	if !Categories[scamType] {
		return "", 0, fmt.Errorf("unknown scam category %q", scamType)
	}

	confidence := defaultConfidence
	if parsed.ConfidenceLevel != nil {
		confidence = *parsed.ConfidenceLevel
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return scamType, confidence, nil
}
