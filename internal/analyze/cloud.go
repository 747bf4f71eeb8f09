package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

// CloudAnalyzer asks a chat model for a risk assessment of the extracted
// document. If the call fails mid-batch it degrades to the heuristic
// analyzer for that document rather than failing it.
type CloudAnalyzer struct {
	client   *openai.Client
	model    string
	fallback *FallbackAnalyzer
	logger   *zap.Logger
}

// NewCloudAnalyzer creates a model-backed analyzer.
func NewCloudAnalyzer(apiKey, baseURL, model string, fallback *FallbackAnalyzer, logger *zap.Logger) *CloudAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &CloudAnalyzer{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		fallback: fallback,
		logger:   logger,
	}
}

// Method reports how results produced by this analyzer were obtained.
func (a *CloudAnalyzer) Method() string { return models.MethodCloud }

// Probe verifies the analysis backend is reachable. Called once at startup.
func (a *CloudAnalyzer) Probe(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return fmt.Errorf("analysis backend unreachable: %w", err)
	}
	return nil
}

type cloudAssessment struct {
	Summary         string   `json:"summary"`
	RiskScore       float64  `json:"risk_score"`
	FraudIndicators []string `json:"fraud_indicators"`
	Recommendations []string `json:"recommendations"`
}

// Analyze sends the extracted fields and validation outcome to the model
// and parses its JSON assessment.
func (a *CloudAnalyzer) Analyze(ctx context.Context, in Input) (*models.AnalysisResult, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   1024,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a mortgage underwriting assistant. You assess supporting documents for completeness, consistency, and signs of tampering or fabrication. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildAnalysisPrompt(in),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Warn("Cloud analysis call failed, degrading to heuristics",
			zap.String("filename", in.Filename),
			zap.Error(err))
		return a.fallback.Analyze(ctx, in)
	}
	if len(resp.Choices) == 0 {
		a.logger.Warn("Cloud analysis returned no choices, degrading to heuristics",
			zap.String("filename", in.Filename))
		return a.fallback.Analyze(ctx, in)
	}

	content := resp.Choices[0].Message.Content
	var parsed cloudAssessment
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		a.logger.Warn("Failed to parse analysis response, degrading to heuristics",
			zap.String("content", content),
			zap.Error(err))
		return a.fallback.Analyze(ctx, in)
	}

	score := parsed.RiskScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &models.AnalysisResult{
		Summary:         parsed.Summary,
		RiskScore:       score,
		RiskLevel:       riskLevel(score),
		FraudIndicators: parsed.FraudIndicators,
		Recommendations: parsed.Recommendations,
		Method:          models.MethodCloud,
	}, nil
}

func buildAnalysisPrompt(in Input) string {
	req := registry.RequirementsFor(in.DeclaredType)

	var b strings.Builder
	fmt.Fprintf(&b, "Assess this %s submitted with a mortgage application.\n\nEXTRACTED FIELDS:\n", req.DisplayName)
	if in.Extraction != nil {
		for name, value := range in.Extraction.Fields {
			fmt.Fprintf(&b, "- %s: %s\n", name, value)
		}
	}
	if in.Validation != nil {
		fmt.Fprintf(&b, "\nVALIDATION OUTCOME: valid=%t score=%.2f\n", in.Validation.Valid, in.Validation.Score)
		for _, r := range in.Validation.Reasons {
			fmt.Fprintf(&b, "- issue: %s\n", r)
		}
		for _, w := range in.Validation.Warnings {
			fmt.Fprintf(&b, "- warning: %s\n", w)
		}
	}
	b.WriteString(`
Consider:
1. Internal consistency of the fields (names, dates, amounts).
2. Signs of tampering or fabrication (round numbers, impossible dates, mismatched identities).
3. Anything an underwriter should follow up on.

Return a JSON object:
{
  "summary": "one or two sentence assessment",
  "risk_score": <0.0 lowest risk to 1.0 highest risk>,
  "fraud_indicators": ["specific concerns, empty if none"],
  "recommendations": ["follow-up actions for the assessor, empty if none"]
}`)
	return b.String()
}
