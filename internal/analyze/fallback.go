package analyze

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

// FallbackAnalyzer scores risk from the validation outcome alone. No
// network calls, so it can never fail a document.
type FallbackAnalyzer struct {
	logger *zap.Logger
}

// NewFallbackAnalyzer creates the heuristic analyzer.
func NewFallbackAnalyzer(logger *zap.Logger) *FallbackAnalyzer {
	return &FallbackAnalyzer{logger: logger}
}

// Method reports how results produced by this analyzer were obtained.
func (a *FallbackAnalyzer) Method() string { return models.MethodFallback }

// Analyze derives a risk score from missing fields, validation issues, and
// extraction confidence.
func (a *FallbackAnalyzer) Analyze(ctx context.Context, in Input) (*models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := registry.RequirementsFor(in.DeclaredType)

	var score float64
	var indicators []string
	var recommendations []string

	if in.Validation != nil {
		score += float64(len(in.Validation.MissingFields)) * 0.15
		for _, f := range in.Validation.MissingFields {
			indicators = append(indicators, fmt.Sprintf("required field not found: %s", f))
		}
		if !in.Validation.RecencyOK {
			score += 0.25
			indicators = append(indicators, "document is outside its acceptable age window")
			recommendations = append(recommendations, fmt.Sprintf("request a more recent %s", strings.ToLower(req.DisplayName)))
		}
		if !in.Validation.FormatOK {
			score += 0.15
		}
		score += float64(len(in.Validation.Warnings)) * 0.1
	} else {
		score += 0.3
		indicators = append(indicators, "document was not validated")
	}

	if in.Extraction == nil {
		score += 0.3
		indicators = append(indicators, "no fields could be extracted")
	} else if in.Extraction.Confidence < 0.8 {
		score += 0.1
		recommendations = append(recommendations, "verify extracted values manually against the original document")
	}

	if score > 1 {
		score = 1
	}

	level := riskLevel(score)
	summary := fmt.Sprintf("Heuristic assessment of %s: %s risk (score %.2f), %d concern(s) noted.",
		req.DisplayName, level, score, len(indicators))

	a.logger.Debug("Heuristic analysis complete",
		zap.String("filename", in.Filename),
		zap.Float64("risk_score", score),
		zap.String("risk_level", level))

	return &models.AnalysisResult{
		Summary:         summary,
		RiskScore:       score,
		RiskLevel:       level,
		FraudIndicators: indicators,
		Recommendations: recommendations,
		Method:          models.MethodFallback,
	}, nil
}
