package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

// fallbackConfidence is the fixed confidence attached to heuristic results.
// Heuristics never claim cloud-grade accuracy.
const fallbackConfidence = 0.7

// FallbackExtractor pulls text out of documents locally and applies regex
// heuristics. Used when the cloud backend is unavailable at startup.
type FallbackExtractor struct {
	maxFileSize int64
	logger      *zap.Logger
}

// NewFallbackExtractor creates the local heuristic extractor.
func NewFallbackExtractor(maxFileSize int64, logger *zap.Logger) *FallbackExtractor {
	return &FallbackExtractor{maxFileSize: maxFileSize, logger: logger}
}

// Method reports how results produced by this extractor were obtained.
func (e *FallbackExtractor) Method() string { return models.MethodFallback }

// Extract reads the document text and mines it for dates, amounts, names,
// and account numbers.
func (e *FallbackExtractor) Extract(ctx context.Context, in Input) (*models.ExtractionResult, error) {
	if err := CheckSize(in, e.maxFileSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("Extracting document fields with local heuristics",
		zap.String("filename", in.Filename),
		zap.String("declared_type", in.DeclaredType))

	text, err := extractText(in)
	if err != nil {
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "failed to read document text", Err: err}
	}

	result := ExtractFromText(text, in.DeclaredType)
	e.logger.Info("Heuristic extraction finished",
		zap.String("filename", in.Filename),
		zap.Int("field_count", len(result.Fields)))
	return result, nil
}

func extractText(in Input) (string, error) {
	ext := strings.ToLower(fileExt(in.Filename))
	if ext == "jpg" || ext == "jpeg" || ext == "png" {
		// No local OCR for raster images.
		return "", nil
	}

	doc, err := fitz.NewFromMemory(in.Data)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

var (
	datePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4})\b`)
	amountPattern   = regexp.MustCompile(`[$€£]\s?([\d,]+(?:\.\d{2})?)|\b([\d,]+\.\d{2})\b`)
	accountPattern  = regexp.MustCompile(`(?i)(?:account|acct)\.?\s*(?:no\.?|number)?[:\s]*([0-9][0-9\- ]{5,20}[0-9])`)
	idPattern       = regexp.MustCompile(`(?i)(?:passport|licen[cs]e|id)\s*(?:no\.?|number)?[:\s]*([A-Z0-9]{6,12})\b`)
	namePattern     = regexp.MustCompile(`(?im)^(?:name|employee|account holder|holder)[:\s]+([A-Z][A-Za-z'\-]+(?:\s+[A-Z][A-Za-z'\-]+)+)\s*$`)
	employerPattern = regexp.MustCompile(`(?im)^(?:employer|company)[:\s]+(.{2,60})\s*$`)
)

// ExtractFromText applies regex heuristics to document text. Separated
// from Extract so tests can exercise it without document rendering.
func ExtractFromText(text, declaredType string) *models.ExtractionResult {
	fields := make(map[string]string)

	dates := datePattern.FindAllString(text, -1)
	if len(dates) > 0 {
		fields["dates_found"] = strings.Join(dedupe(dates), ";")
		fields[primaryDateField(declaredType)] = dates[0]
	}

	var amounts []string
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			amounts = append(amounts, m[1])
		} else if m[2] != "" {
			amounts = append(amounts, m[2])
		}
	}
	if len(amounts) > 0 {
		fields["amounts_found"] = strings.Join(dedupe(amounts), ";")
		if declaredType == registry.TypePayslip {
			fields["gross_salary"] = amounts[0]
		}
	}

	if m := accountPattern.FindStringSubmatch(text); len(m) > 1 {
		fields["account_number"] = strings.TrimSpace(m[1])
	}
	if m := idPattern.FindStringSubmatch(text); len(m) > 1 {
		fields["id_number"] = m[1]
	}
	if m := namePattern.FindStringSubmatch(text); len(m) > 1 {
		fields[primaryNameField(declaredType)] = strings.TrimSpace(m[1])
	}
	if m := employerPattern.FindStringSubmatch(text); len(m) > 1 {
		fields["employer_name"] = strings.TrimSpace(m[1])
	}

	return &models.ExtractionResult{
		Fields:     fields,
		RawText:    text,
		Method:     models.MethodFallback,
		Confidence: fallbackConfidence,
	}
}

func primaryDateField(declaredType string) string {
	switch declaredType {
	case registry.TypePayslip:
		return "pay_date"
	case registry.TypeBankStatement, registry.TypeInvestmentStatement:
		return "statement_date"
	case registry.TypeEmploymentLetter, registry.TypeUtilityBill:
		return "issue_date"
	case registry.TypeCreditReport:
		return "report_date"
	default:
		return "document_date"
	}
}

func primaryNameField(declaredType string) string {
	switch declaredType {
	case registry.TypePayslip:
		return "employee_name"
	case registry.TypeBankStatement, registry.TypeInvestmentStatement:
		return "account_holder_name"
	case registry.TypeIDProof:
		return "full_name"
	default:
		return "name"
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
