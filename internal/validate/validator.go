// Package validate applies document type registry rules to extraction
// results. Validation is a pure function of its inputs: no clocks, no
// network, no backend duality.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

// Penalty weights for the validation score, carried over from the review
// rubric the assessors already work with.
const (
	issuePenalty        = 0.2
	warningPenalty      = 0.1
	missingFieldPenalty = 0.15
	passingScore        = 0.7
)

// Validator checks extraction results against registry requirements.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate applies completeness, recency, and format checks for the declared
// type. All failing reasons are collected together rather than
// short-circuited, so a borrower sees the full remediation list at once.
// Identical inputs always produce identical results.
func (v *Validator) Validate(extraction *models.ExtractionResult, declaredType, filename string, referenceDate time.Time) models.ValidationResult {
	req := registry.RequirementsFor(declaredType)

	result := models.ValidationResult{
		Valid:          true,
		RecencyOK:      true,
		CompletenessOK: true,
		FormatOK:       true,
	}

	v.checkCompleteness(extraction, req, &result)
	v.checkRecency(extraction, req, referenceDate, &result)
	v.checkFormat(req, filename, &result)
	v.checkTypeSpecific(extraction, declaredType, referenceDate, &result)

	result.Score = v.score(&result)
	result.Valid = len(result.Reasons) == 0 && result.Score >= passingScore
	return result
}

func (v *Validator) checkCompleteness(extraction *models.ExtractionResult, req registry.Requirements, result *models.ValidationResult) {
	for _, field := range req.RequiredFields {
		if extraction == nil || strings.TrimSpace(extraction.Fields[field]) == "" {
			result.MissingFields = append(result.MissingFields, field)
			result.Reasons = append(result.Reasons, fmt.Sprintf("missing required field: %s", field))
			result.CompletenessOK = false
		}
	}
}

func (v *Validator) checkRecency(extraction *models.ExtractionResult, req registry.Requirements, referenceDate time.Time, result *models.ValidationResult) {
	if req.MaxAgeDays == 0 {
		return
	}

	dates := candidateDates(extraction)
	if len(dates) == 0 {
		result.RecencyOK = false
		result.Reasons = append(result.Reasons, fmt.Sprintf("no document date found; %s requires a document no older than %d days", req.DisplayName, req.MaxAgeDays))
		return
	}

	// A document dated exactly MaxAgeDays before the reference date still
	// passes; one day older fails.
	cutoff := referenceDate.AddDate(0, 0, -req.MaxAgeDays)
	for _, raw := range dates {
		if parsed, ok := ParseDate(raw); ok && !parsed.Before(cutoff) {
			return
		}
	}

	result.RecencyOK = false
	result.Reasons = append(result.Reasons, fmt.Sprintf("%s is older than %d days", req.DisplayName, req.MaxAgeDays))
	result.Recommendations = append(result.Recommendations, fmt.Sprintf("upload a %s issued within the last %d days", strings.ToLower(req.DisplayName), req.MaxAgeDays))
}

func (v *Validator) checkFormat(req registry.Requirements, filename string, result *models.ValidationResult) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range req.AcceptedFormats {
		if ext == f {
			return
		}
	}
	result.FormatOK = false
	result.Reasons = append(result.Reasons, fmt.Sprintf("file format %q not accepted for %s (accepted: %s)", ext, req.DisplayName, strings.Join(req.AcceptedFormats, ", ")))
}

func (v *Validator) checkTypeSpecific(extraction *models.ExtractionResult, declaredType string, referenceDate time.Time, result *models.ValidationResult) {
	if extraction == nil {
		return
	}
	switch declaredType {
	case registry.TypePayslip:
		v.checkSalarySanity(extraction, result)
	case registry.TypeIDProof:
		v.checkIDExpiry(extraction, referenceDate, result)
	}
	v.checkContactFormats(extraction, result)
}

// checkSalarySanity flags payslip amounts outside any plausible range.
func (v *Validator) checkSalarySanity(extraction *models.ExtractionResult, result *models.ValidationResult) {
	for _, field := range []string{"gross_salary", "net_salary", "basic_salary", "gross_pay", "net_pay"} {
		raw, ok := extraction.Fields[field]
		if !ok {
			continue
		}
		amount, ok := numericValue(raw)
		if !ok {
			continue
		}
		if amount < 100 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("salary amount seems unusually low: %s", raw))
		} else if amount > 1000000 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("salary amount seems unusually high: %s", raw))
		}
	}
}

func (v *Validator) checkIDExpiry(extraction *models.ExtractionResult, referenceDate time.Time, result *models.ValidationResult) {
	for _, field := range []string{"expiry_date", "expiration_date", "valid_until"} {
		raw, ok := extraction.Fields[field]
		if !ok || raw == "" {
			continue
		}
		if expiry, ok := ParseDate(raw); ok && expiry.Before(referenceDate) {
			result.Reasons = append(result.Reasons, "ID document has expired")
			return
		}
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func (v *Validator) checkContactFormats(extraction *models.ExtractionResult, result *models.ValidationResult) {
	for field, value := range extraction.Fields {
		if value == "" {
			continue
		}
		lower := strings.ToLower(field)
		if strings.Contains(lower, "email") && !emailPattern.MatchString(strings.TrimSpace(value)) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("invalid email format: %s", value))
		}
		if strings.Contains(lower, "phone") && !validPhone(value) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("invalid phone format: %s", value))
		}
	}
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10 && digits <= 15
}

func (v *Validator) score(result *models.ValidationResult) float64 {
	penalty := float64(len(result.Reasons))*issuePenalty +
		float64(len(result.Warnings))*warningPenalty +
		float64(len(result.MissingFields))*missingFieldPenalty
	score := 1.0 - penalty
	if score < 0 {
		return 0
	}
	return score
}

// candidateDates gathers every field value that looks like it carries the
// document's date: any field whose name mentions "date" plus the
// dates_found list populated by the fallback extractor.
func candidateDates(extraction *models.ExtractionResult) []string {
	if extraction == nil {
		return nil
	}
	var dates []string
	for field, value := range extraction.Fields {
		if value == "" {
			continue
		}
		lower := strings.ToLower(field)
		if strings.Contains(lower, "expiry") || strings.Contains(lower, "expiration") {
			continue
		}
		if strings.Contains(lower, "date") {
			dates = append(dates, value)
		}
	}
	if found, ok := extraction.Fields["dates_found"]; ok && found != "" {
		dates = append(dates, strings.Split(found, ";")...)
	}
	return dates
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
	"02-01-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"2-January-2006",
}

var dateCleaner = regexp.MustCompile(`[^\w\s/,-]`)

// ParseDate tries the date layouts borrowers' documents actually use.
// Ambiguous day/month orderings resolve to the first matching layout.
func ParseDate(raw string) (time.Time, bool) {
	cleaned := strings.TrimSpace(dateCleaner.ReplaceAllString(raw, ""))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var currencyStripper = regexp.MustCompile(`[$,€£¥]`)
var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

func numericValue(raw string) (float64, bool) {
	cleaned := currencyStripper.ReplaceAllString(raw, "")
	match := numberPattern.FindString(cleaned)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
