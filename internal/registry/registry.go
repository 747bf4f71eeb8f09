// Package registry holds the static mortgage document type catalogue:
// which fields each type must carry, how recent it must be, and which file
// formats are accepted. Pure lookup, no mutable state.
package registry

import (
	"path/filepath"
	"sort"
	"strings"
)

// Requirements describes what the validator expects from one document type.
// MaxAgeDays of zero means the type carries no recency window.
type Requirements struct {
	DisplayName     string
	Category        string
	RequiredFields  []string
	OptionalFields  []string
	AcceptedFormats []string
	MaxAgeDays      int
	Required        bool
	Priority        int
}

// Document type identifiers.
const (
	TypeIDProof             = "id_proof"
	TypePayslip             = "payslip"
	TypeBankStatement       = "bank_statement"
	TypeEmploymentLetter    = "employment_letter"
	TypeTaxDocument         = "tax_document"
	TypeUtilityBill         = "utility_bill"
	TypePropertyDocument    = "property_document"
	TypeCreditReport        = "credit_report"
	TypeInvestmentStatement = "investment_statement"
	TypeSelfEmploymentProof = "self_employment_proof"
)

var defaultFormats = []string{"pdf", "jpg", "jpeg", "png"}

var catalogue = map[string]Requirements{
	TypeIDProof: {
		DisplayName:     "ID Proof",
		Category:        "identity",
		RequiredFields:  []string{"full_name", "id_number"},
		OptionalFields:  []string{"date_of_birth", "address", "expiry_date"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      0, // IDs carry an expiry date instead of a recency window
		Required:        true,
		Priority:        10,
	},
	TypePayslip: {
		DisplayName:     "Payslip",
		Category:        "income",
		RequiredFields:  []string{"employee_name", "employer_name", "pay_date", "gross_salary"},
		OptionalFields:  []string{"net_salary", "deductions", "employee_id", "pay_period"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      90,
		Required:        true,
		Priority:        9,
	},
	TypeBankStatement: {
		DisplayName:     "Bank Statement",
		Category:        "financial",
		RequiredFields:  []string{"account_holder_name", "account_number", "statement_date"},
		OptionalFields:  []string{"bank_name", "account_balance", "opening_balance", "closing_balance"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      90,
		Required:        true,
		Priority:        7,
	},
	TypeEmploymentLetter: {
		DisplayName:     "Employment Letter",
		Category:        "employment",
		RequiredFields:  []string{"employee_name", "employer_name", "job_title", "employment_date"},
		OptionalFields:  []string{"salary_info", "employment_type", "supervisor_contact"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      180,
		Required:        true,
		Priority:        8,
	},
	TypeTaxDocument: {
		DisplayName:     "Tax Document",
		Category:        "financial",
		RequiredFields:  []string{"taxpayer_name", "tax_year", "total_income"},
		OptionalFields:  []string{"filing_status", "deductions", "tax_owed", "refund_amount"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      365,
		Priority:        6,
	},
	TypeUtilityBill: {
		DisplayName:     "Utility Bill",
		Category:        "address_proof",
		RequiredFields:  []string{"account_holder_name", "service_address", "bill_date"},
		OptionalFields:  []string{"utility_company", "account_number", "amount_due", "service_period"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      90,
		Priority:        4,
	},
	TypePropertyDocument: {
		DisplayName:     "Property Document",
		Category:        "property",
		RequiredFields:  []string{"property_address", "owner_name", "document_type"},
		OptionalFields:  []string{"property_value", "deed_number", "registration_date"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      365,
		Priority:        3,
	},
	TypeCreditReport: {
		DisplayName:     "Credit Report",
		Category:        "financial",
		RequiredFields:  []string{"report_holder_name", "report_date", "credit_score"},
		OptionalFields:  []string{"credit_history", "account_details", "inquiry_history"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      30,
		Priority:        5,
	},
	TypeInvestmentStatement: {
		DisplayName:     "Investment Statement",
		Category:        "financial",
		RequiredFields:  []string{"account_holder_name", "statement_date", "account_value"},
		OptionalFields:  []string{"investment_details", "gains_losses", "account_number"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      90,
		Priority:        2,
	},
	TypeSelfEmploymentProof: {
		DisplayName:     "Self-Employment Proof",
		Category:        "income",
		RequiredFields:  []string{"business_name", "owner_name", "income_amount"},
		OptionalFields:  []string{"business_address", "license_number", "business_type"},
		AcceptedFormats: defaultFormats,
		MaxAgeDays:      365,
		Priority:        1,
	},
}

// RequirementsFor returns the requirements for a document type. Unknown
// types yield a maximally permissive requirement set (no required fields,
// no recency window, any default format); callers log the miss.
func RequirementsFor(docType string) Requirements {
	if req, ok := catalogue[docType]; ok {
		return req
	}
	return Requirements{
		DisplayName:     displayName(docType),
		Category:        "unknown",
		AcceptedFormats: defaultFormats,
	}
}

func displayName(docType string) string {
	words := strings.Split(docType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Known reports whether the document type is in the catalogue.
func Known(docType string) bool {
	_, ok := catalogue[docType]
	return ok
}

// RequiredTypes returns the document types every application must include.
func RequiredTypes() []string {
	var required []string
	for docType, req := range catalogue {
		if req.Required {
			required = append(required, docType)
		}
	}
	sort.Slice(required, func(i, j int) bool {
		return catalogue[required[i]].Priority > catalogue[required[j]].Priority
	})
	return required
}

// AllTypes returns every registered document type, highest priority first.
func AllTypes() []string {
	types := make([]string, 0, len(catalogue))
	for docType := range catalogue {
		types = append(types, docType)
	}
	sort.Slice(types, func(i, j int) bool {
		return catalogue[types[i]].Priority > catalogue[types[j]].Priority
	})
	return types
}

var filenameKeywords = map[string][]string{
	TypePayslip:          {"payslip", "salary", "pay_stub", "paystub", "wage"},
	TypeBankStatement:    {"bank", "statement", "account"},
	TypeIDProof:          {"id", "passport", "license", "identity"},
	TypeTaxDocument:      {"tax", "1040", "return", "w2"},
	TypeUtilityBill:      {"utility", "electric", "gas", "water", "bill"},
	TypeEmploymentLetter: {"employment", "job", "work", "employer"},
	TypeCreditReport:     {"credit", "score", "fico", "bureau"},
	TypePropertyDocument: {"property", "deed", "title"},
}

// SuggestType guesses a document type from a filename. Returns payslip when
// nothing matches, mirroring the most common upload.
func SuggestType(filename string) string {
	name := strings.ToLower(filename)
	best := ""
	bestPriority := -1
	for docType, keywords := range filenameKeywords {
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				if p := catalogue[docType].Priority; p > bestPriority {
					best = docType
					bestPriority = p
				}
				break
			}
		}
	}
	if best == "" {
		return TypePayslip
	}
	return best
}

// FormatAccepted reports whether a filename's extension is acceptable for
// the document type.
func FormatAccepted(docType, filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range RequirementsFor(docType).AcceptedFormats {
		if ext == f {
			return true
		}
	}
	return false
}
