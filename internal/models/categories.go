package models

import "fmt"

// PatternCategory groups conversation keywords
type PatternCategory string

const (
	PatternRevenue  PatternCategory = "revenue"
	PatternExpense  PatternCategory = "expense"
	PatternCustomer PatternCategory = "customer"
	PatternVendor   PatternCategory = "vendor"
	PatternSeasonal PatternCategory = "seasonal"
)

// PatternCategories lists every category in matching order
var PatternCategories = []PatternCategory{
	PatternRevenue,
	PatternExpense,
	PatternCustomer,
	PatternVendor,
	PatternSeasonal,
}

// ParsePatternCategory rejects strings that are not a known category
func ParsePatternCategory(s string) (PatternCategory, error) {
	for _, c := range PatternCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown pattern category: %q", s)
}

// LearningCategory groups the aggregate statistics computed from financial records
type LearningCategory string

const (
	LearningRevenuePatterns     LearningCategory = "revenue_patterns"
	LearningExpenseCategories   LearningCategory = "expense_categories"
	LearningCustomerBehavior    LearningCategory = "customer_behavior"
	LearningSeasonalTrends      LearningCategory = "seasonal_trends"
	LearningVendorRelationships LearningCategory = "vendor_relationships"
)

// LearningCategories lists every learning category in report order
var LearningCategories = []LearningCategory{
	LearningRevenuePatterns,
	LearningExpenseCategories,
	LearningCustomerBehavior,
	LearningSeasonalTrends,
	LearningVendorRelationships,
}

// Title returns the human-readable header used in prompts
func (c LearningCategory) Title() string {
	switch c {
	case LearningRevenuePatterns:
		return "Revenue Patterns"
	case LearningExpenseCategories:
		return "Expense Categories"
	case LearningCustomerBehavior:
		return "Customer Behavior"
	case LearningSeasonalTrends:
		return "Seasonal Trends"
	case LearningVendorRelationships:
		return "Vendor Relationships"
	}
	return string(c)
}

// DocumentKind is the kind of file submitted for extraction
type DocumentKind string

const (
	KindImage       DocumentKind = "image"
	KindDocument    DocumentKind = "document"
	KindSpreadsheet DocumentKind = "spreadsheet"
)

// ParseDocumentKind rejects strings that are not a known document kind
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(s) {
	case KindImage, KindDocument, KindSpreadsheet:
		return DocumentKind(s), nil
	}
	return "", fmt.Errorf("unknown document kind: %q", s)
}
