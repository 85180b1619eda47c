package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/internal/services/ai"
	"github.com/sirupsen/logrus"
)

// schemas lists the fields requested from the extractor per document kind
var schemas = map[models.DocumentKind]map[string]string{
	models.KindImage: {
		"vendor":   "merchant or vendor name",
		"date":     "transaction date as YYYY-MM-DD",
		"total":    "total amount paid as a number",
		"currency": "ISO 4217 currency code",
		"category": "expense category such as office supplies or travel",
		"items":    "list of purchased item descriptions",
	},
	models.KindDocument: {
		"document_type":  "invoice, bill, receipt, statement or contract",
		"vendor":         "issuing business name",
		"customer":       "billed customer name",
		"invoice_number": "invoice or reference number",
		"date":           "issue date as YYYY-MM-DD",
		"due_date":       "payment due date as YYYY-MM-DD",
		"total":          "total amount as a number",
		"currency":       "ISO 4217 currency code",
	},
	models.KindSpreadsheet: {
		"columns":        "list of column headers",
		"row_count":      "number of data rows",
		"date_range":     "first and last date covered",
		"total_income":   "sum of income amounts as a number",
		"total_expenses": "sum of expense amounts as a number",
		"categories":     "list of distinct categories",
	},
}

// ProcessMultiModalInput extracts structured data from an uploaded file,
// records it as a document learning and strengthens related learnings.
// The returned map is never nil; it is empty when extraction fails.
func (l *Learner) ProcessMultiModalInput(ctx context.Context, userID, fileName, mimeType string, data []byte, kind models.DocumentKind) (map[string]any, error) {
	log := l.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    kind,
		"file":    fileName,
	})

	schema, ok := schemas[kind]
	if !ok {
		l.opts.Metrics.RecordDocument(string(kind), "rejected")
		return map[string]any{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if l.deps.Extractor == nil {
		l.opts.Metrics.RecordDocument(string(kind), "error")
		return map[string]any{}, fmt.Errorf("no extractor configured")
	}

	var url string
	if l.deps.Objects != nil {
		var err error
		url, err = l.deps.Objects.Upload(ctx, userID, fileName, mimeType, data)
		if err != nil {
			log.WithError(err).Warn("Failed to store document, continuing with extraction")
		}
	}

	extractCtx, cancel := context.WithTimeout(ctx, l.opts.ExtractTimeout)
	defer cancel()

	extracted, err := l.deps.Extractor.Extract(extractCtx, ai.ExtractionRequest{
		Kind:     kind,
		FileName: fileName,
		MIMEType: mimeType,
		Data:     data,
		Schema:   schema,
	})
	if err != nil {
		log.WithError(err).Error("Document extraction failed")
		l.opts.Metrics.RecordDocument(string(kind), "error")
		return map[string]any{}, fmt.Errorf("extract document: %w", err)
	}
	if extracted == nil {
		extracted = map[string]any{}
	}

	now := l.opts.Clock()
	doc := models.DocumentLearning{
		UserID:        userID,
		DocumentType:  kind,
		FileName:      fileName,
		URL:           url,
		ExtractedData: extracted,
		Patterns:      documentPatterns(kind, extracted),
		Timestamp:     now,
	}

	related := relatedCategories(kind, extracted)
	l.mu.Lock()
	st := l.state(userID)
	st.documents = append(st.documents, doc)
	bumped := 0
	for i := range st.learnings {
		if !related[st.learnings[i].Category] {
			continue
		}
		learning := &st.learnings[i]
		learning.Confidence = min(learning.Confidence+documentBump, maxConfidence)
		learning.DataPoints++
		learning.LastUpdated = now
		bumped++
	}
	l.mu.Unlock()
	l.invalidate(userID)

	l.opts.Metrics.RecordDocument(string(kind), "success")
	log.WithFields(logrus.Fields{
		"fields":   len(extracted),
		"patterns": len(doc.Patterns),
		"bumped":   bumped,
	}).Info("Document processed")

	return extracted, nil
}

// documentPatterns describes what a document says, using whichever fields came back
func documentPatterns(kind models.DocumentKind, data map[string]any) []string {
	patterns := []string{}

	vendor := stringField(data, "vendor")
	customer := stringField(data, "customer")
	currency := stringField(data, "currency")
	total, hasTotal := numberField(data, "total")

	switch kind {
	case models.KindImage:
		if vendor != "" {
			patterns = append(patterns, "Purchase from "+vendor)
		}
		if category := stringField(data, "category"); category != "" {
			patterns = append(patterns, "Expense category: "+category)
		}
	case models.KindDocument:
		if docType := stringField(data, "document_type"); docType != "" {
			patterns = append(patterns, "Document type: "+docType)
		}
		if customer != "" {
			patterns = append(patterns, "Billed to "+customer)
		}
		if vendor != "" {
			patterns = append(patterns, "Issued by "+vendor)
		}
	case models.KindSpreadsheet:
		if income, ok := numberField(data, "total_income"); ok {
			patterns = append(patterns, fmt.Sprintf("Income total: %.2f", income))
		}
		if expenses, ok := numberField(data, "total_expenses"); ok {
			patterns = append(patterns, fmt.Sprintf("Expense total: %.2f", expenses))
		}
		if categories := listField(data, "categories"); len(categories) > 0 {
			patterns = append(patterns, "Categories: "+strings.Join(categories, ", "))
		}
	}

	if hasTotal {
		amount := fmt.Sprintf("Amount: %.2f", total)
		if currency != "" {
			amount += " " + strings.ToUpper(currency)
		}
		patterns = append(patterns, amount)
	}
	return patterns
}

// relatedCategories picks the learnings a document adds evidence to
func relatedCategories(kind models.DocumentKind, data map[string]any) map[models.LearningCategory]bool {
	related := make(map[models.LearningCategory]bool)
	_, hasTotal := numberField(data, "total")

	switch kind {
	case models.KindImage:
		if hasTotal || stringField(data, "category") != "" {
			related[models.LearningExpenseCategories] = true
		}
		if stringField(data, "vendor") != "" {
			related[models.LearningVendorRelationships] = true
		}
	case models.KindDocument:
		if stringField(data, "customer") != "" {
			related[models.LearningCustomerBehavior] = true
			if hasTotal {
				related[models.LearningRevenuePatterns] = true
			}
		} else if stringField(data, "vendor") != "" {
			related[models.LearningVendorRelationships] = true
			if hasTotal {
				related[models.LearningExpenseCategories] = true
			}
		}
	case models.KindSpreadsheet:
		if _, ok := numberField(data, "total_income"); ok {
			related[models.LearningRevenuePatterns] = true
			related[models.LearningSeasonalTrends] = true
		}
		if _, ok := numberField(data, "total_expenses"); ok {
			related[models.LearningExpenseCategories] = true
		}
	}
	return related
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		cleaned := strings.NewReplacer(",", "", "$", "", "€", "", "£", "").Replace(strings.TrimSpace(v))
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	}
	return 0, false
}

func listField(data map[string]any, key string) []string {
	var out []string
	switch v := data[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
