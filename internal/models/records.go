package models

import "time"

// TransactionType distinguishes money in from money out
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Transaction is a ledger entry from the data store
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	VendorID    string          `json:"vendor_id,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Date        time.Time       `json:"date"`
}

// InvoiceStatus tracks an invoice through its lifecycle
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice is a receivable issued to a customer
type Invoice struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	CustomerID string        `json:"customer_id"`
	Number     string        `json:"number"`
	Total      float64       `json:"total"`
	Currency   string        `json:"currency,omitempty"`
	Status     InvoiceStatus `json:"status"`
	IssueDate  time.Time     `json:"issue_date"`
	DueDate    time.Time     `json:"due_date"`
	PaidDate   *time.Time    `json:"paid_date,omitempty"`
}

// Customer is a party invoices are issued to
type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Vendor is a party purchases are made from
type Vendor struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BusinessLearning is an aggregate insight derived from a batch of financial records
type BusinessLearning struct {
	UserID      string           `json:"user_id"`
	Category    LearningCategory `json:"category"`
	Pattern     string           `json:"pattern"`
	Confidence  float64          `json:"confidence"`
	DataPoints  int              `json:"data_points"`
	LastUpdated time.Time        `json:"last_updated"`
	Insights    []string         `json:"insights"`
}

// DocumentLearning records one ingested document
type DocumentLearning struct {
	UserID        string         `json:"user_id"`
	DocumentType  DocumentKind   `json:"document_type"`
	FileName      string         `json:"file_name,omitempty"`
	URL           string         `json:"url,omitempty"`
	ExtractedData map[string]any `json:"extracted_data"`
	Patterns      []string       `json:"patterns"`
	Timestamp     time.Time      `json:"timestamp"`
}

// LearningStats is a diagnostic snapshot of a user's learnings
type LearningStats struct {
	TotalPatterns          int        `json:"total_patterns"`
	HighConfidencePatterns int        `json:"high_confidence_patterns"`
	DocumentsProcessed     int        `json:"documents_processed"`
	LastUpdated            *time.Time `json:"last_updated,omitempty"`
}
