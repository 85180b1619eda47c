package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/internal/services/ai"
	"github.com/cf-ai-ledger-go/internal/services/cache"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	"github.com/cf-ai-ledger-go/internal/services/objectstore"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu           sync.Mutex
	transactions []models.Transaction
	invoices     []models.Invoice
	customers    []models.Customer
	vendors      []models.Vendor
	errs         map[string]error
	limits       []int
}

func (f *fakeStore) record(limit int) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	f.record(limit)
	return f.transactions, f.errs["transactions"]
}

func (f *fakeStore) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	f.record(limit)
	return f.invoices, f.errs["invoices"]
}

func (f *fakeStore) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	f.record(limit)
	return f.customers, f.errs["customers"]
}

func (f *fakeStore) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	f.record(limit)
	return f.vendors, f.errs["vendors"]
}

type fakeExtractor struct {
	result map[string]any
	err    error
	last   ai.ExtractionRequest
}

func (f *fakeExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (map[string]any, error) {
	f.last = req
	return f.result, f.err
}

type failingObjects struct{}

func (failingObjects) Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	return "", errors.New("bucket missing")
}

type fixture struct {
	learner   *Learner
	store     *fakeStore
	extractor *fakeExtractor
	objects   *objectstore.MemoryStore
	memory    *memory.Service
	clock     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := now
	f := &fixture{
		store:     &fakeStore{errs: map[string]error{}},
		extractor: &fakeExtractor{},
		objects:   objectstore.NewMemoryStore("documents"),
		clock:     &clock,
	}
	clockFn := func() time.Time { return *f.clock }
	f.memory = memory.NewService(memory.Options{Clock: clockFn}, logger.Discard())
	f.learner = NewLearner(Dependencies{
		Store:     f.store,
		Memory:    f.memory,
		Extractor: f.extractor,
		Objects:   f.objects,
		Cache:     cache.NewCache(&config.CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 100}, nil, logger.Discard()),
	}, Options{Clock: clockFn}, logger.Discard())
	return f
}

func income(id string, amount float64, date time.Time) models.Transaction {
	return models.Transaction{ID: id, UserID: "u4", Type: models.TransactionIncome, Amount: amount, Date: date}
}

func expense(id, category, vendorID string, amount float64) models.Transaction {
	return models.Transaction{
		ID: id, UserID: "u4", Type: models.TransactionExpense, Amount: amount,
		Category: category, VendorID: vendorID, Date: now.AddDate(0, -1, 0),
	}
}

func month(m time.Month) time.Time {
	return time.Date(2026, m, 15, 0, 0, 0, 0, time.UTC)
}

func find(learnings []models.BusinessLearning, category models.LearningCategory) (models.BusinessLearning, bool) {
	for _, l := range learnings {
		if l.Category == category {
			return l, true
		}
	}
	return models.BusinessLearning{}, false
}

func TestAnalyzeRevenueTrendIncreasing(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		income("t1", 100, month(time.January)),
		income("t2", 150, month(time.March)),
		income("t3", 250, month(time.May)),
		income("t4", 400, month(time.June)),
	}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	revenue, ok := find(learnings, models.LearningRevenuePatterns)
	require.True(t, ok)
	assert.Contains(t, revenue.Pattern, "increasing")
	assert.Contains(t, revenue.Pattern, "+300.0%")
	assert.Equal(t, 4, revenue.DataPoints)
	assert.Equal(t, "u4", revenue.UserID)
	assert.Equal(t, now, revenue.LastUpdated)
	assert.Contains(t, revenue.Insights[0], "225.00")
	assert.GreaterOrEqual(t, revenue.Confidence, 0.6)
	assert.LessOrEqual(t, revenue.Confidence, 0.9)
	assert.Equal(t, []int{DefaultFetchLimit, DefaultFetchLimit, DefaultFetchLimit, DefaultFetchLimit}, f.store.limits)
}

func TestAnalyzeRevenueNeedsEnoughMonths(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		income("t1", 400, month(time.January)),
		income("t2", 300, month(time.February)),
		income("t3", 100, month(time.April)),
	}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	_, ok := find(learnings, models.LearningRevenuePatterns)
	assert.False(t, ok)

	f.store.transactions = append(f.store.transactions, income("t4", 50, month(time.June)))
	learnings = f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	revenue, ok := find(learnings, models.LearningRevenuePatterns)
	require.True(t, ok)
	assert.Contains(t, revenue.Pattern, "decreasing")
}

func TestAnalyzeExpenseBreakdown(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		expense("e1", "Rent", "", 1000),
		expense("e2", "Rent", "", 1000),
		expense("e3", "Software", "", 500),
		expense("e4", "Travel", "", 300),
		expense("e5", "Meals", "", 200),
	}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	expenses, ok := find(learnings, models.LearningExpenseCategories)
	require.True(t, ok)
	assert.Equal(t, "Top expense category is Rent at 66.7% of expenses", expenses.Pattern)
	assert.Equal(t, []string{
		"Rent: 2000.00 (66.7% of expenses)",
		"Software: 500.00 (16.7% of expenses)",
		"Travel: 300.00 (10.0% of expenses)",
	}, expenses.Insights)
	assert.Equal(t, 5, expenses.DataPoints)
}

func TestAnalyzeCustomerBehaviorKeepsApproximation(t *testing.T) {
	f := newFixture(t)
	due := month(time.March)
	early, late := due.AddDate(0, 0, -2), due.AddDate(0, 0, 5)
	f.store.invoices = []models.Invoice{
		{ID: "i1", UserID: "u4", Status: models.InvoicePaid, DueDate: due, PaidDate: &early},
		{ID: "i2", UserID: "u4", Status: models.InvoicePaid, DueDate: due, PaidDate: &due},
		{ID: "i3", UserID: "u4", Status: models.InvoicePaid, DueDate: due, PaidDate: &early},
		{ID: "i4", UserID: "u4", Status: models.InvoicePaid, DueDate: due, PaidDate: &late},
		{ID: "i5", UserID: "u4", Status: models.InvoiceSent, DueDate: due},
	}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	customers, ok := find(learnings, models.LearningCustomerBehavior)
	require.True(t, ok)
	assert.Equal(t, "75% of paid invoices are settled on or before the due date", customers.Pattern)
	assert.Contains(t, customers.Insights, "1 of 4 paid invoices were paid late")
	assert.Contains(t, customers.Insights, "Customers take a 30-day average to pay")
	assert.Contains(t, customers.Insights, "1 invoices are still outstanding")
}

func TestAnalyzeSeasonalNeedsTwelvePoints(t *testing.T) {
	f := newFixture(t)
	var txs []models.Transaction
	for i := 0; i < 11; i++ {
		m := time.Month(i%12 + 1)
		amount := 100.0
		if m <= time.March {
			amount = 1000
		}
		txs = append(txs, income(fmt.Sprintf("t%d", i), amount, month(m)))
	}
	f.store.transactions = txs

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	_, ok := find(learnings, models.LearningSeasonalTrends)
	assert.False(t, ok)

	f.store.transactions = append(txs, income("t11", 100, month(time.December)))
	learnings = f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	seasonal, ok := find(learnings, models.LearningSeasonalTrends)
	require.True(t, ok)
	// Winter 3000 of 3900
	assert.Equal(t, "Winter is the strongest season at 76.9% of revenue", seasonal.Pattern)
	assert.Len(t, seasonal.Insights, 2)
}

func TestSeasonOf(t *testing.T) {
	assert.Equal(t, "Winter", seasons[seasonOf(month(time.March))])
	assert.Equal(t, "Spring", seasons[seasonOf(month(time.April))])
	assert.Equal(t, "Summer", seasons[seasonOf(month(time.September))])
	assert.Equal(t, "Fall", seasons[seasonOf(month(time.October))])
}

func TestAnalyzeVendorConcentration(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		expense("e1", "Supplies", "v1", 100),
		expense("e2", "Supplies", "v1", 100),
		expense("e3", "Supplies", "v1", 100),
		expense("e4", "Printing", "v2", 50),
		expense("e5", "Printing", "v2", 50),
	}
	f.store.vendors = []models.Vendor{{ID: "v1", UserID: "u4", Name: "Paper Co"}}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	vendors, ok := find(learnings, models.LearningVendorRelationships)
	require.True(t, ok)
	assert.Equal(t, "Paper Co accounts for 75.0% of expenses", vendors.Pattern)
	assert.Contains(t, vendors.Insights, "Spending is spread across 2 vendors")
}

func TestAnalyzeVendorShareCountsUnattributedExpenses(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.store.transactions = append(f.store.transactions,
			expense(fmt.Sprintf("v%d", i), "Supplies", "v1", 100),
			expense(fmt.Sprintf("n%d", i), "Supplies", "", 100),
		)
	}

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	vendors, ok := find(learnings, models.LearningVendorRelationships)
	require.True(t, ok)
	assert.Equal(t, "v1 accounts for 50.0% of expenses", vendors.Pattern)
	assert.Equal(t, 5, vendors.DataPoints)
	assert.Contains(t, vendors.Insights, "Vendor spending is well diversified")
}

func TestAnalyzeReplacesPreviousLearnings(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		expense("e1", "Rent", "", 1000),
		expense("e2", "Rent", "", 1000),
		expense("e3", "Software", "", 500),
		expense("e4", "Travel", "", 300),
		expense("e5", "Meals", "", 200),
	}
	require.NotEmpty(t, f.learner.AnalyzeBusinessPatterns(context.Background(), "u4"))

	f.store.transactions = nil
	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	assert.NotNil(t, learnings)
	assert.Empty(t, learnings)
	assert.Empty(t, f.learner.GetLearnings("u4"))
}

func TestAnalyzeToleratesFailedSources(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		income("t1", 100, month(time.January)),
		income("t2", 200, month(time.June)),
	}
	f.store.invoices = []models.Invoice{{ID: "i1"}}
	f.store.errs["invoices"] = errors.New("connection reset")
	f.store.errs["vendors"] = errors.New("connection reset")

	learnings := f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	_, ok := find(learnings, models.LearningRevenuePatterns)
	assert.True(t, ok)

	f.store.errs["transactions"] = errors.New("timeout")
	assert.Empty(t, f.learner.AnalyzeBusinessPatterns(context.Background(), "u4"))
}

func TestAnalyzeInfersBusinessContext(t *testing.T) {
	f := newFixture(t)
	f.store.transactions = []models.Transaction{
		{ID: "t1", Type: models.TransactionIncome, Amount: 10000, Currency: "eur", Date: month(time.January)},
		{ID: "t2", Type: models.TransactionIncome, Amount: 10000, Currency: "EUR", Date: month(time.February)},
		{ID: "t3", Type: models.TransactionExpense, Amount: 300, Category: "Software subscriptions", Currency: "EUR", Date: month(time.February)},
		{ID: "t4", Type: models.TransactionExpense, Amount: 90, Category: "Cloud hosting", Currency: "USD", Date: month(time.February)},
	}

	f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	ctx, ok := f.memory.GetBusinessContext("u4")
	require.True(t, ok)
	assert.Equal(t, "technology", ctx.Industry)
	assert.Equal(t, "service", ctx.BusinessType)
	assert.Equal(t, "100K-500K", ctx.RevenueRange)
	assert.Equal(t, "EUR", ctx.PrimaryCurrency)

	f.memory.UpdateBusinessContext("u4", models.BusinessContextUpdate{Industry: models.StringPtr("publishing")})
	f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")
	ctx, _ = f.memory.GetBusinessContext("u4")
	assert.Equal(t, "publishing", ctx.Industry)
}

func seedLearnings(t *testing.T, f *fixture) {
	t.Helper()
	f.store.transactions = []models.Transaction{
		income("t1", 100, month(time.January)),
		income("t2", 400, month(time.June)),
		expense("e1", "Rent", "v1", 1000),
		expense("e2", "Rent", "v1", 1000),
		expense("e3", "Software", "v2", 500),
		expense("e4", "Travel", "v2", 300),
		expense("e5", "Meals", "v2", 200),
	}
	due := month(time.March)
	paid := due.AddDate(0, 0, 3)
	for i := 0; i < 5; i++ {
		f.store.invoices = append(f.store.invoices, models.Invoice{
			ID: fmt.Sprintf("i%d", i), UserID: "u4", Status: models.InvoicePaid, DueDate: due, PaidDate: &paid,
		})
	}
	require.Len(t, f.learner.AnalyzeBusinessPatterns(context.Background(), "u4"), 4)
}

func TestGetPersonalizedInsightsFiltersByConfidence(t *testing.T) {
	f := newFixture(t)
	seedLearnings(t, f)

	insights := f.learner.GetPersonalizedInsights("u4")

	require.NotEmpty(t, insights)
	assert.Contains(t, insights[0], "Revenue Patterns: Revenue is increasing")
	assert.Contains(t, insights, "- Rent: 2000.00 (66.7% of expenses)")
	for _, line := range insights {
		assert.NotContains(t, line, "Customer Behavior", "customer learning is below the threshold")
	}
	assert.Empty(t, f.learner.GetPersonalizedInsights("nobody"))
}

func TestInsightCacheIsInvalidatedByAnalysis(t *testing.T) {
	f := newFixture(t)
	seedLearnings(t, f)
	require.NotEmpty(t, f.learner.GetPersonalizedInsights("u4"))

	f.store.transactions = nil
	f.store.invoices = nil
	f.learner.AnalyzeBusinessPatterns(context.Background(), "u4")

	assert.Empty(t, f.learner.GetPersonalizedInsights("u4"))
}

func TestProcessMultiModalInputReceipt(t *testing.T) {
	f := newFixture(t)
	seedLearnings(t, f)
	f.extractor.result = map[string]any{
		"vendor":   "Paper Co",
		"total":    42.5,
		"currency": "usd",
		"category": "Office supplies",
	}

	data, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "receipt.png", "image/png", []byte("png"), models.KindImage)
	require.NoError(t, err)
	assert.Equal(t, "Paper Co", data["vendor"])

	assert.Equal(t, models.KindImage, f.extractor.last.Kind)
	assert.Contains(t, f.extractor.last.Schema, "vendor")
	assert.Equal(t, 1, f.objects.Len())

	export := f.learner.ExportUserData("u4")
	require.Len(t, export.Documents, 1)
	doc := export.Documents[0]
	assert.NotEmpty(t, doc.URL)
	assert.Equal(t, []string{"Purchase from Paper Co", "Expense category: Office supplies", "Amount: 42.50 USD"}, doc.Patterns)

	expenses, _ := find(f.learner.GetLearnings("u4"), models.LearningExpenseCategories)
	assert.InDelta(t, 0.95, expenses.Confidence, 1e-9)
	assert.Equal(t, 6, expenses.DataPoints)
	vendors, _ := find(f.learner.GetLearnings("u4"), models.LearningVendorRelationships)
	assert.InDelta(t, 0.85, vendors.Confidence, 1e-9)
	revenue, _ := find(f.learner.GetLearnings("u4"), models.LearningRevenuePatterns)
	assert.InDelta(t, revenueConfidence, revenue.Confidence, 1e-9)

	// A second receipt cannot push confidence past the cap.
	_, err = f.learner.ProcessMultiModalInput(context.Background(), "u4", "receipt2.png", "image/png", []byte("png"), models.KindImage)
	require.NoError(t, err)
	expenses, _ = find(f.learner.GetLearnings("u4"), models.LearningExpenseCategories)
	assert.InDelta(t, 0.95, expenses.Confidence, 1e-9)
	assert.Equal(t, 7, expenses.DataPoints)
}

func TestProcessMultiModalInputToleratesPartialFields(t *testing.T) {
	f := newFixture(t)
	f.extractor.result = map[string]any{"total": "1,234.50", "unexpected": []any{1, 2}}

	data, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "books.xlsx", "application/vnd.ms-excel", []byte("x"), models.KindSpreadsheet)
	require.NoError(t, err)
	assert.Len(t, data, 2)

	docs := f.learner.ExportUserData("u4").Documents
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"Amount: 1234.50"}, docs[0].Patterns)
}

func TestProcessMultiModalInputRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)

	data, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "a.mp3", "audio/mpeg", nil, models.DocumentKind("audio"))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestProcessMultiModalInputExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = ai.ErrEmptyResponse

	data, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "inv.pdf", "application/pdf", []byte("%PDF"), models.KindDocument)
	assert.ErrorIs(t, err, ai.ErrEmptyResponse)
	assert.NotNil(t, data)
	assert.Empty(t, data)
	assert.Zero(t, f.learner.GetLearningStats("u4").DocumentsProcessed)
}

func TestProcessMultiModalInputContinuesWhenUploadFails(t *testing.T) {
	f := newFixture(t)
	f.learner.deps.Objects = failingObjects{}
	f.extractor.result = map[string]any{"customer": "Globex", "total": 900.0}

	_, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "inv.pdf", "application/pdf", []byte("%PDF"), models.KindDocument)
	require.NoError(t, err)

	docs := f.learner.ExportUserData("u4").Documents
	require.Len(t, docs, 1)
	assert.Empty(t, docs[0].URL)
	assert.Contains(t, docs[0].Patterns, "Billed to Globex")
}

func TestGetLearningStats(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, models.LearningStats{}, f.learner.GetLearningStats("u4"))

	seedLearnings(t, f)
	*f.clock = now.Add(time.Hour)
	f.extractor.result = map[string]any{"vendor": "Paper Co"}
	_, err := f.learner.ProcessMultiModalInput(context.Background(), "u4", "r.jpg", "image/jpeg", []byte("jpg"), models.KindImage)
	require.NoError(t, err)

	stats := f.learner.GetLearningStats("u4")
	assert.Equal(t, 4, stats.TotalPatterns)
	assert.Equal(t, 3, stats.HighConfidencePatterns)
	assert.Equal(t, 1, stats.DocumentsProcessed)
	require.NotNil(t, stats.LastUpdated)
	assert.Equal(t, now.Add(time.Hour), *stats.LastUpdated)
}

func TestDeleteUserData(t *testing.T) {
	f := newFixture(t)
	seedLearnings(t, f)
	require.NotEmpty(t, f.learner.GetPersonalizedInsights("u4"))

	f.learner.DeleteUserData("u4")

	assert.Empty(t, f.learner.GetLearnings("u4"))
	assert.Empty(t, f.learner.GetPersonalizedInsights("u4"))
	assert.Equal(t, models.LearningStats{}, f.learner.GetLearningStats("u4"))
}

func TestLearnerCleanExpiredData(t *testing.T) {
	f := newFixture(t)
	seedLearnings(t, f)

	*f.clock = now.Add(29 * 24 * time.Hour)
	assert.Zero(t, f.learner.CleanExpiredData())

	*f.clock = now.Add(31 * 24 * time.Hour)
	assert.Equal(t, 4, f.learner.CleanExpiredData())
	assert.Empty(t, f.learner.GetLearnings("u4"))
}
