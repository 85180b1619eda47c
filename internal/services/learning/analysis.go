package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/pkg/gather"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Confidence per learning reflects how directly the statistic comes from records.
const (
	revenueConfidence  = 0.85
	expenseConfidence  = 0.9
	customerConfidence = 0.6
	seasonalConfidence = 0.7
	vendorConfidence   = 0.8

	trendThreshold = 5.0
)

// records is one fetched batch of a user's data
type records struct {
	transactions []models.Transaction
	invoices     []models.Invoice
	customers    []models.Customer
	vendors      []models.Vendor
}

// AnalyzeBusinessPatterns recomputes the user's learnings from their records,
// replacing any previous set, and writes inferred business facts to memory.
// A failed fetch contributes no records; the result is never nil.
func (l *Learner) AnalyzeBusinessPatterns(ctx context.Context, userID string) []models.BusinessLearning {
	start := time.Now()
	log := logger.WithUser(l.logger, userID)

	batch, failed := l.fetch(ctx, userID)
	if len(failed) > 0 {
		log.WithField("sources", failed).Warn("Some records could not be fetched")
	}

	now := l.opts.Clock()
	var learnings []models.BusinessLearning
	for _, analyze := range []func(records) (models.BusinessLearning, bool){
		l.analyzeRevenue,
		l.analyzeExpenses,
		l.analyzeCustomers,
		l.analyzeSeasonal,
		l.analyzeVendors,
	} {
		learning, ok := analyze(batch)
		if !ok {
			continue
		}
		learning.UserID = userID
		learning.LastUpdated = now
		learnings = append(learnings, learning)
	}
	sortLearnings(learnings)
	if learnings == nil {
		learnings = []models.BusinessLearning{}
	}

	l.mu.Lock()
	l.state(userID).learnings = cloneLearnings(learnings)
	l.mu.Unlock()
	l.invalidate(userID)

	if l.deps.Memory != nil {
		update := inferBusinessContext(batch)
		if existing, ok := l.deps.Memory.GetBusinessContext(userID); ok {
			keepStatedFacts(&update, existing)
		}
		if !update.IsEmpty() {
			l.deps.Memory.UpdateBusinessContext(userID, update)
		}
	}

	status := "success"
	if len(failed) > 0 {
		status = "partial"
	}
	l.opts.Metrics.RecordAnalysis(status, time.Since(start))
	log.WithFields(logrus.Fields{
		"learnings":    len(learnings),
		"transactions": len(batch.transactions),
		"invoices":     len(batch.invoices),
	}).Info("Business patterns analyzed")

	return learnings
}

func (l *Learner) fetch(ctx context.Context, userID string) (records, []string) {
	var batch records
	if l.deps.Store == nil {
		return batch, []string{"store"}
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.FetchTimeout)
	defer cancel()

	limit := l.opts.FetchLimit
	failures := gather.All(ctx,
		gather.Task{
			Name: "transactions",
			Run: func(ctx context.Context) (err error) {
				batch.transactions, err = l.deps.Store.ListTransactions(ctx, userID, limit)
				return err
			},
			Fallback: func() { batch.transactions = nil },
		},
		gather.Task{
			Name: "invoices",
			Run: func(ctx context.Context) (err error) {
				batch.invoices, err = l.deps.Store.ListInvoices(ctx, userID, limit)
				return err
			},
			Fallback: func() { batch.invoices = nil },
		},
		gather.Task{
			Name: "customers",
			Run: func(ctx context.Context) (err error) {
				batch.customers, err = l.deps.Store.ListCustomers(ctx, userID, limit)
				return err
			},
			Fallback: func() { batch.customers = nil },
		},
		gather.Task{
			Name: "vendors",
			Run: func(ctx context.Context) (err error) {
				batch.vendors, err = l.deps.Store.ListVendors(ctx, userID, limit)
				return err
			},
			Fallback: func() { batch.vendors = nil },
		},
	)
	return batch, gather.Names(failures)
}

func byType(txs []models.Transaction, t models.TransactionType) []models.Transaction {
	var out []models.Transaction
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// monthsSpanned counts calendar months from the earliest to the latest date, inclusive
func monthsSpanned(txs []models.Transaction) int {
	if len(txs) == 0 {
		return 0
	}
	first, last := txs[0].Date.UTC(), txs[0].Date.UTC()
	for _, tx := range txs[1:] {
		d := tx.Date.UTC()
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	return (last.Year()-first.Year())*12 + int(last.Month()-first.Month()) + 1
}

func (l *Learner) analyzeRevenue(batch records) (models.BusinessLearning, bool) {
	income := byType(batch.transactions, models.TransactionIncome)
	if monthsSpanned(income) < l.opts.MinDataPoints {
		return models.BusinessLearning{}, false
	}

	buckets := make(map[string]float64)
	for _, tx := range income {
		buckets[monthKey(tx.Date)] += tx.Amount
	}
	if len(buckets) < 2 {
		return models.BusinessLearning{}, false
	}
	months := make([]string, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Strings(months)

	values := make([]float64, len(months))
	for i, m := range months {
		values[i] = buckets[m]
	}
	first, last := values[0], values[len(values)-1]
	change := 0.0
	if first != 0 {
		change = (last - first) / math.Abs(first) * 100
	}
	mean, stddev := meanStddev(values)
	volatility := 0.0
	if mean != 0 {
		volatility = stddev / mean * 100
	}

	direction := "stable"
	switch {
	case change > trendThreshold:
		direction = "increasing"
	case change < -trendThreshold:
		direction = "decreasing"
	}

	insights := []string{
		fmt.Sprintf("Average monthly revenue is %.2f", mean),
		fmt.Sprintf("Revenue volatility is %.1f%%", volatility),
	}
	if volatility > 30 {
		insights = append(insights, "Revenue varies considerably month to month; keep a cash buffer")
	} else {
		insights = append(insights, "Revenue is relatively consistent month to month")
	}

	return models.BusinessLearning{
		Category:   models.LearningRevenuePatterns,
		Pattern:    fmt.Sprintf("Revenue is %s (%+.1f%% from %s to %s)", direction, change, months[0], months[len(months)-1]),
		Confidence: revenueConfidence,
		DataPoints: len(income),
		Insights:   insights,
	}, true
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

type share struct {
	name   string
	amount float64
}

// ranked sorts totals descending, breaking ties by name
func ranked(totals map[string]float64) []share {
	out := make([]share, 0, len(totals))
	for name, amount := range totals {
		out = append(out, share{name, amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].amount != out[j].amount {
			return out[i].amount > out[j].amount
		}
		return out[i].name < out[j].name
	})
	return out
}

func percent(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}

func (l *Learner) analyzeExpenses(batch records) (models.BusinessLearning, bool) {
	expenses := byType(batch.transactions, models.TransactionExpense)
	if len(expenses) < l.opts.MinDataPoints {
		return models.BusinessLearning{}, false
	}

	totals := make(map[string]float64)
	var total float64
	for _, tx := range expenses {
		category := strings.TrimSpace(tx.Category)
		if category == "" {
			category = "Uncategorized"
		}
		totals[category] += tx.Amount
		total += tx.Amount
	}

	top := ranked(totals)
	if len(top) > 3 {
		top = top[:3]
	}
	insights := make([]string, 0, len(top))
	for _, s := range top {
		insights = append(insights, fmt.Sprintf("%s: %.2f (%.1f%% of expenses)", s.name, s.amount, percent(s.amount, total)))
	}

	return models.BusinessLearning{
		Category:   models.LearningExpenseCategories,
		Pattern:    fmt.Sprintf("Top expense category is %s at %.1f%% of expenses", top[0].name, percent(top[0].amount, total)),
		Confidence: expenseConfidence,
		DataPoints: len(expenses),
		Insights:   insights,
	}, true
}

func (l *Learner) analyzeCustomers(batch records) (models.BusinessLearning, bool) {
	if len(batch.invoices) < l.opts.MinDataPoints {
		return models.BusinessLearning{}, false
	}

	var paid, onTime, outstanding int
	for _, inv := range batch.invoices {
		switch {
		case inv.PaidDate != nil:
			paid++
			if !inv.PaidDate.After(inv.DueDate) {
				onTime++
			}
		case inv.Status == models.InvoiceSent || inv.Status == models.InvoiceOverdue:
			outstanding++
		}
	}
	if paid == 0 {
		return models.BusinessLearning{}, false
	}

	onTimePct := percent(float64(onTime), float64(paid))
	insights := []string{
		fmt.Sprintf("%d of %d paid invoices were paid late", paid-onTime, paid),
		// Approximation: payment time is not computed from the records.
		"Customers take a 30-day average to pay",
	}
	if outstanding > 0 {
		insights = append(insights, fmt.Sprintf("%d invoices are still outstanding", outstanding))
	} else if len(batch.customers) > 0 {
		insights = append(insights, fmt.Sprintf("%d customers on record", len(batch.customers)))
	}

	return models.BusinessLearning{
		Category:   models.LearningCustomerBehavior,
		Pattern:    fmt.Sprintf("%.0f%% of paid invoices are settled on or before the due date", onTimePct),
		Confidence: customerConfidence,
		DataPoints: len(batch.invoices),
		Insights:   insights,
	}, true
}

var seasons = []string{"Winter", "Spring", "Summer", "Fall"}

// seasonOf maps Jan-Mar to Winter, Apr-Jun to Spring, Jul-Sep to Summer and Oct-Dec to Fall
func seasonOf(t time.Time) int {
	return (int(t.UTC().Month()) - 1) / 3
}

func (l *Learner) analyzeSeasonal(batch records) (models.BusinessLearning, bool) {
	income := byType(batch.transactions, models.TransactionIncome)
	if len(income) < l.opts.MinSeasonalPoints {
		return models.BusinessLearning{}, false
	}

	var totals [4]float64
	var total float64
	for _, tx := range income {
		totals[seasonOf(tx.Date)] += tx.Amount
		total += tx.Amount
	}
	if total == 0 {
		return models.BusinessLearning{}, false
	}

	strongest, weakest := 0, 0
	for i := range totals {
		if totals[i] > totals[strongest] {
			strongest = i
		}
		if totals[i] < totals[weakest] {
			weakest = i
		}
	}

	return models.BusinessLearning{
		Category:   models.LearningSeasonalTrends,
		Pattern:    fmt.Sprintf("%s is the strongest season at %.1f%% of revenue", seasons[strongest], percent(totals[strongest], total)),
		Confidence: seasonalConfidence,
		DataPoints: len(income),
		Insights: []string{
			fmt.Sprintf("%s brings in the least revenue (%.1f%%)", seasons[weakest], percent(totals[weakest], total)),
			fmt.Sprintf("Build reserves ahead of %s to smooth cash flow", seasons[weakest]),
		},
	}, true
}

func (l *Learner) analyzeVendors(batch records) (models.BusinessLearning, bool) {
	expenses := byType(batch.transactions, models.TransactionExpense)
	var spend []models.Transaction
	var total float64
	for _, tx := range expenses {
		total += tx.Amount
		if tx.VendorID != "" {
			spend = append(spend, tx)
		}
	}
	if len(spend) < l.opts.MinDataPoints {
		return models.BusinessLearning{}, false
	}

	names := make(map[string]string, len(batch.vendors))
	for _, v := range batch.vendors {
		names[v.ID] = v.Name
	}

	// share is of all expenses, so spend without a vendor dilutes it
	totals := make(map[string]float64)
	for _, tx := range spend {
		totals[tx.VendorID] += tx.Amount
	}

	top := ranked(totals)
	name := names[top[0].name]
	if name == "" {
		name = top[0].name
	}
	topShare := percent(top[0].amount, total)

	insights := []string{fmt.Sprintf("Spending is spread across %d vendors", len(totals))}
	if topShare > 50 {
		insights = append(insights, "Spending is concentrated with one vendor; consider alternatives to reduce supplier risk")
	} else {
		insights = append(insights, "Vendor spending is well diversified")
	}

	return models.BusinessLearning{
		Category:   models.LearningVendorRelationships,
		Pattern:    fmt.Sprintf("%s accounts for %.1f%% of expenses", name, topShare),
		Confidence: vendorConfidence,
		DataPoints: len(spend),
		Insights:   insights,
	}, true
}

var industryKeywords = []struct {
	industry string
	keywords []string
}{
	{"retail", []string{"inventory", "merchandise", "wholesale", "stock"}},
	{"technology", []string{"software", "hosting", "saas", "cloud", "developer"}},
	{"construction", []string{"materials", "lumber", "equipment rental", "contractor"}},
	{"food service", []string{"food", "restaurant", "catering", "kitchen"}},
	{"professional services", []string{"consulting", "legal", "accounting", "advisory"}},
}

// inferBusinessContext guesses business facts from the records with simple heuristics
func inferBusinessContext(batch records) models.BusinessContextUpdate {
	var update models.BusinessContextUpdate

	hits := make(map[string]int)
	productBased := false
	for _, tx := range batch.transactions {
		text := strings.ToLower(tx.Category + " " + tx.Description)
		for _, group := range industryKeywords {
			for _, kw := range group.keywords {
				if strings.Contains(text, kw) {
					hits[group.industry]++
					if group.industry == "retail" {
						productBased = true
					}
				}
			}
		}
	}
	best, bestHits := "", 0
	for _, group := range industryKeywords {
		if hits[group.industry] > bestHits {
			best, bestHits = group.industry, hits[group.industry]
		}
	}
	if best != "" {
		update.Industry = models.StringPtr(best)
	}

	if len(batch.transactions) > 0 || len(batch.invoices) > 0 {
		businessType := "service"
		if productBased {
			businessType = "product"
		}
		if len(batch.invoices) > 0 {
			businessType += " (B2B)"
		}
		update.BusinessType = models.StringPtr(businessType)
	}

	income := byType(batch.transactions, models.TransactionIncome)
	if months := monthsSpanned(income); months > 0 {
		var total float64
		for _, tx := range income {
			total += tx.Amount
		}
		update.RevenueRange = models.StringPtr(revenueRange(total / float64(months) * 12))
	}

	if currency := dominantCurrency(batch); currency != "" {
		update.PrimaryCurrency = models.StringPtr(currency)
	}
	return update
}

// keepStatedFacts drops guesses for descriptive fields the user already has.
// Revenue range and currency follow the data and are always refreshed.
func keepStatedFacts(update *models.BusinessContextUpdate, existing models.BusinessContext) {
	if existing.Industry != "" {
		update.Industry = nil
	}
	if existing.BusinessType != "" {
		update.BusinessType = nil
	}
}

func revenueRange(annual float64) string {
	switch {
	case annual < 100_000:
		return "under 100K"
	case annual < 500_000:
		return "100K-500K"
	case annual < 1_000_000:
		return "500K-1M"
	case annual < 5_000_000:
		return "1M-5M"
	default:
		return "5M+"
	}
}

func dominantCurrency(batch records) string {
	counts := make(map[string]float64)
	for _, tx := range batch.transactions {
		if tx.Currency != "" {
			counts[strings.ToUpper(tx.Currency)]++
		}
	}
	for _, inv := range batch.invoices {
		if inv.Currency != "" {
			counts[strings.ToUpper(inv.Currency)]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	return ranked(counts)[0].name
}
