package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedBackend is returned for an unknown storage type
var ErrUnsupportedBackend = errors.New("unsupported storage type")

// Storage is the structured data store holding a user's bookkeeping records.
// List operations return the newest records first, at most limit of them.
type Storage interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error)
	ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error)
	ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error)

	SaveTransaction(ctx context.Context, tx models.Transaction) error
	SaveInvoice(ctx context.Context, invoice models.Invoice) error
	SaveCustomer(ctx context.Context, customer models.Customer) error
	SaveVendor(ctx context.Context, vendor models.Vendor) error

	Close() error
}

// Manager wraps a storage backend with logging and metrics
type Manager struct {
	storage Storage
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewManager creates a storage manager for the configured backend
func NewManager(ctx context.Context, cfg *config.StorageConfig, metrics *middleware.Metrics, logger *logrus.Logger) (*Manager, error) {
	var (
		backend Storage
		err     error
	)

	switch cfg.Type {
	case "redis":
		backend, err = NewRedisStorage(ctx, &cfg.Redis)
	case "postgres":
		backend, err = NewPostgresStorage(ctx, cfg.Postgres.URL)
	case "memory":
		backend = NewMemoryStorage(&cfg.Memory)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("type", cfg.Type).Info("Storage initialized")
	return NewManagerWithStorage(backend, metrics, logger), nil
}

// NewManagerWithStorage wraps an existing backend
func NewManagerWithStorage(backend Storage, metrics *middleware.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{
		storage: backend,
		metrics: metrics,
		logger:  logger,
	}
}

func (m *Manager) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.logger.WithError(err).WithField("operation", operation).Warn("Storage operation failed")
	}
	m.metrics.RecordStorageOperation(operation, status, time.Since(start))
}

func (m *Manager) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	start := time.Now()
	out, err := m.storage.ListTransactions(ctx, userID, limit)
	m.observe("list_transactions", start, err)
	return out, err
}

func (m *Manager) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	start := time.Now()
	out, err := m.storage.ListInvoices(ctx, userID, limit)
	m.observe("list_invoices", start, err)
	return out, err
}

func (m *Manager) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	start := time.Now()
	out, err := m.storage.ListCustomers(ctx, userID, limit)
	m.observe("list_customers", start, err)
	return out, err
}

func (m *Manager) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	start := time.Now()
	out, err := m.storage.ListVendors(ctx, userID, limit)
	m.observe("list_vendors", start, err)
	return out, err
}

func (m *Manager) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	start := time.Now()
	err := m.storage.SaveTransaction(ctx, tx)
	m.observe("save_transaction", start, err)
	return err
}

func (m *Manager) SaveInvoice(ctx context.Context, invoice models.Invoice) error {
	start := time.Now()
	err := m.storage.SaveInvoice(ctx, invoice)
	m.observe("save_invoice", start, err)
	return err
}

func (m *Manager) SaveCustomer(ctx context.Context, customer models.Customer) error {
	start := time.Now()
	err := m.storage.SaveCustomer(ctx, customer)
	m.observe("save_customer", start, err)
	return err
}

func (m *Manager) SaveVendor(ctx context.Context, vendor models.Vendor) error {
	start := time.Now()
	err := m.storage.SaveVendor(ctx, vendor)
	m.observe("save_vendor", start, err)
	return err
}

func (m *Manager) Close() error {
	return m.storage.Close()
}

func validateRecord(id, userID string) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

// newestFirst sorts by the given timestamp descending and applies limit
func newestFirst[T any](items []T, at func(T) time.Time, limit int) []T {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).After(at(items[j]))
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
