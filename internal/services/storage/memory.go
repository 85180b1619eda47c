package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/patrickmn/go-cache"
)

// MemoryStorage implements storage using in-memory cache
type MemoryStorage struct {
	records *cache.Cache
	mu      sync.Mutex
}

func NewMemoryStorage(cfg *config.MemoryStoreCfg) *MemoryStorage {
	expiration := cache.NoExpiration
	cleanup := cache.NoExpiration
	if cfg != nil && cfg.DefaultExpiration > 0 {
		expiration = cfg.DefaultExpiration
		cleanup = cfg.CleanupInterval
	}
	return &MemoryStorage{
		records: cache.New(expiration, cleanup),
	}
}

func recordKey(collection, userID string) string {
	return fmt.Sprintf("%s:%s", collection, userID)
}

func save[T any](m *MemoryStorage, collection, userID, id string, item T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(collection, userID)
	items, ok := m.records.Get(key)
	if !ok {
		items = make(map[string]T)
	}
	byID := items.(map[string]T)
	byID[id] = item
	m.records.SetDefault(key, byID)
}

func list[T any](m *MemoryStorage, collection, userID string) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.records.Get(recordKey(collection, userID))
	if !ok {
		return []T{}
	}
	byID := items.(map[string]T)
	out := make([]T, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}
	return out
}

func (m *MemoryStorage) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	items := list[models.Transaction](m, "transactions", userID)
	return newestFirst(items, func(t models.Transaction) time.Time { return t.Date }, limit), nil
}

func (m *MemoryStorage) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	items := list[models.Invoice](m, "invoices", userID)
	return newestFirst(items, func(i models.Invoice) time.Time { return i.IssueDate }, limit), nil
}

func (m *MemoryStorage) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	items := list[models.Customer](m, "customers", userID)
	return newestFirst(items, func(c models.Customer) time.Time { return c.CreatedAt }, limit), nil
}

func (m *MemoryStorage) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	items := list[models.Vendor](m, "vendors", userID)
	return newestFirst(items, func(v models.Vendor) time.Time { return v.CreatedAt }, limit), nil
}

func (m *MemoryStorage) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	if err := validateRecord(tx.ID, tx.UserID); err != nil {
		return err
	}
	save(m, "transactions", tx.UserID, tx.ID, tx)
	return nil
}

func (m *MemoryStorage) SaveInvoice(ctx context.Context, invoice models.Invoice) error {
	if err := validateRecord(invoice.ID, invoice.UserID); err != nil {
		return err
	}
	save(m, "invoices", invoice.UserID, invoice.ID, invoice)
	return nil
}

func (m *MemoryStorage) SaveCustomer(ctx context.Context, customer models.Customer) error {
	if err := validateRecord(customer.ID, customer.UserID); err != nil {
		return err
	}
	save(m, "customers", customer.UserID, customer.ID, customer)
	return nil
}

func (m *MemoryStorage) SaveVendor(ctx context.Context, vendor models.Vendor) error {
	if err := validateRecord(vendor.ID, vendor.UserID); err != nil {
		return err
	}
	save(m, "vendors", vendor.UserID, vendor.ID, vendor)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.records.Flush()
	return nil
}
