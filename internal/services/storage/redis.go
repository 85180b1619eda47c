package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/go-redis/redis/v8"
)

// RedisStorage keeps each user's records of one kind in a hash keyed by record ID
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(ctx context.Context, cfg *config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(collection, userID string) string {
	if r.prefix == "" {
		return fmt.Sprintf("%s:%s", collection, userID)
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, collection, userID)
}

func redisSave(ctx context.Context, r *RedisStorage, collection, userID, id string, item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", collection, err)
	}
	if err := r.client.HSet(ctx, r.key(collection, userID), id, data).Err(); err != nil {
		return fmt.Errorf("save %s record: %w", collection, err)
	}
	return nil
}

func redisList[T any](ctx context.Context, r *RedisStorage, collection, userID string) ([]T, error) {
	values, err := r.client.HVals(ctx, r.key(collection, userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list %s records: %w", collection, err)
	}

	out := make([]T, 0, len(values))
	for _, raw := range values {
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *RedisStorage) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	items, err := redisList[models.Transaction](ctx, r, "transactions", userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(items, func(t models.Transaction) time.Time { return t.Date }, limit), nil
}

func (r *RedisStorage) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	items, err := redisList[models.Invoice](ctx, r, "invoices", userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(items, func(i models.Invoice) time.Time { return i.IssueDate }, limit), nil
}

func (r *RedisStorage) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	items, err := redisList[models.Customer](ctx, r, "customers", userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(items, func(c models.Customer) time.Time { return c.CreatedAt }, limit), nil
}

func (r *RedisStorage) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	items, err := redisList[models.Vendor](ctx, r, "vendors", userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(items, func(v models.Vendor) time.Time { return v.CreatedAt }, limit), nil
}

func (r *RedisStorage) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	if err := validateRecord(tx.ID, tx.UserID); err != nil {
		return err
	}
	return redisSave(ctx, r, "transactions", tx.UserID, tx.ID, tx)
}

func (r *RedisStorage) SaveInvoice(ctx context.Context, invoice models.Invoice) error {
	if err := validateRecord(invoice.ID, invoice.UserID); err != nil {
		return err
	}
	return redisSave(ctx, r, "invoices", invoice.UserID, invoice.ID, invoice)
}

func (r *RedisStorage) SaveCustomer(ctx context.Context, customer models.Customer) error {
	if err := validateRecord(customer.ID, customer.UserID); err != nil {
		return err
	}
	return redisSave(ctx, r, "customers", customer.UserID, customer.ID, customer)
}

func (r *RedisStorage) SaveVendor(ctx context.Context, vendor models.Vendor) error {
	if err := validateRecord(vendor.ID, vendor.UserID); err != nil {
		return err
	}
	return redisSave(ctx, r, "vendors", vendor.UserID, vendor.ID, vendor)
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
