package storage

import (
	"context"
	"fmt"

	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage reads bookkeeping records from PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

// schema keys every table by (user_id, id) so record IDs never collide across users
var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			vendor_id TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, id)
		);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, date);`,
	`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL DEFAULT '',
			total DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			issue_date TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			paid_date TIMESTAMPTZ,
			PRIMARY KEY (user_id, id)
		);`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_user_issue ON invoices (user_id, issue_date);`,
	`CREATE TABLE IF NOT EXISTS customers (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, id)
		);`,
	`CREATE TABLE IF NOT EXISTS vendors (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, id)
		);`,
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// pgLimit maps a non-positive limit to no limit
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func (s *PostgresStorage) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, amount, category, description, vendor_id, currency, date
		 FROM transactions WHERE user_id=$1 ORDER BY date DESC LIMIT $2`,
		userID, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return collect(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		var t models.Transaction
		err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Category, &t.Description, &t.VendorID, &t.Currency, &t.Date)
		return t, err
	})
}

func (s *PostgresStorage) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, customer_id, number, total, currency, status, issue_date, due_date, paid_date
		 FROM invoices WHERE user_id=$1 ORDER BY issue_date DESC LIMIT $2`,
		userID, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	return collect(rows, func(row pgx.CollectableRow) (models.Invoice, error) {
		var i models.Invoice
		err := row.Scan(&i.ID, &i.UserID, &i.CustomerID, &i.Number, &i.Total, &i.Currency, &i.Status, &i.IssueDate, &i.DueDate, &i.PaidDate)
		return i, err
	})
}

func (s *PostgresStorage) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, email, created_at
		 FROM customers WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	return collect(rows, func(row pgx.CollectableRow) (models.Customer, error) {
		var c models.Customer
		err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.CreatedAt)
		return c, err
	})
}

func (s *PostgresStorage) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, category, created_at
		 FROM vendors WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	return collect(rows, func(row pgx.CollectableRow) (models.Vendor, error) {
		var v models.Vendor
		err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.Category, &v.CreatedAt)
		return v, err
	})
}

func collect[T any](rows pgx.Rows, scan func(pgx.CollectableRow) (T, error)) ([]T, error) {
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (s *PostgresStorage) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	if err := validateRecord(tx.ID, tx.UserID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, category, description, vendor_id, currency, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, id) DO UPDATE SET type=EXCLUDED.type, amount=EXCLUDED.amount, category=EXCLUDED.category,
		   description=EXCLUDED.description, vendor_id=EXCLUDED.vendor_id, currency=EXCLUDED.currency, date=EXCLUDED.date`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount, tx.Category, tx.Description, tx.VendorID, tx.Currency, tx.Date,
	)
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveInvoice(ctx context.Context, invoice models.Invoice) error {
	if err := validateRecord(invoice.ID, invoice.UserID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices (id, user_id, customer_id, number, total, currency, status, issue_date, due_date, paid_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, id) DO UPDATE SET customer_id=EXCLUDED.customer_id, number=EXCLUDED.number, total=EXCLUDED.total,
		   currency=EXCLUDED.currency, status=EXCLUDED.status, issue_date=EXCLUDED.issue_date,
		   due_date=EXCLUDED.due_date, paid_date=EXCLUDED.paid_date`,
		invoice.ID, invoice.UserID, invoice.CustomerID, invoice.Number, invoice.Total, invoice.Currency,
		string(invoice.Status), invoice.IssueDate, invoice.DueDate, invoice.PaidDate,
	)
	if err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveCustomer(ctx context.Context, customer models.Customer) error {
	if err := validateRecord(customer.ID, customer.UserID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customers (id, user_id, name, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email`,
		customer.ID, customer.UserID, customer.Name, customer.Email, customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveVendor(ctx context.Context, vendor models.Vendor) error {
	if err := validateRecord(vendor.ID, vendor.UserID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendors (id, user_id, name, category, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, id) DO UPDATE SET name=EXCLUDED.name, category=EXCLUDED.category`,
		vendor.ID, vendor.UserID, vendor.Name, vendor.Category, vendor.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
