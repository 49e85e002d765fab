package store

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stocksim/internal/domain"
)

// Store is the persistence layer for the exchange: companies, accounts,
// holdings, orders and trades over a single SQLite database. The store
// is the source of truth; the in-memory order book is a derived index
// rebuilt from it on startup.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// SQLite runs a single writer, which makes the settlement transaction
// serializable without a database server.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&domain.Company{},
		&domain.Account{},
		&domain.Holding{},
		&domain.Order{},
		&domain.Trade{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// WithTx runs fn inside a transaction. Returning an error from fn rolls
// back every write made through the tx-scoped Store; nil commits.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
