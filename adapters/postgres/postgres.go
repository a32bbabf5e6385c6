package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lborres/workdeck"
)

type Adapter struct {
	db *gorm.DB
}

var _ workdeck.AuthStorage = (*Adapter)(nil)

func New(db *gorm.DB) *Adapter {
	return &Adapter{
		db: db,
	}
}

// Open wraps pool in a database/sql handle and opens gorm on top of it.
// The returned *sql.DB shares the pool and is what migrations run against.
func Open(pool *pgxpool.Pool) (*Adapter, *sql.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)

	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return New(db), sqlDB, nil
}

// Transaction runs fn in a database transaction; the Adapter handed to fn is
// bound to it.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx workdeck.AuthStorage) error) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Adapter{db: tx})
	})
}

func (a *Adapter) conn(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps gorm's missing-row error to sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
