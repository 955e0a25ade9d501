// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// saveBatchSize bounds one multi-row insert so a large contact import never
// turns into a single giant statement.
const saveBatchSize = 100

// BaseRepository carries the shared persistence plumbing for one model type.
// A transaction started by WithTransaction travels in the context; every
// method picks it up transparently, so repository calls compose into one
// atomic unit without the callers passing *gorm.DB around.
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		DB: db,
	}
}

// getDB returns the ambient transaction when one is in flight, the pooled
// connection otherwise
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB
}

// getDBForWrite hands out a connection for a mutating statement. Inside an
// ambient transaction the write joins it; otherwise a fresh transaction is
// opened and the second return value tells the caller to commit it.
func (r *BaseRepository[T, F]) getDBForWrite(ctx context.Context) (*gorm.DB, bool, error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx, false, nil
	}

	tx := r.DB.Begin()
	if tx.Error != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	return tx, true, nil
}

// ByID fetches one row by primary key, nil when the row does not exist
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	db := r.getDB(ctx)

	var row T
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find row by ID %d: %w", id, err)
	}

	return &row, nil
}

// Save inserts one row
func (r *BaseRepository[T, F]) Save(ctx context.Context, row *T) error {
	db, owned, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if owned {
		defer func() { finishTx(db, err) }()
	}

	if err = db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to save row: %w", err)
	}

	return nil
}

// SaveBatch inserts many rows atomically, chunked by saveBatchSize
func (r *BaseRepository[T, F]) SaveBatch(ctx context.Context, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}

	db, owned, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if owned {
		defer func() { finishTx(db, err) }()
	}

	if err = db.CreateInBatches(rows, saveBatchSize).Error; err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	return nil
}

// finishTx commits a repository-owned transaction, rolling back when the
// write errored
func finishTx(tx *gorm.DB, err error) {
	if err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
}

// WithTransaction runs fn inside one transaction, carried through the context
// so nested repository calls join it. A panic inside fn rolls back.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	ctx = context.WithValue(ctx, TxContextKey, tx)

	if err := fn(ctx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
