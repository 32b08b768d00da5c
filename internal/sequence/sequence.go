// Package sequence hands out gapless document numbers that survive restarts.
// Numbers come from a per-scope counter row incremented inside a transaction,
// so concurrent instances can never allocate the same value twice.
package sequence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmptyScope = errors.New("sequence: scope is required")

// Sequence is one named counter, e.g. "invoice:001:002" or "return".
type Sequence struct {
	Scope     string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (Sequence) TableName() string {
	return "sequences"
}

type Allocator struct {
	db *gorm.DB
}

func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db}
}

// Next atomically increments the counter for scope and returns the new
// value. The first allocation of a scope returns 1.
func (a *Allocator) Next(ctx context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, ErrEmptyScope
	}

	var value int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Sequence{Scope: scope}).Error; err != nil {
			return err
		}

		// The UPDATE takes the row lock that serializes concurrent
		// allocators; the read-back inside the same transaction sees
		// the incremented value.
		if err := tx.Model(&Sequence{}).
			Where("scope = ?", scope).
			Update("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}

		var row Sequence
		if err := tx.Where("scope = ?", scope).Take(&row).Error; err != nil {
			return err
		}
		value = row.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Current reads the last allocated value without advancing the counter.
func (a *Allocator) Current(ctx context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, ErrEmptyScope
	}

	var row Sequence
	err := a.db.WithContext(ctx).Where("scope = ?", scope).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Value, nil
}
