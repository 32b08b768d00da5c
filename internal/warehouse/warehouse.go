// Package warehouse records goods coming back into stock. Receipts are
// written by the returns engine when a goods return completes; nothing here
// mutates invoice or return state.
package warehouse

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Goods condition reported on intake.
const (
	ConditionNew      = "NEW"
	ConditionUsed     = "USED"
	ConditionDamaged  = "DAMAGED"
	ConditionUnsorted = "UNSORTED"
)

var (
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidCondition = errors.New("invalid_condition")
	ErrInvalidReturn    = errors.New("invalid_return")
)

var validConditions = map[string]bool{
	ConditionNew:      true,
	ConditionUsed:     true,
	ConditionDamaged:  true,
	ConditionUnsorted: true,
}

type Receipt struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReturnID     snowflake.ID    `gorm:"not null;index" json:"return_id"`
	ReturnLineID snowflake.ID    `gorm:"not null;index" json:"return_line_id"`
	Description  string          `gorm:"not null" json:"description"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Condition    string          `gorm:"not null" json:"condition"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

type CreateReceiptRequest struct {
	ReturnID     snowflake.ID
	ReturnLineID snowflake.ID
	Description  string
	Quantity     decimal.Decimal
	Condition    string
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("warehouse.service"),
		genID: p.GenID,
	}
}

// CreateReceipt books returned goods back in. db lets the caller pass its
// transaction so the receipt commits atomically with the return.
func (s *Service) CreateReceipt(ctx context.Context, db *gorm.DB, req CreateReceiptRequest) (Receipt, error) {
	if db == nil {
		db = s.db
	}
	if req.ReturnID == 0 || req.ReturnLineID == 0 {
		return Receipt{}, ErrInvalidReturn
	}
	if !req.Quantity.IsPositive() {
		return Receipt{}, ErrInvalidQuantity
	}
	condition := strings.ToUpper(strings.TrimSpace(req.Condition))
	if condition == "" {
		condition = ConditionUnsorted
	}
	if !validConditions[condition] {
		return Receipt{}, ErrInvalidCondition
	}

	receipt := Receipt{
		ID:           s.genID.Generate(),
		ReturnID:     req.ReturnID,
		ReturnLineID: req.ReturnLineID,
		Description:  strings.TrimSpace(req.Description),
		Quantity:     req.Quantity,
		Condition:    condition,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&receipt).Error; err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// ListByReturn fetches the receipts booked for one return.
func (s *Service) ListByReturn(ctx context.Context, returnID snowflake.ID) ([]Receipt, error) {
	var receipts []Receipt
	err := s.db.WithContext(ctx).
		Where("return_id = ?", returnID).
		Order("created_at asc, id asc").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

var Module = fx.Module("warehouse.service",
	fx.Provide(New),
)
