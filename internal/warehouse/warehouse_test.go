package warehouse

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Receipt{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{DB: db, Log: zap.NewNop(), GenID: node})
}

func TestCreateReceiptNormalizesCondition(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	receipt, err := svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
		ReturnID:     snowflake.ID(1),
		ReturnLineID: snowflake.ID(2),
		Description:  "Cemento 50kg",
		Quantity:     decimal.NewFromInt(3),
		Condition:    " damaged ",
	})
	require.NoError(t, err)
	assert.Equal(t, ConditionDamaged, receipt.Condition)

	// Empty condition defaults to unsorted.
	receipt, err = svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
		ReturnID:     snowflake.ID(1),
		ReturnLineID: snowflake.ID(3),
		Description:  "Arena lavada m3",
		Quantity:     decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, ConditionUnsorted, receipt.Condition)
}

func TestCreateReceiptGuards(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
		ReturnLineID: snowflake.ID(2),
		Quantity:     decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInvalidReturn)

	_, err = svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
		ReturnID:     snowflake.ID(1),
		ReturnLineID: snowflake.ID(2),
		Quantity:     decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
		ReturnID:     snowflake.ID(1),
		ReturnLineID: snowflake.ID(2),
		Quantity:     decimal.NewFromInt(1),
		Condition:    "BROKEN",
	})
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestListByReturnOrdersByCreation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	returnID := snowflake.ID(7)

	for i := int64(1); i <= 3; i++ {
		_, err := svc.CreateReceipt(ctx, nil, CreateReceiptRequest{
			ReturnID:     returnID,
			ReturnLineID: snowflake.ID(i),
			Description:  "Ladrillo comun",
			Quantity:     decimal.NewFromInt(i),
			Condition:    ConditionNew,
		})
		require.NoError(t, err)
	}

	receipts, err := svc.ListByReturn(ctx, returnID)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.True(t, receipts[0].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, receipts[2].Quantity.Equal(decimal.NewFromInt(3)))
}
