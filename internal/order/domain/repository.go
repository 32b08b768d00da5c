package domain

import (
	"context"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindLine(ctx context.Context, db *gorm.DB, orderID, lineID snowflake.ID) (*OrderLine, error)
	UpdateLine(ctx context.Context, db *gorm.DB, line *OrderLine) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderStatus) error
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*Order, error)
}
