package domain

import (
	"context"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListReturnFilter struct {
	Status ReturnStatus
	Kind   ReturnKind
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ret *Return) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Return, error)
	List(ctx context.Context, db *gorm.DB, filter ListReturnFilter, page pagination.Pagination) ([]*Return, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// TransitionStatus is the single-row conditional update guarding the
	// state machine.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to ReturnStatus) (bool, error)
	UpdateLine(ctx context.Context, db *gorm.DB, line *ReturnLine) error
}
