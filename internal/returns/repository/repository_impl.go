package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/pkg/db/option"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ret *domain.Return) error {
	return db.WithContext(ctx).Create(ret).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Return, error) {
	var ret domain.Return
	err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&ret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListReturnFilter, page pagination.Pagination) ([]*domain.Return, error) {
	var returns []*domain.Return
	stmt := db.WithContext(ctx).Model(&domain.Return{}).Preload("Lines")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("created_at desc, id desc").Find(&returns).Error; err != nil {
		return nil, err
	}
	return returns, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).Model(&domain.Return{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.ReturnStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Return{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, line *domain.ReturnLine) error {
	return db.WithContext(ctx).Save(line).Error
}
