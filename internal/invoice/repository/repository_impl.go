package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/arandulabs/kuatia/pkg/db/option"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByCDC(ctx context.Context, db *gorm.DB, cdc string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Preload("Lines").Where("cdc = ?", cdc).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).Preload("Lines")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("created_at desc, id desc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.InvoiceStatus, limit int) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).Preload("Lines").
		Where("status = ?", status).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.InvoiceStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Invoice{}).
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

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, line *domain.InvoiceLine) error {
	return db.WithContext(ctx).Save(line).Error
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindBatchByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Batch, error) {
	var batch domain.Batch
	err := db.WithContext(ctx).Where("batch_number = ?", number).Take(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repo) UpdateBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).Model(&domain.Batch{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) ListPendingBatches(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Batch, error) {
	var batches []*domain.Batch
	stmt := db.WithContext(ctx).
		Where("status = ?", domain.BatchStatusPending).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) ListByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Preload("Lines").
		Where("batch_id = ?", batchID).
		Order("created_at asc, id asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
