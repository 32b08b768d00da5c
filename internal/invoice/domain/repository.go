package domain

import (
	"context"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListInvoiceFilter struct {
	Status InvoiceStatus
	Kind   InvoiceKind
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByCDC(ctx context.Context, db *gorm.DB, cdc string) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status InvoiceStatus, limit int) ([]*Invoice, error)

	// Update writes the given columns for one invoice.
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// TransitionStatus performs the single-row conditional update that
	// guards concurrent lifecycle transitions; false means the invoice
	// was not in the expected state.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus) (bool, error)
	UpdateLine(ctx context.Context, db *gorm.DB, line *InvoiceLine) error

	InsertBatch(ctx context.Context, db *gorm.DB, batch *Batch) error
	FindBatchByNumber(ctx context.Context, db *gorm.DB, number string) (*Batch, error)
	UpdateBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	ListPendingBatches(ctx context.Context, db *gorm.DB, limit int) ([]*Batch, error)
	ListByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*Invoice, error)
}
