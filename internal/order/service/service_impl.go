package service

import (
	"context"
	"strings"
	"time"

	"github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.Order{}, domain.ErrInvalidCustomer
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, domain.ErrInvalidLines
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Status:     domain.OrderStatusOpen,
		Currency:   currencyOrDefault(req.Currency),
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, in := range req.Lines {
		if !in.Quantity.IsPositive() || in.UnitPrice.IsNegative() || in.Discount.IsNegative() {
			return domain.Order{}, domain.ErrInvalidLines
		}
		if in.TaxRate != 0 && in.TaxRate != 5 && in.TaxRate != 10 {
			return domain.Order{}, domain.ErrInvalidLines
		}
		if strings.TrimSpace(in.Description) == "" {
			return domain.Order{}, domain.ErrInvalidLines
		}

		line := domain.OrderLine{
			ID:          s.genID.Generate(),
			OrderID:     order.ID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Discount:    in.Discount,
			TaxRate:     in.TaxRate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if productID, perr := snowflake.ParseString(strings.TrimSpace(in.ProductID)); perr == nil {
			line.ProductID = productID
		}
		order.Lines = append(order.Lines, line)
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetOrderRequest) (domain.Order, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, int(pageSize), func(order *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, *item)
	}

	resp := domain.ListOrderResponse{Orders: orders}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// AdjustLineQuantity decrements the open quantity of one line. The guard is
// requested <= ordered - invoiced; a violation leaves the order untouched.
func (s *Service) AdjustLineQuantity(ctx context.Context, req domain.AdjustLineQuantityRequest) (domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil || orderID == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}
	lineID, err := snowflake.ParseString(strings.TrimSpace(req.LineID))
	if err != nil || lineID == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}
	if !req.Quantity.IsPositive() {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if order.Status != domain.OrderStatusOpen {
			return domain.ErrOrderNotOpen
		}

		line, err := s.repo.FindLine(ctx, tx, orderID, lineID)
		if err != nil {
			return err
		}
		if line == nil || line.Removed {
			return domain.ErrLineNotFound
		}

		if req.Quantity.GreaterThan(line.Remaining()) {
			return domain.ErrQuantityExceeded
		}

		line.Quantity = line.Quantity.Sub(req.Quantity)
		if line.Quantity.IsZero() {
			line.Removed = true
		}
		if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
			return err
		}

		// Cancel the order once every line has been emptied out.
		empty := true
		for _, other := range order.Lines {
			if other.ID == line.ID {
				if !line.Removed {
					empty = false
				}
				continue
			}
			if !other.Removed && !other.Quantity.IsZero() {
				empty = false
			}
		}
		if empty {
			if err := s.repo.UpdateStatus(ctx, tx, orderID, domain.OrderStatusCancelled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// MarkLineInvoiced records billed quantity against a line, consuming its open
// amount.
func (s *Service) MarkLineInvoiced(ctx context.Context, req domain.MarkLineInvoicedRequest) error {
	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil || orderID == 0 {
		return domain.ErrInvalidID
	}
	lineID, err := snowflake.ParseString(strings.TrimSpace(req.LineID))
	if err != nil || lineID == 0 {
		return domain.ErrInvalidID
	}
	if !req.Quantity.IsPositive() {
		return domain.ErrInvalidQuantity
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.repo.FindLine(ctx, tx, orderID, lineID)
		if err != nil {
			return err
		}
		if line == nil || line.Removed {
			return domain.ErrLineNotFound
		}
		if req.Quantity.GreaterThan(line.Remaining()) {
			return domain.ErrNothingToInvoice
		}

		line.InvoicedQty = line.InvoicedQty.Add(req.Quantity)
		return s.repo.UpdateLine(ctx, tx, line)
	})
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "PYG"
	}
	return currency
}
