package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arandulabs/kuatia/internal/product/domain"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Product{}, domain.ErrInvalidCode
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Product{}, domain.ErrInvalidDescription
	}
	if req.UnitPrice.IsNegative() {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	if req.TaxRate != 0 && req.TaxRate != 5 && req.TaxRate != 10 {
		return domain.Product{}, domain.ErrInvalidTaxRate
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          s.genID.Generate(),
		Code:        code,
		Description: description,
		UnitPrice:   req.UnitPrice,
		TaxRate:     req.TaxRate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &product); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Product{}, domain.ErrDuplicateCode
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) Get(ctx context.Context, req domain.GetProductRequest) (domain.Product, error) {
	if code := strings.TrimSpace(req.Code); code != "" {
		item, err := s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return domain.Product{}, err
		}
		if item == nil {
			return domain.Product{}, domain.ErrNotFound
		}
		return *item, nil
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, int(pageSize), func(product *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        product.ID.String(),
			CreatedAt: product.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		products = append(products, *item)
	}

	resp := domain.ListProductResponse{Products: products}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
