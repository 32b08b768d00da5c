package product

import (
	"github.com/arandulabs/kuatia/internal/product/repository"
	"github.com/arandulabs/kuatia/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
