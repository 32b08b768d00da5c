package order

import (
	"github.com/arandulabs/kuatia/internal/order/repository"
	"github.com/arandulabs/kuatia/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
