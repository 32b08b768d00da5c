package customer

import (
	"github.com/arandulabs/kuatia/internal/customer/repository"
	"github.com/arandulabs/kuatia/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
