package returns

import (
	"github.com/arandulabs/kuatia/internal/returns/repository"
	"github.com/arandulabs/kuatia/internal/returns/service"
	"go.uber.org/fx"
)

var Module = fx.Module("returns.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
