package invoice

import (
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/fiscal/sign"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/arandulabs/kuatia/internal/invoice/repository"
	"github.com/arandulabs/kuatia/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		func(s *sign.Signer) domain.DocumentSigner { return s },
		func(c *sifen.Client) domain.AuthorityClient { return c },
	),
	fx.Provide(service.New),
)
