package document

import "go.uber.org/fx"

var Module = fx.Module("fiscal.document",
	fx.Provide(NewBuilder),
)
