package sifen

import "go.uber.org/fx"

var Module = fx.Module("fiscal.sifen",
	fx.Provide(NewClient),
)
