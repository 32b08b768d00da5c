package sign

import "go.uber.org/fx"

var Module = fx.Module("fiscal.sign",
	fx.Provide(
		NewKeystore,
		NewSigner,
	),
)
