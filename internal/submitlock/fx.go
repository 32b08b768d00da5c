package submitlock

import "go.uber.org/fx"

var Module = fx.Module("submitlock",
	fx.Provide(NewLocker),
)
