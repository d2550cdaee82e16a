package creatorstats

import "go.uber.org/fx"

var Module = fx.Module("creatorstats",
	fx.Provide(NewStore),
)
