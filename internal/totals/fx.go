package totals

import (
	"github.com/pledgekit/fundway/internal/totals/repository"
	totalsservice "github.com/pledgekit/fundway/internal/totals/service"
	"go.uber.org/fx"
)

var Module = fx.Module("totals",
	fx.Provide(repository.Provide),
	fx.Provide(totalsservice.NewService),
)

// ConsumerModule is wired only by processes that drain the event stream.
var ConsumerModule = fx.Module("totals.consumer",
	fx.Provide(totalsservice.NewConsumer),
)
