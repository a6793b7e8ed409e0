package pledge

import (
	"github.com/pledgekit/fundway/internal/pledge/repository"
	pledgeservice "github.com/pledgekit/fundway/internal/pledge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pledge",
	fx.Provide(repository.Provide),
	fx.Provide(pledgeservice.NewService),
)

// ConsumerModule is wired only by processes that drain the event stream.
var ConsumerModule = fx.Module("pledge.consumer",
	fx.Provide(pledgeservice.NewConsumer),
)
