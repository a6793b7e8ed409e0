package outbox

import (
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/outbox/broker"
	"github.com/pledgekit/fundway/internal/outbox/domain"
	"github.com/pledgekit/fundway/internal/outbox/repository"
	"github.com/pledgekit/fundway/internal/outbox/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(func(client *redis.Client, cfg config.Config) domain.Publisher {
		return broker.NewStreamPublisher(client, cfg)
	}),
	fx.Provide(service.NewWriter),
	fx.Provide(service.NewRelay),
)
