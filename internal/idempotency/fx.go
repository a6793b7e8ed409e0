package idempotency

import (
	"github.com/pledgekit/fundway/internal/idempotency/repository"
	"github.com/pledgekit/fundway/internal/idempotency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
