package payment

import (
	"github.com/pledgekit/fundway/internal/payment/repository"
	paymentservice "github.com/pledgekit/fundway/internal/payment/service"
	"github.com/pledgekit/fundway/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
