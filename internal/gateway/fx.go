package gateway

import (
	"github.com/opencollect/donorbase/internal/config"
	"github.com/opencollect/donorbase/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provideVerifier(cfg config.Config) *Verifier {
	return NewVerifier(cfg.GatewaySecret)
}

func provideInitializer(cfg config.Config, log *zap.Logger) domain.Initializer {
	return NewClient(cfg, log)
}

var Module = fx.Module("gateway",
	fx.Provide(provideVerifier),
	fx.Provide(provideInitializer),
)
