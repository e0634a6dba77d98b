package webhook

import (
	"github.com/opencollect/donorbase/internal/webhook/repository"
	"github.com/opencollect/donorbase/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
