package entitlement

import (
	"github.com/opencollect/donorbase/internal/entitlement/repository"
	"github.com/opencollect/donorbase/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
