package audit

import (
	"github.com/opencollect/donorbase/internal/audit/repository"
	"github.com/opencollect/donorbase/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
