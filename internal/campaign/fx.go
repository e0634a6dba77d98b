package campaign

import (
	"github.com/opencollect/donorbase/internal/campaign/repository"
	"github.com/opencollect/donorbase/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewAggregator),
)
