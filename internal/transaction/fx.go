package transaction

import (
	"github.com/opencollect/donorbase/internal/transaction/repository"
	"github.com/opencollect/donorbase/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
