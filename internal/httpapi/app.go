// internal/httpapi/app.go
package httpapi

import (
	"go.uber.org/zap"

	"resetctl/internal/confirm"
	"resetctl/internal/executor"
	"resetctl/internal/guard"
	"resetctl/internal/scope"
	"resetctl/pkg/config"
)

// previewLimit bounds the resource-id lists echoed back by /scope; counts
// are always exact.
const previewLimit = 50

// App is the reset-controller application container.
//
// Keep it lean: shared deps and config only.
// Request-scoped work should use context.
type App struct {
	log      *zap.SugaredLogger
	cfg      config.Config
	resolver *scope.Resolver
	machine  *confirm.Machine
	guard    *guard.Guard
	exec     *executor.Executor
}

func New(log *zap.SugaredLogger, cfg config.Config, resolver *scope.Resolver, machine *confirm.Machine, g *guard.Guard, exec *executor.Executor) *App {
	return &App{log: log, cfg: cfg, resolver: resolver, machine: machine, guard: g, exec: exec}
}
