// Package di wires the application together with google/wire.
package di

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/config"
	"github.com/newtheatre/lumina/internal/infrastructure/observability"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	"github.com/newtheatre/lumina/internal/repository"
)

// Container holds what the entrypoints need after wiring.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Table      persistence.Table
	Repository *repository.Repository
	Router     *chi.Mux
	Watcher    *config.Watcher
	Tracer     *observability.TracerProvider
}
