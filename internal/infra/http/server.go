// Package http assembles the Echo control-plane server: middleware chain,
// routes, and the health/metrics endpoints, grounded on the teacher's
// cmd/server/main.go wiring (same middleware order: Logger, Recover, CORS,
// optional auth, then routes) lifted into a reusable constructor.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/flowcraft/flowcraft/internal/infra/http/handlers"
	"github.com/flowcraft/flowcraft/internal/infra/http/middleware"
)

// Config controls the routes and middleware NewServer assembles.
type Config struct {
	ServiceName string
	JWTSecret   string
	AuthEnabled bool
}

// NewServer builds an *echo.Echo wired with the workflow handler, the
// shared middleware chain, and otelecho span instrumentation per request —
// the concrete home otelecho's own package comment points to, since the
// teacher's go.mod lists it as a direct dependency but no file in its tree
// actually mounts it.
func NewServer(cfg Config, workflows *handlers.WorkflowHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler()

	e.Use(middleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(otelecho.Middleware(cfg.ServiceName))

	if cfg.AuthEnabled {
		e.Use(middleware.RequireAuth(cfg.JWTSecret))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/blueprints", workflows.RegisterBlueprint)
	e.POST("/blueprints/:id/run", workflows.Run)
	e.POST("/blueprints/:id/resume", workflows.Resume)

	return e
}
