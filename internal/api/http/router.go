package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/kmun/registration-service/internal/api/http/handlers"
	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Registrations  *handlers.RegistrationsHandler
	Users          *handlers.UsersHandler
	Committees     *handlers.CommitteesHandler
	Mailer         *handlers.MailerHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")

	api.Post("/auth/login", cfg.Auth.Login)
	api.Get("/auth/me", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Auth.Me)

	api.Post("/registrations", cfg.Registrations.Submit)
	registrations := api.Group("/registrations", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RegistrationAdmins...))
	registrations.Get("", cfg.Registrations.List)
	registrations.Get("/stats", cfg.Registrations.Stats)
	registrations.Get("/:id", cfg.Registrations.Get)
	registrations.Patch("/:id/status", cfg.Registrations.UpdateStatus)
	registrations.Delete("/:id", cfg.Registrations.Delete)

	api.Get("/committees", cfg.Committees.List)
	api.Get("/committees/:id", cfg.Committees.Get)
	committees := api.Group("/committees", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.CommitteeAdmins...))
	committees.Post("", cfg.Committees.Create)
	committees.Put("/:id", cfg.Committees.Update)
	committees.Delete("/:id", cfg.Committees.Delete)
	committees.Post("/:id/portfolios", cfg.Committees.AddPortfolio)
	committees.Delete("/:id/portfolios/:portfolioId", cfg.Committees.DeletePortfolio)

	users := api.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.AccountAdmins...))
	users.Get("", cfg.Users.List)
	users.Post("", cfg.Users.Create)
	users.Get("/:id", cfg.Users.Get)
	users.Put("/:id", cfg.Users.Update)
	users.Put("/:id/password", cfg.Users.ChangePassword)
	users.Delete("/:id", cfg.Users.Delete)

	mailer := api.Group("/mailer", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.MailerAdmins...))
	mailer.Post("/send", cfg.Mailer.Send)
	mailer.Post("/test", cfg.Mailer.Test)
	mailer.Get("/recipients", cfg.Mailer.Recipients)
}
