package apiapp

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/config"
	archivesvc "github.com/ivankudzin/forummod/internal/services/archive"
	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	modsvc "github.com/ivankudzin/forummod/internal/services/moderation"
	"github.com/ivankudzin/forummod/internal/transport/http/handlers"
)

type Dependencies struct {
	ModerationService *modsvc.Service
	ArchiveService    *archivesvc.Service
	JWTManager        *authsvc.JWTManager
	HealthHandler     *handlers.HealthHandler
	Logger            *zap.Logger
	Config            config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	adminRoles := deps.Config.Auth.AdminRoles
	healthHandler := deps.HealthHandler
	if healthHandler == nil {
		healthHandler = handlers.NewHealthHandler(deps.Config.Storage.Driver)
	}
	contentHandler := handlers.NewContentHandler(deps.ModerationService)
	moderationHandler := handlers.NewAdminModerationHandler(
		deps.ModerationService,
		deps.ArchiveService,
		authsvc.NewRoleSet(adminRoles...),
		deps.Logger,
	)
	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)
	adminRoleMW := RequireRole(adminRoles...)
	serviceMW := ServiceTokenMiddleware(deps.Config.Auth.ServiceToken, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.With(serviceMW).Post("/internal/content", contentHandler.Submit)

	r.Route("/v1", func(r chi.Router) {
		r.With(authMW).Post("/content/{id}/reports", contentHandler.Report)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW, adminRoleMW)
		r.Get("/whoami", healthHandler.Whoami)
		r.Route("/moderation", func(r chi.Router) {
			r.Get("/queue", moderationHandler.ListQueue)
			r.Get("/summary", moderationHandler.Summary)
			r.Post("/decisions", moderationHandler.DecideMany)
			r.Get("/items/{id}", moderationHandler.GetItem)
			r.Get("/items/{id}/audit", moderationHandler.GetAuditTrail)
			r.Post("/items/{id}/audit/archive", moderationHandler.ArchiveAuditTrail)
			r.Post("/items/{id}/decision", moderationHandler.Decide)
			r.Post("/items/{id}/reopen", moderationHandler.Reopen)
			r.Post("/items/{id}/rescore", moderationHandler.Rescore)
		})
	})
}
