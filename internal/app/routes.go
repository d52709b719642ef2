package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/opencrafts-io/parley/internal/handlers"
	"github.com/opencrafts-io/parley/internal/middleware"
)

// commonRoutes are served by both services and skipped by the gate.
func commonRoutes(router *http.ServeMux, service string) {
	router.HandleFunc("GET /ping", handlers.PingHandler(service))
	router.Handle("GET /metrics", promhttp.Handler())
	router.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (a *IdentityApp) loadRoutes() http.Handler {
	router := http.NewServeMux()
	commonRoutes(router, "identity")

	ah := &handlers.AuthHandler{
		Service: a.service,
		Cookie: handlers.CookieOptions{
			Secure: a.config.JWTConfig.CookieSecure,
			TTL:    a.config.TokenTTL(),
		},
		Logger: a.logger,
	}
	ah.RegisterHandlers(router)

	stack := middleware.CreateStack(
		middleware.Logging(a.logger),
		middleware.CORSMiddleware(a.config.AllowedOrigins()),
		middleware.RevocationGate(a.service, handlers.AuthAnonymousRoutes, a.logger),
	)
	return stack(router)
}

func (a *ProfileApp) loadRoutes() http.Handler {
	router := http.NewServeMux()
	commonRoutes(router, "profile")

	uh := &handlers.UserHandler{Service: a.service, Logger: a.logger}
	uh.RegisterHandlers(router)

	stack := middleware.CreateStack(
		middleware.Logging(a.logger),
		middleware.CORSMiddleware(a.config.AllowedOrigins()),
		middleware.RevocationGate(a.auth, handlers.UserAnonymousRoutes, a.logger),
	)
	return stack(router)
}
