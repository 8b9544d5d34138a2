package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront-backend/internal/health"
	"storefront-backend/internal/http/handler"
	"storefront-backend/internal/http/middleware"
	"storefront-backend/internal/http/response"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/security"
)

type Dependencies struct {
	AccountHandler   *handler.AccountHandler
	WalletHandler    *handler.WalletHandler
	ProductHandler   *handler.ProductHandler
	OrderHandler     *handler.OrderHandler
	JWTManager       *security.JWTManager
	Users            repository.UserRepository
	CORSOrigins      []string
	AuthRateLimitRPM int
	APIRateLimitRPM  int

	// GlobalRateLimiter and AuthRateLimiter override the local fixed-window
	// defaults, typically with the Redis-backed limiter so replicas share
	// one window.
	GlobalRateLimiter func(http.Handler) http.Handler
	AuthRateLimiter   func(http.Handler) http.Handler

	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	authn := middleware.AuthMiddleware(dep.JWTManager)
	guard := middleware.RequireActive(dep.Users)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AccountHandler.Register)
			r.With(authLimiter).Get("/verify/{uid}/{token}", dep.AccountHandler.VerifyEmail)
			r.With(authLimiter).Post("/login", dep.AccountHandler.Login)
			r.With(authLimiter).Post("/password/forgot", dep.AccountHandler.ForgotPassword)
			r.With(authLimiter).Post("/password/reset/{uid}/{token}", dep.AccountHandler.ResetPassword)
			r.With(authn, guard, authLimiter).Post("/password/change", dep.AccountHandler.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn, guard)
			r.Get("/me", dep.AccountHandler.Me)
			r.Get("/me/wallet", dep.WalletHandler.Balance)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", dep.OrderHandler.List)
				r.Post("/", dep.OrderHandler.Place)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", dep.ProductHandler.List)
			r.Get("/{id}", dep.ProductHandler.GetByID)
			r.With(authn, guard).Post("/", dep.ProductHandler.Create)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
