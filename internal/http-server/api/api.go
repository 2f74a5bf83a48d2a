// Package api assembles the HTTP/JSON control plane under the /api
// prefix: account/rule/message CRUD, settings, stats, health, and auth,
// built on a chi router with request-id/recoverer/timeout middleware
// and a bearer/session authenticate gate on every mutating route.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/themadorg/mailaggregator/internal/config"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/accounts"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/auth"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/emails"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/errors"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/health"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/rules"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/settings"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/stats"
	"github.com/themadorg/mailaggregator/internal/http-server/handlers/telegramrules"
	authmw "github.com/themadorg/mailaggregator/internal/http-server/middleware/authenticate"
	"github.com/themadorg/mailaggregator/internal/http-server/middleware/timeout"
	"github.com/themadorg/mailaggregator/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

// Handler is the union of every handler package's narrow Core
// interface plus the authenticate middleware's own surface; *core.Core
// satisfies all of it.
type Handler interface {
	authmw.Authenticate
	accounts.Core
	telegramrules.Core
	rules.Core
	emails.Core
	settings.Core
	stats.Core
	health.Core
	auth.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) (*Server, error) {
	server := &Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(30 * time.Second))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Route("/api", func(root chi.Router) {
		root.Get("/auth/config", auth.Config(log, handler))
		root.Post("/auth/login", auth.Login(log, handler))
		root.Post("/auth/reset-password", auth.ResetPassword(log, handler, conf.AdminUsername))
		// Unauthenticated like /auth/config: a container orchestrator's
		// liveness probe has no way to carry a bearer token.
		root.Get("/health", health.Get(log, handler))

		root.Group(func(protected chi.Router) {
			protected.Use(authmw.New(log, handler))

			protected.Post("/auth/logout", auth.Logout(log, handler))
			protected.Post("/auth/change-password", auth.ChangePassword(log, handler))

			protected.Route("/accounts", func(a chi.Router) {
				a.Get("/", accounts.List(log, handler))
				a.Post("/", accounts.Create(log, handler))
				a.Get("/status", accounts.Status(log, handler))
				a.Patch("/{id}", accounts.Update(log, handler))
				a.Delete("/{id}", accounts.Delete(log, handler))

				a.Post("/{id}/telegram-rules", telegramrules.Create(log, handler))
				a.Get("/{id}/telegram-rules", telegramrules.List(log, handler))
				a.Delete("/telegram-rules/{id}", telegramrules.Delete(log, handler))
			})

			protected.Route("/rules", func(ru chi.Router) {
				ru.Get("/", rules.List(log, handler))
				ru.Post("/", rules.Create(log, handler))
				ru.Patch("/{id}", rules.Update(log, handler))
				ru.Delete("/{id}", rules.Delete(log, handler))
			})

			protected.Route("/emails", func(e chi.Router) {
				e.Get("/", emails.List(log, handler))
				e.Get("/{id}", emails.Get(log, handler))
				e.Post("/{id}/read", emails.MarkRead(log, handler))
				e.Post("/apply-rules", emails.ApplyRules(log, handler))
				e.Post("/accounts/{id}/fetch_once", emails.FetchOnce(log, handler))
			})

			protected.Route("/settings", func(s chi.Router) {
				s.Get("/", settings.Get(log, handler))
				s.Patch("/", settings.Patch(log, handler))
				s.Get("/export", settings.Export(log, handler))
				s.Post("/import", settings.Import(log, handler))
			})

			protected.Route("/stats", func(st chi.Router) {
				st.Get("/overview", stats.Overview(log, handler))
				st.Post("/cleanup", stats.Cleanup(log, handler))
				st.Post("/archive", stats.Archive(log, handler))
				st.Get("/archive/{name}", stats.ReadArchive(log, handler))
			})
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", conf.ListenAddr)
	if err != nil {
		return nil, err
	}

	server.log.Info("starting api server", slog.String("address", conf.ListenAddr))

	go func() {
		if err := server.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			server.log.Error("http server error", sl.Err(err))
		}
	}()

	return server, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}
