// Package health implements GET /health, the poller liveness probe.
package health

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/http-server/httperr"
	"github.com/themadorg/mailaggregator/lib/api/response"
	"github.com/themadorg/mailaggregator/lib/sl"
)

type Core interface {
	Health() (*entity.HealthResponse, error)
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.health"), slog.String("request_id", middleware.GetReqID(r.Context())))

		h, err := handler.Health()
		if err != nil {
			logger.Error("health", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("health: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(h))
	}
}
