// Package stats implements the overview and retention maintenance
// endpoints (spec §6 "/stats").
package stats

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/http-server/httperr"
	"github.com/themadorg/mailaggregator/lib/api/response"
	"github.com/themadorg/mailaggregator/lib/sl"
)

type Core interface {
	StatsOverview(days int) (*entity.StatsOverview, error)
	Cleanup() (*entity.CleanupResult, error)
	Archive() (*entity.ArchiveResult, error)
	ReadArchive(name string) ([]byte, error)
}

func Overview(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.stats"), slog.String("request_id", middleware.GetReqID(r.Context())))

		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				render.Status(r, 400)
				render.JSON(w, r, response.Error("invalid days"))
				return
			}
			days = n
		}

		overview, err := handler.StatsOverview(days)
		if err != nil {
			logger.Error("stats overview", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("stats overview: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(overview))
	}
}

func Cleanup(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.stats"), slog.String("request_id", middleware.GetReqID(r.Context())))

		result, err := handler.Cleanup()
		if err != nil {
			logger.Error("cleanup", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("cleanup: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(result))
	}
}

func Archive(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.stats"), slog.String("request_id", middleware.GetReqID(r.Context())))

		result, err := handler.Archive()
		if err != nil {
			logger.Error("archive", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("archive: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(result))
	}
}

// ReadArchive streams a previously written archive file's raw JSON
// bytes back, since it is already a JSON document and double-wrapping
// it in the response envelope would just nest the same data.
func ReadArchive(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.stats"), slog.String("request_id", middleware.GetReqID(r.Context())))

		name := chi.URLParam(r, "name")
		body, err := handler.ReadArchive(name)
		if err != nil {
			logger.Error("read archive", sl.Err(err))
			render.Status(r, 404)
			render.JSON(w, r, response.Error(fmt.Sprintf("read archive: %v", err)))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
