// Package settings implements the process-wide settings endpoints
// (spec §6 "/settings"), including the backup export/import pair.
package settings

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
	"github.com/themadorg/mailaggregator/lib/validate"
)

type Core interface {
	GetSettings() (*entity.Settings, error)
	PatchSettings(p *entity.SettingsPatch) (*entity.Settings, error)
	ExportSettings() (*entity.SettingsExport, error)
	ImportSettings(export *entity.SettingsExport) error
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.settings"), slog.String("request_id", middleware.GetReqID(r.Context())))

		st, err := handler.GetSettings()
		if err != nil {
			logger.Error("get settings", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("get settings: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(st))
	}
}

func Patch(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.settings"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var patch entity.SettingsPatch
		if err := render.Bind(r, &patch); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		st, err := handler.PatchSettings(&patch)
		if err != nil {
			logger.Error("patch settings", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("patch settings: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(st))
	}
}

func Export(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.settings"), slog.String("request_id", middleware.GetReqID(r.Context())))

		export, err := handler.ExportSettings()
		if err != nil {
			logger.Error("export settings", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("export settings: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(export))
	}
}

func Import(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.settings"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var export entity.SettingsExport
		if err := render.DecodeJSON(r.Body, &export); err != nil {
			logger.Error("decode request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}
		for i := range export.Accounts {
			if err := validate.Struct(&export.Accounts[i]); err != nil {
				logger.Error("validate request", sl.Err(err))
				render.Status(r, 400)
				render.JSON(w, r, response.Error(fmt.Sprintf("invalid account %d: %v", i, err)))
				return
			}
		}

		if err := handler.ImportSettings(&export); err != nil {
			logger.Error("import settings", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("import settings: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
