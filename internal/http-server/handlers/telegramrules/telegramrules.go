// Package telegramrules implements the per-account push filter CRUD
// (spec §6 "/accounts/{id}/telegram-rules"), the inclusion/exclusion
// predicates applied before a Telegram push goes out.
package telegramrules

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
	CreatePushFilter(accountId int64, in *entity.PushFilterCreate) (*entity.PushFilter, error)
	ListPushFilters(accountId int64) ([]*entity.PushFilter, error)
	DeletePushFilter(id int64) error
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.telegramrules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		accountId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid account id"))
			return
		}

		var in entity.PushFilterCreate
		if err := render.Bind(r, &in); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		filter, err := handler.CreatePushFilter(accountId, &in)
		if err != nil {
			logger.Error("create push filter", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("create telegram rule: %v", err)))
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(filter))
	}
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.telegramrules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		accountId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid account id"))
			return
		}

		list, err := handler.ListPushFilters(accountId)
		if err != nil {
			logger.Error("list push filters", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("list telegram rules: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.telegramrules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid filter id"))
			return
		}

		if err := handler.DeletePushFilter(id); err != nil {
			logger.Error("delete push filter", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("delete telegram rule: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
