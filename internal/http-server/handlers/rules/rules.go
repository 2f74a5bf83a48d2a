// Package rules implements CRUD over the rule engine's predicates
// (spec §6 "/rules"). Evaluation itself lives in internal/rules; this
// package only persists the rows the engine folds over.
package rules

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
	ListRules() ([]*entity.Rule, error)
	CreateRule(in *entity.RuleCreate) (*entity.Rule, error)
	UpdateRule(id int64, p *entity.RulePatch) (*entity.Rule, error)
	DeleteRule(id int64) error
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.rules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		list, err := handler.ListRules()
		if err != nil {
			logger.Error("list rules", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("list rules: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.rules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var in entity.RuleCreate
		if err := render.Bind(r, &in); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		rule, err := handler.CreateRule(&in)
		if err != nil {
			logger.Error("create rule", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("create rule: %v", err)))
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(rule))
	}
}

func Update(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.rules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid rule id"))
			return
		}

		var patch entity.RulePatch
		if err := render.Bind(r, &patch); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		rule, err := handler.UpdateRule(id, &patch)
		if err != nil {
			logger.Error("update rule", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("update rule: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(rule))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.rules"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid rule id"))
			return
		}

		if err := handler.DeleteRule(id); err != nil {
			logger.Error("delete rule", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("delete rule: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
