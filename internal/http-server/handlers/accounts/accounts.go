// Package accounts implements the account CRUD and status endpoints:
// one Core interface, one http.HandlerFunc per route, logging and
// response envelope via lib/sl and lib/api/response.
package accounts

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
	ListAccounts() ([]*entity.Account, error)
	GetAccount(id int64) (*entity.Account, error)
	CreateAccount(in *entity.AccountCreate) (*entity.Account, error)
	UpdateAccount(id int64, p *entity.AccountPatch) (*entity.Account, error)
	DeleteAccount(id int64) error
	AccountsStatus() ([]entity.AccountStatus, error)
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.accounts"), slog.String("request_id", middleware.GetReqID(r.Context())))

		list, err := handler.ListAccounts()
		if err != nil {
			logger.Error("list accounts", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("list accounts: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func Status(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.accounts"), slog.String("request_id", middleware.GetReqID(r.Context())))

		list, err := handler.AccountsStatus()
		if err != nil {
			logger.Error("accounts status", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("accounts status: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.accounts"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var in entity.AccountCreate
		if err := render.Bind(r, &in); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		account, err := handler.CreateAccount(&in)
		if err != nil {
			logger.Error("create account", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("create account: %v", err)))
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(account))
	}
}

func Update(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.accounts"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid account id"))
			return
		}

		var patch entity.AccountPatch
		if err := render.Bind(r, &patch); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		account, err := handler.UpdateAccount(id, &patch)
		if err != nil {
			logger.Error("update account", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("update account: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(account))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.accounts"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid account id"))
			return
		}

		if err := handler.DeleteAccount(id); err != nil {
			logger.Error("delete account", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("delete account: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
