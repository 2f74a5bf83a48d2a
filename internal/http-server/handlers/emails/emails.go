// Package emails implements the message query/read/reapply/fetch-once
// endpoints (spec §6 "/emails"), the read surface over messages the
// fetcher pipeline persists.
package emails

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/http-server/httperr"
	"github.com/themadorg/mailaggregator/lib/api/response"
	"github.com/themadorg/mailaggregator/lib/sl"
)

type Core interface {
	QueryMessages(filter entity.MessageFilter, page entity.Page) ([]*entity.Message, int, error)
	GetMessage(id int64) (*entity.Message, error)
	MarkMessageRead(id int64) error
	ApplyRules() (*entity.ApplyRulesResult, error)
	FetchOnce(ctx context.Context, accountId int64) error
}

// messagePage is the response shape for GET /emails/.
type messagePage struct {
	Messages []*entity.Message `json:"messages"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.emails"), slog.String("request_id", middleware.GetReqID(r.Context())))

		q := r.URL.Query()
		filter := entity.MessageFilter{
			Keyword: q.Get("keyword"),
			Label:   q.Get("label"),
		}
		if v := q.Get("account_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, response.Error("invalid account_id"))
				return
			}
			filter.AccountId = &id
		}
		if v := q.Get("is_read"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, response.Error("invalid is_read"))
				return
			}
			filter.IsRead = &b
		}
		if v := q.Get("date_from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, response.Error("invalid date_from"))
				return
			}
			filter.DateFrom = &t
		}
		if v := q.Get("date_to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, response.Error("invalid date_to"))
				return
			}
			filter.DateTo = &t
		}

		page := entity.Page{Page: 1, PageSize: 25}
		if v := q.Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err == nil {
				page.Page = n
			}
		}
		if v := q.Get("page_size"); v != "" {
			n, err := strconv.Atoi(v)
			if err == nil {
				page.PageSize = n
			}
		}

		messages, total, err := handler.QueryMessages(filter, page)
		if err != nil {
			logger.Error("query messages", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("query messages: %v", err)))
			return
		}
		page.Normalize()
		render.JSON(w, r, response.Ok(messagePage{Messages: messages, Total: total, Page: page.Page, PageSize: page.PageSize}))
	}
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.emails"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid message id"))
			return
		}

		msg, err := handler.GetMessage(id)
		if err != nil {
			logger.Error("get message", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("get message: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(msg))
	}
}

func MarkRead(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.emails"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid message id"))
			return
		}

		if err := handler.MarkMessageRead(id); err != nil {
			logger.Error("mark read", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("mark read: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func ApplyRules(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.emails"), slog.String("request_id", middleware.GetReqID(r.Context())))

		result, err := handler.ApplyRules()
		if err != nil {
			logger.Error("apply rules", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("apply rules: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(result))
	}
}

func FetchOnce(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.emails"), slog.String("request_id", middleware.GetReqID(r.Context())))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid account id"))
			return
		}

		if err := handler.FetchOnce(r.Context(), id); err != nil {
			logger.Error("fetch once", sl.Err(err))
			render.Status(r, httperr.StatusFor(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("fetch once: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
