// Package auth implements the login/session endpoints (spec §6
// "/auth"), delegating verification to internal/auth.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/lib/api/cont"
	"github.com/themadorg/mailaggregator/lib/api/response"
	"github.com/themadorg/mailaggregator/lib/sl"
	"github.com/themadorg/mailaggregator/lib/validate"
)

type Core interface {
	AuthConfig() (*entity.AuthConfig, error)
	Login(username, password string) (*entity.LoginResponse, error)
	Logout(token string) error
	ChangePassword(username, oldPassword, newPassword string) error
	ResetPassword(username, resetToken, newPassword string) error
}

func Config(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.auth"), slog.String("request_id", middleware.GetReqID(r.Context())))

		cfg, err := handler.AuthConfig()
		if err != nil {
			logger.Error("auth config", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("auth config: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(cfg))
	}
}

func Login(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.auth"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var req entity.LoginRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		sess, err := handler.Login(req.Username, req.Password)
		if err != nil {
			logger.Error("login", "username", req.Username, sl.Err(err))
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid username or password"))
			return
		}
		render.JSON(w, r, response.Ok(sess))
	}
}

func Logout(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.auth"), slog.String("request_id", middleware.GetReqID(r.Context())))

		token := bearerToken(r)
		if token == "" {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("missing bearer token"))
			return
		}
		if err := handler.Logout(token); err != nil {
			logger.Error("logout", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("logout: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func ChangePassword(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.auth"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var req entity.ChangePasswordRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		user := cont.GetUser(r.Context())
		if user.Username == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("unauthorized"))
			return
		}

		if err := handler.ChangePassword(user.Username, req.OldPassword, req.NewPassword); err != nil {
			logger.Error("change password", sl.Err(err))
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error(fmt.Sprintf("change password: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func ResetPassword(log *slog.Logger, handler Core, adminUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(sl.Module("http.handlers.auth"), slog.String("request_id", middleware.GetReqID(r.Context())))

		var req entity.ResetPasswordRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("invalid request: %v", err)))
			return
		}

		if err := handler.ResetPassword(adminUsername, req.ResetToken, req.NewPassword); err != nil {
			logger.Error("reset password", sl.Err(err))
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error(fmt.Sprintf("reset password: %v", err)))
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.Contains(header, "Bearer") {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
