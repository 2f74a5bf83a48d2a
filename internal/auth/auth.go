// Package auth issues and verifies the control plane's two token kinds:
// a static bearer token (settings.api_token) and session tokens minted
// by password login. A thin wrapper delegating straight to the store,
// checking either token kind before falling through to the other.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/store"
	"github.com/themadorg/mailaggregator/lib/sl"
)

// sessionTTL is how long a password-login session stays valid.
const sessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrInvalidResetToken  = errors.New("auth: invalid reset token")
	ErrTokenNotFound      = errors.New("auth: token not recognized")
)

// Store is the narrow persistence surface Auth needs.
type Store interface {
	GetUser(username string) (*entity.User, error)
	UpsertUser(u *entity.User) error
	AnyUserExists() (bool, error)
	CreateSession(sess *entity.Session) error
	GetSession(token string) (*entity.Session, error)
	DeleteSession(token string) error
	GetSettings() (*entity.Settings, error)
}

// Auth issues sessions and verifies both bearer and session tokens.
type Auth struct {
	store      Store
	resetToken string
	log        *slog.Logger
}

func New(store Store, resetToken string, log *slog.Logger) *Auth {
	return &Auth{store: store, resetToken: resetToken, log: log.With(sl.Module("auth"))}
}

// Bootstrap seeds the single administrator account on first boot only;
// a user already present is left untouched.
func (a *Auth) Bootstrap(username, password string) error {
	exists, err := a.store.AnyUserExists()
	if err != nil {
		return fmt.Errorf("check existing users: %w", err)
	}
	if exists {
		return nil
	}
	if username == "" || password == "" {
		a.log.Warn("no admin user exists and ADMIN_USERNAME/ADMIN_PASSWORD are unset; login will be unavailable until one is created")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	return a.store.UpsertUser(&entity.User{Username: username, PasswordHash: string(hash)})
}

// Login verifies username/password and mints a new session token.
func (a *Auth) Login(username, password string) (*entity.Session, error) {
	user, err := a.store.GetUser(username)
	if err != nil {
		if store.ErrNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	sess := &entity.Session{
		Token:     uuid.NewString(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	if err := a.store.CreateSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout invalidates a session token.
func (a *Auth) Logout(token string) error {
	return a.store.DeleteSession(token)
}

// ChangePassword verifies the caller's current password before setting
// a new one.
func (a *Auth) ChangePassword(username, oldPassword, newPassword string) error {
	user, err := a.store.GetUser(username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.store.UpsertUser(&entity.User{Username: username, PasswordHash: string(hash)})
}

// ResetPassword replaces the admin user's password when presented the
// operator-configured ADMIN_RESET_TOKEN, bypassing the old-password
// check — the documented recovery path when credentials are lost.
func (a *Auth) ResetPassword(username, resetToken, newPassword string) error {
	if a.resetToken == "" || resetToken != a.resetToken {
		return ErrInvalidResetToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.store.UpsertUser(&entity.User{Username: username, PasswordHash: string(hash)})
}

// AuthenticateByToken implements authenticate.Authenticate. token is
// accepted either as the static bearer token (settings.api_token) or
// as a live session token minted by Login.
func (a *Auth) AuthenticateByToken(token string) (*entity.User, error) {
	settings, err := a.store.GetSettings()
	if err == nil && settings.APIToken != "" && token == settings.APIToken {
		return &entity.User{Username: "api"}, nil
	}

	sess, err := a.store.GetSession(token)
	if err != nil {
		if store.ErrNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		_ = a.store.DeleteSession(token)
		return nil, ErrTokenNotFound
	}
	return &entity.User{Username: sess.Username}, nil
}
