package auth

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/store"
)

func newTestAuth(t *testing.T, resetToken string) (*Auth, *store.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, resetToken, log), s
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	a, s := newTestAuth(t, "")
	if err := a.Bootstrap("admin", "hunter22"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := a.Login("admin", "hunter22"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A second Bootstrap call must not reset the password.
	if err := a.Bootstrap("admin", "different"); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if _, err := a.Login("admin", "hunter22"); err != nil {
		t.Fatalf("Login after second Bootstrap: %v", err)
	}
	_ = s
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a, _ := newTestAuth(t, "")
	if err := a.Bootstrap("admin", "correct-horse"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := a.Login("admin", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	a, _ := newTestAuth(t, "")
	if _, err := a.Login("nobody", "whatever"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateByTokenSession(t *testing.T) {
	a, _ := newTestAuth(t, "")
	if err := a.Bootstrap("admin", "password1"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	sess, err := a.Login("admin", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	u, err := a.AuthenticateByToken(sess.Token)
	if err != nil {
		t.Fatalf("AuthenticateByToken: %v", err)
	}
	if u.Username != "admin" {
		t.Fatalf("unexpected username: %q", u.Username)
	}
}

func TestAuthenticateByTokenAPIToken(t *testing.T) {
	a, s := newTestAuth(t, "")
	apiToken := "static-token-123"
	if _, err := s.PatchSettings(&entity.SettingsPatch{APIToken: &apiToken}); err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}

	u, err := a.AuthenticateByToken(apiToken)
	if err != nil {
		t.Fatalf("AuthenticateByToken: %v", err)
	}
	if u.Username != "api" {
		t.Fatalf("expected api identity, got %q", u.Username)
	}
}

func TestAuthenticateByTokenUnknown(t *testing.T) {
	a, _ := newTestAuth(t, "")
	if _, err := a.AuthenticateByToken("bogus"); err != ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestAuthenticateByTokenExpiredSession(t *testing.T) {
	a, s := newTestAuth(t, "")
	if err := a.Bootstrap("admin", "password1"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	sess := &entity.Session{
		Token:     "expired-token",
		Username:  "admin",
		CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := a.AuthenticateByToken(sess.Token); err != ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound for expired session, got %v", err)
	}
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	a, _ := newTestAuth(t, "")
	if err := a.Bootstrap("admin", "original-pw"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := a.ChangePassword("admin", "wrong-old", "new-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := a.ChangePassword("admin", "original-pw", "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := a.Login("admin", "new-password"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}

func TestResetPasswordRequiresMatchingToken(t *testing.T) {
	a, _ := newTestAuth(t, "reset-secret")
	if err := a.Bootstrap("admin", "original-pw"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := a.ResetPassword("admin", "wrong-secret", "new-password"); err != ErrInvalidResetToken {
		t.Fatalf("expected ErrInvalidResetToken, got %v", err)
	}
	if err := a.ResetPassword("admin", "reset-secret", "new-password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := a.Login("admin", "new-password"); err != nil {
		t.Fatalf("Login after reset: %v", err)
	}
}
