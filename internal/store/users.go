package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// GetUser looks up the single admin user by username. The control
// plane has exactly one account per spec §3's supplemented auth
// feature, but the schema allows more than one row if ever needed.
func (s *Store) GetUser(username string) (*entity.User, error) {
	row := s.db.QueryRow(`SELECT username, password_hash FROM users WHERE username = ?`, username)
	var u entity.User
	if err := row.Scan(&u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newErr(KindNotFound, "store.GetUser", fmt.Errorf("user %s", username))
		}
		return nil, newErr(KindTransient, "store.GetUser", err)
	}
	return &u, nil
}

// UpsertUser creates or replaces a user's password hash, used on first
// boot and by change-password/reset-password.
func (s *Store) UpsertUser(u *entity.User) error {
	_, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET password_hash=excluded.password_hash`,
		u.Username, u.PasswordHash)
	if err != nil {
		return newErr(KindTransient, "store.UpsertUser", err)
	}
	return nil
}

// AnyUserExists reports whether at least one admin user has been
// provisioned, used by the boot sequence to decide whether to seed a
// default account.
func (s *Store) AnyUserExists() (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, newErr(KindTransient, "store.AnyUserExists", err)
	}
	return n > 0, nil
}

// CreateSession persists a login session token with its expiry.
func (s *Store) CreateSession(sess *entity.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (token, username, created_at, expires_at)
		VALUES (?, ?, ?, ?)`, sess.Token, sess.Username, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return newErr(KindTransient, "store.CreateSession", err)
	}
	return nil
}

// GetSession looks up a session by token. Callers are responsible for
// checking ExpiresAt; auth.AuthenticateByToken deletes an expired row
// when it finds one.
func (s *Store) GetSession(token string) (*entity.Session, error) {
	row := s.db.QueryRow(`SELECT token, username, created_at, expires_at FROM sessions WHERE token = ?`, token)
	var sess entity.Session
	if err := row.Scan(&sess.Token, &sess.Username, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newErr(KindNotFound, "store.GetSession", fmt.Errorf("session not found"))
		}
		return nil, newErr(KindTransient, "store.GetSession", err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return newErr(KindTransient, "store.DeleteSession", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session past expiry. The
// retention sweep does not call it.
func (s *Store) DeleteExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, newErr(KindTransient, "store.DeleteExpiredSessions", err)
	}
	return res.RowsAffected()
}
