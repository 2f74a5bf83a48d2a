package core

import (
	"github.com/themadorg/mailaggregator/entity"
)

// AuthConfig reports whether a password login is currently possible,
// backing GET /auth/config for the web console.
func (c *Core) AuthConfig() (*entity.AuthConfig, error) {
	exists, err := c.store.AnyUserExists()
	if err != nil {
		return nil, err
	}
	return &entity.AuthConfig{LoginEnabled: exists}, nil
}

func (c *Core) Login(username, password string) (*entity.LoginResponse, error) {
	sess, err := c.auth.Login(username, password)
	if err != nil {
		return nil, err
	}
	return &entity.LoginResponse{Token: sess.Token, Username: sess.Username, ExpiresAt: sess.ExpiresAt}, nil
}

func (c *Core) Logout(token string) error {
	return c.auth.Logout(token)
}

func (c *Core) ChangePassword(username, oldPassword, newPassword string) error {
	return c.auth.ChangePassword(username, oldPassword, newPassword)
}

func (c *Core) ResetPassword(username, resetToken, newPassword string) error {
	return c.auth.ResetPassword(username, resetToken, newPassword)
}
