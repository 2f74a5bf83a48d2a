// Package core is the composition root's facade: it wires the store,
// scheduler, fetcher, delivery, cipher, auth, and retention packages
// behind one surface the HTTP handler packages depend on.
package core

import (
	"log/slog"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/auth"
	"github.com/themadorg/mailaggregator/internal/cipher"
	"github.com/themadorg/mailaggregator/internal/delivery"
	"github.com/themadorg/mailaggregator/internal/fetcher"
	"github.com/themadorg/mailaggregator/internal/pollstatus"
	"github.com/themadorg/mailaggregator/internal/retention"
	"github.com/themadorg/mailaggregator/internal/scheduler"
	"github.com/themadorg/mailaggregator/internal/store"
	"github.com/themadorg/mailaggregator/lib/sl"
)

// Core aggregates every long-lived component the HTTP handlers need,
// so api.New only has to depend on one Handler composed from small
// per-package Core interfaces, each satisfied by this type.
type Core struct {
	store      *store.Store
	scheduler  *scheduler.Scheduler
	fetcher    *fetcher.Fetcher
	delivery   *delivery.Fanout
	pollCache  *pollstatus.Cache
	cipher     *cipher.Cipher
	auth       *auth.Auth
	retention  *retention.Sweeper
	log        *slog.Logger
}

func New(
	st *store.Store,
	sch *scheduler.Scheduler,
	fet *fetcher.Fetcher,
	fan *delivery.Fanout,
	pc *pollstatus.Cache,
	ciph *cipher.Cipher,
	a *auth.Auth,
	ret *retention.Sweeper,
	log *slog.Logger,
) *Core {
	return &Core{
		store:     st,
		scheduler: sch,
		fetcher:   fet,
		delivery:  fan,
		pollCache: pc,
		cipher:    ciph,
		auth:      a,
		retention: ret,
		log:       log.With(sl.Module("core")),
	}
}

// AuthenticateByToken implements authenticate.Authenticate by
// delegating straight to the auth package.
func (c *Core) AuthenticateByToken(token string) (*entity.User, error) {
	return c.auth.AuthenticateByToken(token)
}
