package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"graphi/backend/internal/access"
	"graphi/backend/internal/aggregate"
	"graphi/backend/internal/apperr"
	"graphi/backend/internal/cache"
	"graphi/backend/internal/currency"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/ledger"
	"graphi/backend/internal/store"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID    string
	SessionID string
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

type Deps struct {
	Repo       store.Repository
	Ledger     *ledger.Ledger
	Stats      *aggregate.Engine
	Authorizer *access.Authorizer
	Converter  currency.Converter
	// Sessions holds every session's authorization grants, namespaced per
	// session id.
	Sessions cache.Store
	// Locker serializes currency migrations per store. Defaults to an
	// in-process locker.
	Locker           Locker
	MigrationWorkers int
	Logger           *slog.Logger
	Now              func() time.Time
}

type Service struct {
	repo       store.Repository
	ledger     *ledger.Ledger
	stats      *aggregate.Engine
	authorizer *access.Authorizer
	converter  currency.Converter
	sessions   cache.Store
	locker     Locker
	workers    int
	logger     *slog.Logger
	now        func() time.Time
}

func New(d Deps) *Service {
	if d.Sessions == nil {
		d.Sessions = cache.NewMemory()
	}
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	if d.MigrationWorkers < 1 {
		d.MigrationWorkers = 8
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Authorizer == nil {
		d.Authorizer = access.NewAuthorizer(access.DefaultWindow, d.Now, d.Logger)
	}

	return &Service{
		repo:       d.Repo,
		ledger:     d.Ledger,
		stats:      d.Stats,
		authorizer: d.Authorizer,
		converter:  d.Converter,
		sessions:   d.Sessions,
		locker:     d.Locker,
		workers:    d.MigrationWorkers,
		logger:     d.Logger.With(slog.String("component", "service")),
		now:        d.Now,
	}
}

// CurrentUser loads the user behind the request actor.
func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.User{}, apperr.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

// session is the caller's slice of the session store.
func (s *Service) session(ctx context.Context) cache.Store {
	actor, _ := ActorFromContext(ctx)
	return cache.Scoped(s.sessions, "session:"+actor.SessionID+":")
}

// ownedStore loads a store the caller owns, without checking its passkey.
func (s *Service) ownedStore(ctx context.Context, storeID string) (domain.User, domain.Store, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, domain.Store{}, err
	}
	shop, err := s.repo.GetStore(ctx, strings.TrimSpace(storeID))
	if err != nil {
		return domain.User{}, domain.Store{}, err
	}
	if !shop.OwnedBy(user.ID) {
		return domain.User{}, domain.Store{}, apperr.ErrNotOwner
	}
	return user, *shop, nil
}

// authorizedStore is ownedStore plus a live passkey grant when the store
// has a passkey.
func (s *Service) authorizedStore(ctx context.Context, storeID string) (domain.User, domain.Store, error) {
	user, shop, err := s.ownedStore(ctx, storeID)
	if err != nil {
		return domain.User{}, domain.Store{}, err
	}
	if err := s.authorizer.Require(ctx, s.session(ctx), shop, user); err != nil {
		return domain.User{}, domain.Store{}, err
	}
	return user, shop, nil
}
