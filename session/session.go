// Package session owns the signed-in state of the portal: one Gate value
// restores the hosted session, resolves the coarse role used to branch
// behaviour, and notifies subscribers on every change. The gate is passed
// around by injection; there is no ambient global.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
)

// State of the gate. Initializing lasts only until the first session
// restore attempt completes.
type State int

const (
	StateInitializing State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is the externally visible gate state.
type Snapshot struct {
	State   State
	User    identity.User
	Role    string
	Loading bool
}

// IdentityClient is the subset of the hosted identity API the gate needs.
type IdentityClient interface {
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Gate tracks the current session and role.
type Gate struct {
	idp      IdentityClient
	profiles models.ProfileRepository
	tokens   TokenStore
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	user      identity.User
	role      string
	loading   bool
	access    string
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewGate(idp IdentityClient, profiles models.ProfileRepository, tokens TokenStore, logger *zap.Logger) *Gate {
	return &Gate{
		idp:       idp,
		profiles:  profiles,
		tokens:    tokens,
		logger:    logger,
		state:     StateInitializing,
		role:      models.RoleClient,
		loading:   true,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Start restores any persisted session. It must be called once at startup;
// afterwards Loading reports false regardless of the outcome.
func (g *Gate) Start(ctx context.Context) {
	access, refresh, err := g.tokens.Load()
	if err != nil || access == "" {
		g.become(StateAnonymous, identity.User{}, models.RoleClient, "")

		return
	}

	user, err := g.idp.GetUser(ctx, access)
	if err != nil && refresh != "" {
		// Access token expired; try the refresh token once. No retry loop.
		session, rerr := g.idp.RefreshSession(ctx, refresh)
		if rerr == nil {
			_ = g.tokens.Save(session.AccessToken, session.RefreshToken)
			access, user, err = session.AccessToken, session.User, nil
		}
	}

	if err != nil {
		g.logger.Info("stored session no longer valid", zap.Error(err))
		_ = g.tokens.Clear()
		g.become(StateAnonymous, identity.User{}, models.RoleClient, "")

		return
	}

	g.become(StateAuthenticated, user, g.resolveRole(ctx, user.ID), access)
}

// SetSession installs a token pair, typically consumed from a magic link
// redirect, and resolves the user and role behind it.
func (g *Gate) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	user, err := g.idp.GetUser(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := g.tokens.Save(accessToken, refreshToken); err != nil {
		g.logger.Warn("persisting session tokens failed", zap.Error(err))
	}

	g.become(StateAuthenticated, user, g.resolveRole(ctx, user.ID), accessToken)

	return nil
}

// SignOut revokes the hosted session and always clears the locally cached
// tokens, even when the remote call fails.
func (g *Gate) SignOut(ctx context.Context) {
	g.mu.Lock()
	access := g.access
	g.mu.Unlock()

	if access != "" {
		if err := g.idp.SignOut(ctx, access); err != nil {
			g.logger.Warn("remote sign-out failed", zap.Error(err))
		}
	}

	if err := g.tokens.Clear(); err != nil {
		g.logger.Warn("clearing cached tokens failed", zap.Error(err))
	}

	g.become(StateAnonymous, identity.User{}, models.RoleClient, "")
}

// RefreshRole re-resolves the role of the current user without leaving the
// authenticated state.
func (g *Gate) RefreshRole(ctx context.Context) {
	g.mu.Lock()
	state, user, access := g.state, g.user, g.access
	g.mu.Unlock()

	if state != StateAuthenticated {
		return
	}

	g.become(StateAuthenticated, user, g.resolveRole(ctx, user.ID), access)
}

// Snapshot returns the current gate state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Snapshot{State: g.state, User: g.user, Role: g.role, Loading: g.loading}
}

// Subscribe registers a listener called on every state change. The returned
// function unsubscribes it.
func (g *Gate) Subscribe(fn func(Snapshot)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.listeners[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		delete(g.listeners, id)
	}
}

// Close drops all listeners.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listeners = make(map[int]func(Snapshot))
}

// resolveRole looks up the one profile row of a user. Lookup failure or
// absence degrades to the client role, never to an error.
func (g *Gate) resolveRole(ctx context.Context, userID string) string {
	profile, err := g.profiles.GetByUserID(ctx, userID)
	if err != nil || profile.Role == "" {
		if err != nil {
			g.logger.Warn("role lookup failed, defaulting to client",
				zap.String("user", userID), zap.Error(err))
		}

		return models.RoleClient
	}

	return profile.Role
}

func (g *Gate) become(state State, user identity.User, role, access string) {
	g.mu.Lock()

	g.state = state
	g.user = user
	g.role = role
	g.access = access
	g.loading = false

	snap := Snapshot{State: g.state, User: g.user, Role: g.role, Loading: g.loading}

	fns := make([]func(Snapshot), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}

	g.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
