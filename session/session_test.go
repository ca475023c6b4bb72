package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/session"
)

type fakeIdentity struct {
	users       map[string]identity.User // access token -> user
	refreshed   identity.Session
	refreshErr  error
	signedOut   []string
	refreshUsed bool
}

func (f *fakeIdentity) GetUser(_ context.Context, accessToken string) (identity.User, error) {
	user, ok := f.users[accessToken]
	if !ok {
		return identity.User{}, identity.ErrUnauthorized
	}

	return user, nil
}

func (f *fakeIdentity) RefreshSession(_ context.Context, _ string) (identity.Session, error) {
	f.refreshUsed = true

	if f.refreshErr != nil {
		return identity.Session{}, f.refreshErr
	}

	return f.refreshed, nil
}

func (f *fakeIdentity) SignOut(_ context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)

	return nil
}

type fakeProfiles struct {
	profiles map[string]models.Profile
	err      error
}

func (f *fakeProfiles) GetByUserID(_ context.Context, userID string) (models.Profile, error) {
	if f.err != nil {
		return models.Profile{}, f.err
	}

	p, ok := f.profiles[userID]
	if !ok {
		return models.Profile{}, models.ErrNotFound
	}

	return p, nil
}

func newGate(idp *fakeIdentity, profiles *fakeProfiles, tokens session.TokenStore) *session.Gate {
	return session.NewGate(idp, profiles, tokens, zap.NewNop())
}

func TestGateStartsAnonymousWithoutTokens(t *testing.T) {
	gate := newGate(&fakeIdentity{}, &fakeProfiles{}, session.NewMemoryTokenStore())

	snap := gate.Snapshot()
	assert.Equal(t, session.StateInitializing, snap.State)
	assert.True(t, snap.Loading)

	gate.Start(context.Background())

	snap = gate.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State)
	assert.False(t, snap.Loading)
	assert.Equal(t, models.RoleClient, snap.Role)
}

func TestGateRestoresSessionAndRole(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-1": {ID: "u-1", Email: "staff@bbn.example"},
	}}
	profiles := &fakeProfiles{profiles: map[string]models.Profile{
		"u-1": {UserID: "u-1", Role: models.RoleUploader},
	}}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-1", "ref-1"))

	gate := newGate(idp, profiles, tokens)
	gate.Start(context.Background())

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, "u-1", snap.User.ID)
	assert.Equal(t, models.RoleUploader, snap.Role)
}

func TestGateRefreshesExpiredAccessToken(t *testing.T) {
	idp := &fakeIdentity{
		users: map[string]identity.User{
			"tok-new": {ID: "u-1", Email: "staff@bbn.example"},
		},
		refreshed: identity.Session{
			AccessToken:  "tok-new",
			RefreshToken: "ref-new",
			User:         identity.User{ID: "u-1", Email: "staff@bbn.example"},
		},
	}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-stale", "ref-1"))

	gate := newGate(idp, &fakeProfiles{}, tokens)
	gate.Start(context.Background())

	assert.True(t, idp.refreshUsed)

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)

	access, refresh, err := tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-new", access)
	assert.Equal(t, "ref-new", refresh)
}

func TestGateClearsDeadSession(t *testing.T) {
	idp := &fakeIdentity{refreshErr: errors.New("refresh token revoked")}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-stale", "ref-stale"))

	gate := newGate(idp, &fakeProfiles{}, tokens)
	gate.Start(context.Background())

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State)

	access, _, err := tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, access)
}

func TestGateRoleLookupFailureDefaultsToClient(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-1": {ID: "u-1"},
	}}
	profiles := &fakeProfiles{err: errors.New("profiles table unavailable")}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-1", ""))

	gate := newGate(idp, profiles, tokens)
	gate.Start(context.Background())

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, models.RoleClient, snap.Role)
	assert.False(t, models.CanUpload(snap.Role))
}

func TestGateSetSessionFromMagicLink(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-magic": {ID: "u-2", Email: "client@example.com"},
	}}
	profiles := &fakeProfiles{profiles: map[string]models.Profile{
		"u-2": {UserID: "u-2", Role: models.RoleAdmin},
	}}
	tokens := session.NewMemoryTokenStore()

	gate := newGate(idp, profiles, tokens)
	gate.Start(context.Background())

	var notified []session.Snapshot
	unsubscribe := gate.Subscribe(func(s session.Snapshot) {
		notified = append(notified, s)
	})
	defer unsubscribe()

	require.NoError(t, gate.SetSession(context.Background(), "tok-magic", "ref-magic"))

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, models.RoleAdmin, snap.Role)

	require.Len(t, notified, 1)
	assert.Equal(t, session.StateAuthenticated, notified[0].State)

	access, _, err := tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-magic", access)
}

func TestGateSetSessionRejectsBadToken(t *testing.T) {
	gate := newGate(&fakeIdentity{}, &fakeProfiles{}, session.NewMemoryTokenStore())
	gate.Start(context.Background())

	err := gate.SetSession(context.Background(), "bogus", "bogus")
	require.ErrorIs(t, err, identity.ErrUnauthorized)
	assert.Equal(t, session.StateAnonymous, gate.Snapshot().State)
}

func TestGateSignOutClearsTokensEvenWhenRemoteFails(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-1": {ID: "u-1"},
	}}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-1", "ref-1"))

	gate := newGate(idp, &fakeProfiles{}, tokens)
	gate.Start(context.Background())
	require.Equal(t, session.StateAuthenticated, gate.Snapshot().State)

	gate.SignOut(context.Background())

	assert.Equal(t, session.StateAnonymous, gate.Snapshot().State)
	assert.Contains(t, idp.signedOut, "tok-1")

	access, refresh, err := tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestGateRefreshRoleInPlace(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-1": {ID: "u-1"},
	}}
	profiles := &fakeProfiles{profiles: map[string]models.Profile{}}
	tokens := session.NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-1", ""))

	gate := newGate(idp, profiles, tokens)
	gate.Start(context.Background())
	require.Equal(t, models.RoleClient, gate.Snapshot().Role)

	// The profile row appears later; the role re-resolves in place.
	profiles.profiles["u-1"] = models.Profile{UserID: "u-1", Role: models.RoleUploader}
	gate.RefreshRole(context.Background())

	snap := gate.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, models.RoleUploader, snap.Role)
}

func TestGateUnsubscribeStopsNotifications(t *testing.T) {
	idp := &fakeIdentity{users: map[string]identity.User{
		"tok-1": {ID: "u-1"},
	}}
	gate := newGate(idp, &fakeProfiles{}, session.NewMemoryTokenStore())
	gate.Start(context.Background())

	count := 0
	unsubscribe := gate.Subscribe(func(session.Snapshot) { count++ })

	require.NoError(t, gate.SetSession(context.Background(), "tok-1", ""))
	assert.Equal(t, 1, count)

	unsubscribe()
	gate.SignOut(context.Background())
	assert.Equal(t, 1, count)
}
