package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbnconsulting/report-portal/identity"
)

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_ = json.NewEncoder(w).Encode(identity.User{ID: "u-1", Email: "staff@bbn.example"})
	}))
	defer srv.Close()

	client := identity.NewClient(srv.URL, "test-key")

	user, err := client.GetUser(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "staff@bbn.example", user.Email)

	_, err = client.GetUser(context.Background(), "bad-token")
	require.ErrorIs(t, err, identity.ErrUnauthorized)
}

func TestSendMagicLink(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/magiclink", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := identity.NewClient(srv.URL, "test-key")

	err := client.SendMagicLink(context.Background(), "staff@bbn.example", "https://portal.bbn.example")
	require.NoError(t, err)
	assert.Equal(t, "staff@bbn.example", got["email"])
	assert.Equal(t, "https://portal.bbn.example", got["redirect_to"])
}

func TestSendMagicLinkRejectsBadEmail(t *testing.T) {
	called := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := identity.NewClient(srv.URL, "test-key")

	err := client.SendMagicLink(context.Background(), "not-an-email", "")
	require.ErrorIs(t, err, identity.ErrInvalidEmail)
	assert.False(t, called, "no request may be issued for an invalid email")
}

func TestRefreshSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))

		_ = json.NewEncoder(w).Encode(identity.Session{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			User:         identity.User{ID: "u-1"},
		})
	}))
	defer srv.Close()

	client := identity.NewClient(srv.URL, "test-key")

	session, err := client.RefreshSession(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", session.AccessToken)
	assert.Equal(t, "u-1", session.User.ID)
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := identity.NewClient(srv.URL, "test-key")

	err := client.SendMagicLink(context.Background(), "staff@bbn.example", "")
	require.Error(t, err)

	var apiErr *identity.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate limited", apiErr.Message)
}
