package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
)

// ContextKey is used to store the authenticated principal in the request
// context.
type ContextKey string

const (
	// UserKey is the context key for the identity.User of the request.
	UserKey ContextKey = "user"
	// RoleKey is the context key for the resolved role of the request.
	RoleKey ContextKey = "role"
)

// IdentityClient is the subset of the hosted identity API the middleware
// needs.
type IdentityClient interface {
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
}

// AuthMiddleware resolves the bearer token of each request to a user and a
// portal role.
type AuthMiddleware struct {
	idp      IdentityClient
	profiles models.ProfileRepository
	logger   *zap.Logger
}

func NewAuthMiddleware(idp IdentityClient, profiles models.ProfileRepository, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		idp:      idp,
		profiles: profiles,
		logger:   logger,
	}
}

// Authenticate verifies the bearer token and stores user and role in the
// request context. Role lookup failure degrades to the client role; a bad
// token is a hard 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			renderJSON(w, http.StatusUnauthorized, models.APIError{Code: http.StatusUnauthorized, Message: "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			renderJSON(w, http.StatusUnauthorized, models.APIError{Code: http.StatusUnauthorized, Message: "invalid authorization format"})
			return
		}

		user, err := m.idp.GetUser(r.Context(), parts[1])
		if err != nil {
			renderJSON(w, http.StatusUnauthorized, models.APIError{Code: http.StatusUnauthorized, Message: "invalid token"})
			return
		}

		role := models.RoleClient

		profile, err := m.profiles.GetByUserID(r.Context(), user.ID)
		if err == nil && profile.Role != "" {
			role = profile.Role
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			m.logger.Warn("role lookup failed, defaulting to client",
				zap.String("user", user.ID), zap.Error(err))
		}

		ctx := context.WithValue(r.Context(), UserKey, user)
		ctx = context.WithValue(ctx, RoleKey, role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a handler to the listed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := GetRole(r.Context())
			if err != nil {
				renderJSON(w, http.StatusUnauthorized, models.APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
				return
			}

			if _, ok := allowed[role]; !ok {
				renderJSON(w, http.StatusForbidden, models.APIError{Code: http.StatusForbidden, Message: "insufficient role"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUser extracts the authenticated user from the request context.
func GetUser(ctx context.Context) (identity.User, error) {
	user, ok := ctx.Value(UserKey).(identity.User)
	if !ok {
		return identity.User{}, errors.New("user not authenticated")
	}

	return user, nil
}

// GetRole extracts the resolved role from the request context.
func GetRole(ctx context.Context) (string, error) {
	role, ok := ctx.Value(RoleKey).(string)
	if !ok {
		return "", errors.New("user not authenticated")
	}

	return role, nil
}
