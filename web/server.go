package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/models"
)

// Server is the HTTP front of the portal.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New wraps the API router in an http.Server listening on addr.
func New(addr string, deps Dependencies) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: deps.Logger,
	}
}

// NewRouter builds the API route table with its auth and role middleware.
func NewRouter(deps Dependencies) *mux.Router {
	h := &Handlers{Deps: deps}
	auth := NewAuthMiddleware(deps.Identity, deps.Profiles, deps.Logger)

	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Magic link request is the only unauthenticated API route.
	api.HandleFunc("/auth/magiclink", h.MagicLink).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(auth.Authenticate)

	authed.HandleFunc("/auth/session", h.GetSession).Methods(http.MethodGet)
	authed.HandleFunc("/auth/signout", h.SignOut).Methods(http.MethodPost)
	authed.HandleFunc("/catalog", h.GetCatalog).Methods(http.MethodGet)
	authed.HandleFunc("/jobs", h.GetJobs).Methods(http.MethodGet)
	authed.HandleFunc("/jobs/{jobCode}", h.GetJobCatalog).Methods(http.MethodGet)

	staff := api.NewRoute().Subrouter()
	staff.Use(auth.Authenticate, RequireRole(models.RoleAdmin, models.RoleUploader))

	staff.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)
	staff.HandleFunc("/upload/progress", h.UploadProgress).Methods(http.MethodGet)

	admin := api.NewRoute().Subrouter()
	admin.Use(auth.Authenticate, RequireRole(models.RoleAdmin))

	admin.HandleFunc("/jobs", h.CreateJob).Methods(http.MethodPost)

	return r
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		s.logger.Info("portal listening", zap.String("addr", s.srv.Addr))

		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}

		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.srv.Shutdown(shutdownCtx)
}
