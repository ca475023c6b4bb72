package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/catalog"
	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/tlmt"
	"github.com/bbnconsulting/report-portal/uploader"
)

// maxUploadMemory bounds the in-memory part of a multipart upload parse.
const maxUploadMemory = 32 << 20

// Dependencies aggregates the shared services used by handlers.
type Dependencies struct {
	Logger    *zap.Logger
	Catalog   *catalog.Aggregator
	Writer    *uploader.Writer
	Jobs      models.JobRepository
	Identity  *identity.Client
	Profiles  models.ProfileRepository
	Telemetry tlmt.Telemetry
}

// Handlers contains the JSON API routes of the portal.
type Handlers struct {
	Deps Dependencies
}

// GetCatalog returns the full aggregated catalog, optionally filtered by
// the q query parameter.
func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	tree, err := h.Deps.Catalog.Build(r.Context())
	if err != nil {
		h.Deps.Logger.Error("catalog build failed", zap.Error(err))
		renderJSON(w, http.StatusBadGateway, models.APIError{Code: http.StatusBadGateway, Message: "catalog unavailable"})
		return
	}

	if needle := r.URL.Query().Get("q"); needle != "" {
		tree = catalog.Search(tree, needle)
	}

	_ = h.Deps.Telemetry.Send(r.Context(), tlmt.NewEvent("catalog_build", map[string]any{
		"jobs": len(tree),
	}))

	renderJSON(w, http.StatusOK, tree)
}

// GetJobCatalog returns the scoped catalog of one job, all four categories
// included even when empty.
func (h *Handlers) GetJobCatalog(w http.ResponseWriter, r *http.Request) {
	jobCode := mux.Vars(r)["jobCode"]

	entry, err := h.Deps.Catalog.BuildJob(r.Context(), jobCode)
	if err != nil {
		if errors.Is(err, models.ErrInvalidJobCode) {
			renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
			return
		}

		h.Deps.Logger.Error("job catalog build failed", zap.String("job", jobCode), zap.Error(err))
		renderJSON(w, http.StatusBadGateway, models.APIError{Code: http.StatusBadGateway, Message: "catalog unavailable"})
		return
	}

	renderJSON(w, http.StatusOK, entry)
}

// GetJobs lists the jobs table, newest first.
func (h *Handlers) GetJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Deps.Jobs.Select(r.Context())
	if err != nil {
		h.Deps.Logger.Error("jobs listing failed", zap.Error(err))
		renderJSON(w, http.StatusInternalServerError, models.APIError{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}

	renderJSON(w, http.StatusOK, jobs)
}

// CreateJob inserts a jobs table row.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
		return
	}

	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	if err := job.Validate(); err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
		return
	}

	if err := h.Deps.Jobs.Create(r.Context(), &job); err != nil {
		h.Deps.Logger.Error("job insert failed", zap.String("job", job.JobCode), zap.Error(err))
		renderJSON(w, http.StatusInternalServerError, models.APIError{Code: http.StatusInternalServerError, Message: "failed to create job"})
		return
	}

	renderJSON(w, http.StatusCreated, job)
}

// Upload accepts a multipart batch: job_code, category, optional address
// and overwrite fields plus one or more files parts.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: "invalid multipart form"})
		return
	}

	req := models.UploadRequest{
		JobCode:   r.FormValue("job_code"),
		Address:   r.FormValue("address"),
		Category:  r.FormValue("category"),
		Overwrite: r.FormValue("overwrite") == "true",
	}

	fileHeaders := r.MultipartForm.File["files"]

	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: "unreadable file part: " + fh.Filename})
			return
		}

		defer f.Close()

		req.Files = append(req.Files, models.FileUpload{Name: fh.Filename, Body: f})
	}

	summary, err := h.Deps.Writer.Upload(r.Context(), req)
	if err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
		return
	}

	_ = h.Deps.Telemetry.Send(r.Context(), tlmt.NewEvent("upload_batch", map[string]any{
		"files":     len(req.Files),
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}))

	renderJSON(w, http.StatusOK, summary)
}

// UploadProgress reports the tracker snapshot of in-flight batches.
func (h *Handlers) UploadProgress(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, h.Deps.Writer.Tracker().Snapshot())
}

type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// MagicLink asks the identity service to email a sign-in link. It is the
// only unauthenticated mutation in the API.
func (h *Handlers) MagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
		return
	}

	if err := h.Deps.Identity.SendMagicLink(r.Context(), req.Email, req.RedirectTo); err != nil {
		if errors.Is(err, identity.ErrInvalidEmail) {
			renderJSON(w, http.StatusUnprocessableEntity, models.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})
			return
		}

		h.Deps.Logger.Error("magic link request failed", zap.Error(err))
		renderJSON(w, http.StatusBadGateway, models.APIError{Code: http.StatusBadGateway, Message: "could not send magic link"})
		return
	}

	renderJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type sessionResponse struct {
	User identity.User `json:"user"`
	Role string        `json:"role"`
}

// GetSession echoes the authenticated principal of the request.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	user, err := GetUser(r.Context())
	if err != nil {
		renderJSON(w, http.StatusUnauthorized, models.APIError{Code: http.StatusUnauthorized, Message: "not authenticated"})
		return
	}

	role, _ := GetRole(r.Context())

	renderJSON(w, http.StatusOK, sessionResponse{User: user, Role: role})
}

// SignOut revokes the session behind the request's token. Revocation
// failures are logged but the client still ends up signed out.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); token != "" {
		if err := h.Deps.Identity.SignOut(r.Context(), token); err != nil {
			h.Deps.Logger.Warn("remote sign-out failed", zap.Error(err))
		}
	}

	renderJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Health is the unauthenticated liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
