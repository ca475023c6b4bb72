package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/catalog"
	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/storage"
	objmem "github.com/bbnconsulting/report-portal/storage/memory"
	"github.com/bbnconsulting/report-portal/tlmt/gonoop"
	"github.com/bbnconsulting/report-portal/uploader"
	"github.com/bbnconsulting/report-portal/web"
	webmem "github.com/bbnconsulting/report-portal/web/memory"
)

// tokens accepted by the identity stub.
var stubUsers = map[string]identity.User{
	"admin-token":    {ID: "u-admin", Email: "admin@bbn.example"},
	"uploader-token": {ID: "u-uploader", Email: "staff@bbn.example"},
	"client-token":   {ID: "u-client", Email: "client@example.com"},
}

type portal struct {
	api     *httptest.Server
	objects *objmem.Store
	jobs    *webmem.JobRepository
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/user":
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

			user, ok := stubUsers[token]
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			_ = json.NewEncoder(w).Encode(user)
		case r.Method == http.MethodPost && r.URL.Path == "/magiclink":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(idp.Close)

	logger := zap.NewNop()

	objects := objmem.New()
	ann := annotation.NewStore(objects, logger)

	profiles := webmem.NewProfileRepository()
	profiles.Put(models.Profile{UserID: "u-admin", Email: "admin@bbn.example", Role: models.RoleAdmin})
	profiles.Put(models.Profile{UserID: "u-uploader", Email: "staff@bbn.example", Role: models.RoleUploader})

	jobs := webmem.NewJobRepository()

	deps := web.Dependencies{
		Logger:    logger,
		Catalog:   catalog.NewAggregator(objects, ann, logger),
		Writer:    uploader.NewWriter(objects, ann, logger),
		Jobs:      jobs,
		Identity:  identity.NewClient(idp.URL, "stub-key"),
		Profiles:  profiles,
		Telemetry: gonoop.New(),
	}

	api := httptest.NewServer(web.NewRouter(deps))
	t.Cleanup(api.Close)

	return &portal{api: api, objects: objects, jobs: jobs}
}

func (p *portal) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, p.api.URL+path, body)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func (p *portal) seed(t *testing.T, key, content string) {
	t.Helper()

	err := p.objects.Upload(context.Background(), key, strings.NewReader(content), storage.UploadOptions{Overwrite: true})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	p := newPortal(t)

	resp := p.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalogRequiresAuth(t *testing.T) {
	p := newPortal(t)

	resp := p.do(t, http.MethodGet, "/api/catalog", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = p.do(t, http.MethodGet, "/api/catalog", "revoked-token", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCatalog(t *testing.T) {
	p := newPortal(t)
	p.seed(t, "BBN.100/Clearance Reports/clearance.pdf", "pdf")
	p.seed(t, "BBN.200/Asbestos ID/sample.pdf", "pdf")
	p.seed(t, "not-a-job/Clearance Reports/stray.pdf", "pdf")

	resp := p.do(t, http.MethodGet, "/api/catalog", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.CatalogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))

	require.Len(t, entries, 2)
	require.Equal(t, "BBN.100", entries[0].Job)
	require.Equal(t, "BBN.200", entries[1].Job)
}

func TestCatalogSearch(t *testing.T) {
	p := newPortal(t)
	p.seed(t, "BBN.100/Clearance Reports/clearance.pdf", "pdf")
	p.seed(t, "BBN.200/Asbestos ID/sample.pdf", "pdf")

	resp := p.do(t, http.MethodGet, "/api/catalog?q=clearance", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.CatalogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))

	require.Len(t, entries, 1)
	require.Equal(t, "BBN.100", entries[0].Job)
}

func TestJobCatalog(t *testing.T) {
	p := newPortal(t)
	p.seed(t, "BBN.300/Asbestos Surveys/survey.pdf", "pdf")

	resp := p.do(t, http.MethodGet, "/api/jobs/BBN.300", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entry models.CatalogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))

	require.Equal(t, "BBN.300", entry.Job)
	require.Len(t, entry.Groups, len(models.Categories()))
}

func TestJobCatalogRejectsBadCode(t *testing.T) {
	p := newPortal(t)

	resp := p.do(t, http.MethodGet, "/api/jobs/notajob", "client-token", nil, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func uploadForm(t *testing.T, jobCode, category string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	require.NoError(t, mw.WriteField("job_code", jobCode))
	require.NoError(t, mw.WriteField("category", category))
	require.NoError(t, mw.WriteField("address", "12 Harbour St"))

	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)

		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	p := newPortal(t)

	body, ctype := uploadForm(t, "BBN.400", models.CategoryClearance, map[string]string{
		"report.pdf": "pdf bytes",
	})

	resp := p.do(t, http.MethodPost, "/api/upload", "uploader-token", body, ctype)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary models.UploadSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))

	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)
	require.Contains(t, p.objects.Keys(), "BBN.400/Clearance Reports/report.pdf")
}

func TestUploadForbiddenForClients(t *testing.T) {
	p := newPortal(t)

	body, ctype := uploadForm(t, "BBN.400", models.CategoryClearance, map[string]string{
		"report.pdf": "pdf bytes",
	})

	resp := p.do(t, http.MethodPost, "/api/upload", "client-token", body, ctype)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, p.objects.Keys())
}

func TestUploadRejectsInvalidBatch(t *testing.T) {
	p := newPortal(t)

	body, ctype := uploadForm(t, "BBN.500", "Unknown Category", map[string]string{
		"report.pdf": "pdf bytes",
	})

	resp := p.do(t, http.MethodPost, "/api/upload", "admin-token", body, ctype)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Empty(t, p.objects.Keys())
}

func TestCreateJob(t *testing.T) {
	p := newPortal(t)

	payload := `{"job_code":"BBN.600","address":"4 Quay Rd"}`

	resp := p.do(t, http.MethodPost, "/api/jobs", "admin-token", strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, models.JobStatusPending, created.Status)

	job, err := p.jobs.Get(context.Background(), "BBN.600")
	require.NoError(t, err)
	require.Equal(t, "4 Quay Rd", job.Address)
}

func TestCreateJobAdminOnly(t *testing.T) {
	p := newPortal(t)

	payload := `{"job_code":"BBN.600","address":"4 Quay Rd"}`

	resp := p.do(t, http.MethodPost, "/api/jobs", "uploader-token", strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	p := newPortal(t)

	require.NoError(t, p.jobs.Create(context.Background(), &models.Job{
		JobCode: "BBN.700",
		Address: "9 Mill Ln",
		Status:  models.JobStatusCompleted,
	}))

	resp := p.do(t, http.MethodGet, "/api/jobs", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, "BBN.700", jobs[0].JobCode)
}

func TestSession(t *testing.T) {
	p := newPortal(t)

	resp := p.do(t, http.MethodGet, "/api/auth/session", "uploader-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		User identity.User `json:"user"`
		Role string        `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	require.Equal(t, "staff@bbn.example", session.User.Email)
	require.Equal(t, models.RoleUploader, session.Role)
}

func TestSessionRoleDefaultsToClient(t *testing.T) {
	p := newPortal(t)

	// No profile row exists for u-client.
	resp := p.do(t, http.MethodGet, "/api/auth/session", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		Role string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.Equal(t, models.RoleClient, session.Role)
}

func TestMagicLink(t *testing.T) {
	p := newPortal(t)

	payload := `{"email":"client@example.com"}`

	resp := p.do(t, http.MethodPost, "/api/auth/magiclink", "", strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestMagicLinkRejectsBadEmail(t *testing.T) {
	p := newPortal(t)

	payload := `{"email":"not-an-email"}`

	resp := p.do(t, http.MethodPost, "/api/auth/magiclink", "", strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSignOut(t *testing.T) {
	p := newPortal(t)

	resp := p.do(t, http.MethodPost, "/api/auth/signout", "client-token", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
