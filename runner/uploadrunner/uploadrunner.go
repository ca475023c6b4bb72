// Package uploadrunner pushes a directory of PDF reports into the bucket
// from the command line. It signs in through the hosted identity service
// using the same magic-link flow as the web portal.
package uploadrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/postgres"
	"github.com/bbnconsulting/report-portal/runner"
	"github.com/bbnconsulting/report-portal/session"
	"github.com/bbnconsulting/report-portal/tlmt"
	"github.com/bbnconsulting/report-portal/uploader"
	webmem "github.com/bbnconsulting/report-portal/web/memory"
)

type uploadrunner struct {
	cfg       *runner.Config
	gate      *session.Gate
	writer    *uploader.Writer
	idp       *identity.Client
	logger    *zap.Logger
	checkRole bool
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.IdentityURL == "" || cfg.IdentityKey == "" {
		return nil, fmt.Errorf("identity-url and identity-key are required for upload mode")
	}

	logger := runner.Logger(cfg.Debug)

	objects, err := cfg.ObjectStore(context.Background(), logger)
	if err != nil {
		return nil, err
	}

	idp := identity.NewClient(cfg.IdentityURL, cfg.IdentityKey)
	tokens := session.NewFileTokenStore(cfg.TokenFile)

	// Role enforcement needs the profiles table. Without a dsn the bucket
	// credentials are the only gate.
	var (
		profiles  models.ProfileRepository
		checkRole bool
	)

	if cfg.Dsn != "" {
		db, err := postgres.Open(cfg.Dsn)
		if err != nil {
			return nil, err
		}

		profiles = postgres.NewProfileRepository(db)
		checkRole = true
	} else {
		profiles = webmem.NewProfileRepository()
	}

	ann := annotation.NewStore(objects, logger)

	return &uploadrunner{
		cfg:       cfg,
		gate:      session.NewGate(idp, profiles, tokens, logger),
		writer:    uploader.NewWriter(objects, ann, logger),
		idp:       idp,
		logger:    logger,
		checkRole: checkRole,
	}, nil
}

func (u *uploadrunner) Run(ctx context.Context) error {
	if u.cfg.MagicLinkEmail != "" {
		return u.requestLink(ctx)
	}

	if u.cfg.SessionURL != "" {
		if err := u.establishSession(ctx); err != nil {
			return err
		}

		if u.cfg.InputDir == "" {
			fmt.Println("signed in, session saved")

			return nil
		}
	} else {
		u.gate.Start(ctx)
	}

	snap := u.gate.Snapshot()
	if snap.State != session.StateAuthenticated {
		return fmt.Errorf("no active session: request a link with -request-link and re-run with -session-url")
	}

	if u.checkRole && !models.CanUpload(snap.Role) {
		return fmt.Errorf("user %s has role %q and may not upload", snap.User.Email, snap.Role)
	}

	req, err := u.buildRequest()
	if err != nil {
		return err
	}

	summary, err := u.writer.Upload(ctx, req)
	if err != nil {
		return err
	}

	for _, status := range summary.Statuses {
		if status.Done {
			fmt.Printf("  ok    %s\n", status.Name)
		} else {
			fmt.Printf("  FAIL  %s: %s\n", status.Name, status.Err)
		}
	}

	fmt.Printf("batch %s: %d uploaded, %d failed\n", summary.BatchID, summary.Succeeded, summary.Failed)

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("upload_batch", map[string]any{
		"files":     len(req.Files),
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"cli":       true,
	}))

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, len(req.Files))
	}

	return nil
}

func (u *uploadrunner) Close(context.Context) error {
	u.gate.Close()
	_ = u.logger.Sync()

	return nil
}

func (u *uploadrunner) requestLink(ctx context.Context) error {
	if err := u.idp.SendMagicLink(ctx, u.cfg.MagicLinkEmail, ""); err != nil {
		return err
	}

	fmt.Printf("magic link sent to %s\n", u.cfg.MagicLinkEmail)
	fmt.Println("open the link, then re-run with -session-url '<the URL it redirected to>'")

	return nil
}

func (u *uploadrunner) establishSession(ctx context.Context) error {
	tokens, _, ok := session.ConsumeFragment(u.cfg.SessionURL)
	if !ok {
		return fmt.Errorf("no session tokens found in the given URL")
	}

	return u.gate.SetSession(ctx, tokens.AccessToken, tokens.RefreshToken)
}

func (u *uploadrunner) buildRequest() (models.UploadRequest, error) {
	entries, err := os.ReadDir(u.cfg.InputDir)
	if err != nil {
		return models.UploadRequest{}, err
	}

	req := models.UploadRequest{
		JobCode:   u.cfg.JobCode,
		Address:   u.cfg.Address,
		Category:  u.cfg.Category,
		Overwrite: u.cfg.Overwrite,
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	for _, name := range names {
		f, err := os.Open(filepath.Join(u.cfg.InputDir, name))
		if err != nil {
			return models.UploadRequest{}, err
		}

		req.Files = append(req.Files, models.FileUpload{Name: name, Body: f})
	}

	return req, nil
}
