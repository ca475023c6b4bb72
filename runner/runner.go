package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/bbnconsulting/report-portal/tlmt"
	"github.com/bbnconsulting/report-portal/tlmt/gonoop"
	"github.com/bbnconsulting/report-portal/tlmt/goposthog"
)

const (
	RunModeWeb = iota + 1
	RunModeUpload
	RunModeCatalog
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode int
	Debug   bool

	// web server
	Addr       string
	Dsn        string
	SqlitePath string

	// object storage
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3Bucket        string
	S3Endpoint      string
	S3PublicBaseURL string

	// hosted identity service
	IdentityURL string
	IdentityKey string
	TokenFile   string

	// upload mode
	JobCode   string
	Category  string
	Address   string
	InputDir  string
	Overwrite bool

	// CLI sign-in
	MagicLinkEmail string
	SessionURL     string

	// catalog mode
	Query string
}

func ParseConfig() *Config {
	cfg := Config{}

	var (
		upload  bool
		catalog bool
	)

	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on for the web server")
	flag.StringVar(&cfg.Dsn, "dsn", "", "postgres connection string for the jobs and profiles tables")
	flag.StringVar(&cfg.SqlitePath, "data-folder", "portaldata", "data folder for the sqlite jobs table when no dsn is set")
	flag.StringVar(&cfg.S3AccessKey, "s3-access-key", "", "object storage access key")
	flag.StringVar(&cfg.S3SecretKey, "s3-secret-key", "", "object storage secret key")
	flag.StringVar(&cfg.S3Region, "s3-region", "", "object storage region")
	flag.StringVar(&cfg.S3Bucket, "s3-bucket", "reports", "bucket holding the report hierarchy")
	flag.StringVar(&cfg.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint (e.g. a MinIO URL)")
	flag.StringVar(&cfg.S3PublicBaseURL, "s3-public-url", "", "public base URL for report links")
	flag.StringVar(&cfg.IdentityURL, "identity-url", "", "base URL of the hosted identity service")
	flag.StringVar(&cfg.IdentityKey, "identity-key", "", "public API key of the hosted identity service")
	flag.StringVar(&cfg.TokenFile, "token-file", defaultTokenFile(), "path to the saved session tokens for CLI modes")
	flag.BoolVar(&upload, "upload", false, "run a one-shot upload batch instead of the web server")
	flag.BoolVar(&catalog, "catalog", false, "print the report catalog and exit")
	flag.StringVar(&cfg.JobCode, "job", "", "job code for upload or catalog scope (e.g. BBN.123)")
	flag.StringVar(&cfg.Category, "category", "", "report category for upload mode")
	flag.StringVar(&cfg.Address, "address", "", "site address to record for the job")
	flag.StringVar(&cfg.InputDir, "input", "", "directory of PDF files to upload")
	flag.BoolVar(&cfg.Overwrite, "overwrite", false, "replace files that already exist in the bucket")
	flag.StringVar(&cfg.Query, "q", "", "search term for catalog mode")
	flag.StringVar(&cfg.MagicLinkEmail, "request-link", "", "request a magic sign-in link for this email and exit")
	flag.StringVar(&cfg.SessionURL, "session-url", "", "redirect URL from a magic link, used to establish the CLI session")

	flag.Parse()

	if cfg.S3AccessKey == "" {
		cfg.S3AccessKey = os.Getenv("PORTAL_S3_ACCESS_KEY")
	}

	if cfg.S3SecretKey == "" {
		cfg.S3SecretKey = os.Getenv("PORTAL_S3_SECRET_KEY")
	}

	if cfg.S3Region == "" {
		cfg.S3Region = os.Getenv("PORTAL_S3_REGION")
	}

	if cfg.S3Endpoint == "" {
		cfg.S3Endpoint = os.Getenv("PORTAL_S3_ENDPOINT")
	}

	if v := os.Getenv("PORTAL_S3_BUCKET"); v != "" && cfg.S3Bucket == "reports" {
		cfg.S3Bucket = v
	}

	if cfg.IdentityURL == "" {
		cfg.IdentityURL = os.Getenv("PORTAL_IDENTITY_URL")
	}

	if cfg.IdentityKey == "" {
		cfg.IdentityKey = os.Getenv("PORTAL_IDENTITY_KEY")
	}

	// A sign-in step alone is a valid upload-mode invocation.
	batch := upload && cfg.MagicLinkEmail == "" && cfg.SessionURL == ""

	if batch && cfg.JobCode == "" {
		panic("job must be provided when using upload mode")
	}

	if batch && cfg.Category == "" {
		panic("category must be provided when using upload mode")
	}

	if batch && cfg.InputDir == "" {
		panic("input must be provided when using upload mode")
	}

	switch {
	case upload:
		cfg.RunMode = RunModeUpload
	case catalog:
		cfg.RunMode = RunModeCatalog
	default:
		cfg.RunMode = RunModeWeb
	}

	return &cfg
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".portal-session.json"
	}

	return home + "/.portal-session.json"
}

// Logger builds the process logger. Debug switches to the development
// config with human readable output.
func Logger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if os.Getenv("DISABLE_TELEMETRY") == "1" {
			telemetry = gonoop.New()

			return
		}

		apiKey := os.Getenv("PORTAL_POSTHOG_KEY")
		if apiKey == "" {
			telemetry = gonoop.New()

			return
		}

		val, err := goposthog.New(apiKey, "https://eu.i.posthog.com")
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(0)
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		lineWidth := runewidth.StringWidth(line)
		paddingRight := contentWidth - lineWidth

		if paddingRight < 0 {
			paddingRight = 0
		}

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "📄 BBN Report Portal"
	message2 := "Reports live in the bucket as job/category/file. Run with -upload to push a batch, -catalog to inspect."

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}
