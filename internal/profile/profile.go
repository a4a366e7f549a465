package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the counsel server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory. Local chat history and the sqlite
	// database live under it.
	Data string
	// DSN points to where counsel stores its remote (authoritative) data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the server
	Version string
	// Secret signs session tokens issued by the server
	Secret string

	// Completion service configuration
	AIBaseURL string // COUNSEL_AI_BASE_URL (default: https://api.openai.com/v1)
	AIAPIKey  string // COUNSEL_AI_API_KEY
	AIModel   string // COUNSEL_AI_MODEL (default: gpt-4o-mini)

	// Identity provider configuration
	IDPIssuer       string // COUNSEL_IDP_ISSUER
	IDPClientID     string // COUNSEL_IDP_CLIENT_ID
	IDPClientSecret string // COUNSEL_IDP_CLIENT_SECRET
	IDPAuthURL      string // COUNSEL_IDP_AUTH_URL
	IDPTokenURL     string // COUNSEL_IDP_TOKEN_URL
	IDPUserInfoURL  string // COUNSEL_IDP_USERINFO_URL
	IDPRedirectURL  string // COUNSEL_IDP_REDIRECT_URL

	// MigrateOnSignIn runs the local-to-remote history migration
	// automatically when an anonymous user signs in. Off by default;
	// the migration endpoint is always available.
	MigrateOnSignIn bool
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled reports whether a completion backend is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// IsIDPEnabled reports whether an external identity provider is configured.
func (p *Profile) IsIDPEnabled() bool {
	return p.IDPClientID != "" && p.IDPAuthURL != "" && p.IDPTokenURL != ""
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "counsel")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/counsel"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("counsel_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	return nil
}
