package idp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuthConfig describes the provider's authorization-code flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	UserInfoURL  string
	Scopes       []string
}

// OAuthExchanger performs the authorization-code exchange against the
// external provider and resolves the resulting access token into an
// identity assertion via the provider's userinfo endpoint.
type OAuthExchanger struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewOAuthExchanger(cfg OAuthConfig) *OAuthExchanger {
	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL builds the provider's sign-in redirect URL.
func (e *OAuthExchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the authorization code for an identity assertion.
func (e *OAuthExchanger) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange authorization code")
	}

	client := e.config.Client(ctx, token)
	resp, err := client.Get(e.userInfoURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read userinfo response")
	}

	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrap(err, "failed to decode userinfo response")
	}
	if info.Sub == "" {
		return nil, errors.New("userinfo response missing subject")
	}

	return &Identity{
		Subject: info.Sub,
		Email:   info.Email,
		Name:    info.Name,
	}, nil
}
