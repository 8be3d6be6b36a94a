package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Identity platform defaults. The redirect URI is a relay that forwards the
// authorization code to the URL carried in the state parameter.
const (
	DefaultAuthority   = "https://login.microsoftonline.com"
	DefaultTenant      = "common"
	DefaultRedirectURI = "https://oauth.atcaoyufei.workers.dev"
)

// DefaultScopes are requested on consent and on every token exchange.
var DefaultScopes = []string{
	"offline_access",
	"User.Read",
	"Sites.ReadWrite.All",
}

// Grant types sent to the token endpoint.
const (
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
)

// OAuth holds the identity platform endpoints and the app-independent
// parameters shared by every drive. Client credentials live per drive.
type OAuth struct {
	Endpoint    oauth2.Endpoint
	RedirectURI string
	Scopes      []string
}

// NewOAuth builds OAuth settings for tenant on authority. Empty arguments
// fall back to the package defaults.
func NewOAuth(authority, tenant, redirectURI string, scopes []string) OAuth {
	if tenant == "" {
		tenant = DefaultTenant
	}

	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	endpoint := microsoft.AzureADEndpoint(tenant)
	if authority != "" && trimSlashes(authority) != DefaultAuthority {
		base := trimSlashes(authority) + "/" + tenant + "/oauth2/v2.0"
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/authorize",
			TokenURL: base + "/token",
		}
	}

	return OAuth{
		Endpoint:    endpoint,
		RedirectURI: redirectURI,
		Scopes:      scopes,
	}
}

// Scope returns the space-separated scope string sent on the wire.
func (o OAuth) Scope() string {
	return strings.Join(o.Scopes, " ")
}

// AuthCodeURL returns the consent-screen URL for clientID. The state is
// echoed back to the redirect URI after the user consents.
func (o OAuth) AuthCodeURL(clientID, state string) string {
	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: o.RedirectURI,
		Scopes:      o.Scopes,
		Endpoint:    o.Endpoint,
	}

	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// RefreshForm builds the token-endpoint body for a refresh_token grant.
func (o OAuth) RefreshForm(clientID, clientSecret, refreshToken string) map[string]string {
	return map[string]string{
		"refresh_token": refreshToken,
		"grant_type":    GrantRefreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
		"redirect_uri":  o.RedirectURI,
		"scope":         o.Scope(),
	}
}

// CodeForm builds the token-endpoint body for an authorization_code grant.
func (o OAuth) CodeForm(clientID, clientSecret, code string) map[string]string {
	return map[string]string{
		"code":          code,
		"grant_type":    GrantAuthorizationCode,
		"client_id":     clientID,
		"client_secret": clientSecret,
		"redirect_uri":  o.RedirectURI,
		"scope":         o.Scope(),
	}
}

// RequestToken posts form to the token endpoint. The call goes through API
// as a GET carrying a body, which API upgrades to POST. It returns both the
// decoded token and the raw payload.
func (c *Client) RequestToken(
	ctx context.Context, o OAuth, form map[string]string,
) (*TokenResponse, json.RawMessage, error) {
	c.logger.Info("requesting token",
		slog.String("grant_type", form["grant_type"]),
		slog.String("token_url", o.Endpoint.TokenURL),
	)

	raw, err := c.API(ctx, Request{
		Method: http.MethodGet,
		URL:    o.Endpoint.TokenURL,
		Form:   form,
	})
	if err != nil {
		return nil, nil, err
	}

	var tok TokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, nil, fmt.Errorf("graph: decoding token response: %w", err)
	}

	if tok.AccessToken == "" {
		return nil, nil, ErrEmptyToken
	}

	c.logger.Debug("token received",
		slog.Int("expires_in", tok.ExpiresIn),
		slog.Bool("rotated_refresh_token", tok.RefreshToken != ""),
	)

	return &tok, raw, nil
}
