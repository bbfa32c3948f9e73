package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to one provider's token endpoint.
type Client interface {
	// Refresh exchanges refreshToken for a new access token. Failures are
	// returned as *Error so callers can react to the classification.
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	// Revoke invalidates the token at the provider. Best effort; providers
	// without a revocation endpoint return nil.
	Revoke(ctx context.Context, token string) error
}

// HTTPClient implements Client against a real token endpoint. It performs a
// single attempt per call; retry policy belongs to the caller.
type HTTPClient struct {
	cfg        Config
	oauth      *oauth2.Config
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the given registration.
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Refresh performs the refresh_token grant.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(err)
	}
	grant := &Grant{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry.UTC(),
	}
	// oauth2 echoes the input refresh token back when the provider did not
	// rotate it; only report an actual rotation.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}

// Revoke posts the token to the provider's revocation endpoint.
func (c *HTTPClient) Revoke(ctx context.Context, token string) error {
	if c.cfg.RevokeURL == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// classify maps a token endpoint failure onto the error taxonomy.
func classify(err error) error {
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		// No HTTP response at all: DNS, connect, timeout.
		return &Error{Kind: KindTransient, err: err}
	}
	code := retrieve.ErrorCode
	switch {
	case code == "invalid_grant":
		return &Error{Kind: KindInvalidGrant, Code: code, err: err}
	case code == "invalid_client" || code == "unauthorized_client":
		return &Error{Kind: KindMisconfigured, Code: code, err: err}
	case retrieve.Response != nil && (retrieve.Response.StatusCode >= 500 || retrieve.Response.StatusCode == http.StatusTooManyRequests):
		return &Error{Kind: KindTransient, Code: code, err: err}
	case code != "":
		return &Error{Kind: KindMisconfigured, Code: code, err: err}
	default:
		return &Error{Kind: KindTransient, err: err}
	}
}
