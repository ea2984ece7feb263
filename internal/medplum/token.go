package medplum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/vhealth/integration/internal/platform/apperr"
)

// refreshSkew is how long before expiry a cached token is considered stale.
const refreshSkew = 30 * time.Second

const tokenResource = "oauth2/token"

// TokenSource supplies bearer tokens for calls against the FHIR store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// TokenManager obtains access tokens with the OAuth2 client-credentials grant
// and reuses them until shortly before they expire. It is safe for
// concurrent use.
type TokenManager struct {
	src oauth2.TokenSource
}

// NewTokenManager creates a TokenManager for the given token endpoint.
// Credentials are sent as form parameters with scope system/*.*.
func NewTokenManager(tokenURL, clientID, secret string, timeout time.Duration) *TokenManager {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     tokenURL,
		Scopes:       []string{"system/*.*"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The fetch context outlives any single request; the client timeout
	// bounds each token call.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	return &TokenManager{
		src: oauth2.ReuseTokenSourceWithExpiry(nil, grant{cfg: cfg, ctx: ctx}, refreshSkew),
	}
}

// grant fetches a fresh token on every call; caching is left to the reuse
// source wrapped around it.
type grant struct {
	cfg *clientcredentials.Config
	ctx context.Context
}

func (g grant) Token() (*oauth2.Token, error) {
	return g.cfg.Token(g.ctx)
}

// Token returns a cached token or fetches a new one.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := m.src.Token()
	if err != nil {
		return "", tokenError(err)
	}
	return tok.AccessToken, nil
}

// tokenError sorts a grant failure into the error taxonomy: a refused grant
// or transport failure is a RemoteCallError, an unreadable reply a
// DeserializationError.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		rerr := &apperr.RemoteCallError{Method: http.MethodPost, Resource: tokenResource, Err: err}
		if re.Response != nil {
			rerr.StatusCode = re.Response.StatusCode
		}
		switch {
		case re.ErrorDescription != "":
			rerr.Diagnostics = re.ErrorDescription
		case re.ErrorCode != "":
			rerr.Diagnostics = re.ErrorCode
		case len(re.Body) > 0:
			rerr.Diagnostics = strings.TrimSpace(string(re.Body))
		}
		return rerr
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &apperr.RemoteCallError{Method: http.MethodPost, Resource: tokenResource, Err: err}
	}
	return &apperr.DeserializationError{Resource: tokenResource, Err: fmt.Errorf("token response: %w", err)}
}
