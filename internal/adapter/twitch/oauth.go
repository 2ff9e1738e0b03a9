package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	helixapi "github.com/nicklaw5/helix/v2"
)

// ScopeReadRedemptions is the only scope the login asks for.
const ScopeReadRedemptions = "channel:read:redemptions"

const (
	apiTimeout      = 10 * time.Second
	apiRetryCount   = 2
	apiRetryBackoff = 300 * time.Millisecond
)

// APIError is a non-2xx answer from the Twitch API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api status %d: %s", e.StatusCode, e.Message)
}

func checkResponse(resp helixapi.ResponseCommon) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := resp.ErrorMessage
	if msg == "" {
		msg = resp.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func isUnauthorized(err error) bool {
	apiErr, ok := errors.AsType[*APIError](err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// NewHTTPClient returns the retrying client shared by every Twitch API call.
func NewHTTPClient() helixapi.HTTPClient {
	backoff := heimdall.NewConstantBackoff(apiRetryBackoff, apiRetryBackoff/2)
	return httpclient.NewClient(
		httpclient.WithHTTPTimeout(apiTimeout),
		httpclient.WithRetryCount(apiRetryCount),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
	)
}

// contextDoer binds outgoing requests to ctx.
type contextDoer struct {
	ctx  context.Context
	base helixapi.HTTPClient
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.base.Do(req.WithContext(d.ctx))
}

// Credentials are the clientID/secret pair and transport shared by OAuth and API clients.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   helixapi.HTTPClient
}

func (c Credentials) newClient(ctx context.Context, accessToken string) (*helixapi.Client, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client, err := helixapi.NewClient(&helixapi.Options{
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		RedirectURI:     c.RedirectURI,
		UserAccessToken: accessToken,
		HTTPClient:      contextDoer{ctx: ctx, base: httpClient},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	return client, nil
}

// OAuthResult is a completed code exchange plus the identity behind the token.
type OAuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	UserID       string
	Username     string
}

// OAuthClient runs the authorization code flow against Twitch.
type OAuthClient struct {
	creds Credentials
}

func NewOAuthClient(creds Credentials) *OAuthClient {
	return &OAuthClient{creds: creds}
}

// AuthorizationURL builds the Twitch consent URL carrying state.
func (c *OAuthClient) AuthorizationURL(state string) (string, error) {
	client, err := c.creds.newClient(context.Background(), "")
	if err != nil {
		return "", err
	}
	return client.GetAuthorizationURL(&helixapi.AuthorizationURLParams{
		ResponseType: "code",
		Scopes:       []string{ScopeReadRedemptions},
		State:        state,
	}), nil
}

// ExchangeCode trades an authorization code for tokens and resolves the user they belong to.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*OAuthResult, error) {
	client, err := c.creds.newClient(ctx, "")
	if err != nil {
		return nil, err
	}

	tokenResp, err := client.RequestUserAccessToken(code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if err := checkResponse(tokenResp.ResponseCommon); err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	client.SetUserAccessToken(tokenResp.Data.AccessToken)
	users, err := client.GetUsers(&helixapi.UsersParams{})
	if err != nil {
		return nil, fmt.Errorf("user info fetch failed: %w", err)
	}
	if err := checkResponse(users.ResponseCommon); err != nil {
		return nil, fmt.Errorf("user info fetch failed: %w", err)
	}
	if len(users.Data.Users) != 1 {
		return nil, fmt.Errorf("user info fetch failed: expected one user, got %d", len(users.Data.Users))
	}

	user := users.Data.Users[0]
	return &OAuthResult{
		AccessToken:  tokenResp.Data.AccessToken,
		RefreshToken: tokenResp.Data.RefreshToken,
		ExpiresIn:    tokenResp.Data.ExpiresIn,
		UserID:       user.ID,
		Username:     user.Login,
	}, nil
}
