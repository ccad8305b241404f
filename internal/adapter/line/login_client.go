package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authorizeEndpoint = "https://access.line.me/oauth2/v2.1/authorize"
	tokenEndpoint     = "https://api.line.me/oauth2/v2.1/token"
	profileEndpoint   = "https://api.line.me/v2/profile"

	loginScope = "profile openid"
)

var (
	// ErrExchangeFailed covers any non-success response or transport error
	// during the code/profile exchange, timeouts included.
	ErrExchangeFailed = errors.New("line: exchange failed")
	// ErrMissingField signals a profile response without a user id.
	ErrMissingField = errors.New("line: profile missing user id")
)

// Profile is the normalized LINE Login profile.
type Profile struct {
	UserID      string
	DisplayName string
	PictureURL  string
}

// LoginExchanger drives the LINE Login authorization-code flow.
type LoginExchanger interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Profile, error)
}

// LoginClient is the default HTTP implementation of LoginExchanger.
type LoginClient struct {
	httpClient    *http.Client
	channelID     string
	channelSecret string
	redirectURI   string
}

var _ LoginExchanger = (*LoginClient)(nil)

// NewLoginClient constructs a LoginClient. A nil http.Client gets a bounded
// 10s timeout.
func NewLoginClient(client *http.Client, channelID, channelSecret, redirectURI string) *LoginClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &LoginClient{
		httpClient:    client,
		channelID:     channelID,
		channelSecret: channelSecret,
		redirectURI:   redirectURI,
	}
}

// AuthorizeURL formats the LINE authorization endpoint with the signed state.
func (c *LoginClient) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.channelID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("state", state)
	params.Set("scope", loginScope)
	return authorizeEndpoint + "?" + params.Encode()
}

// ExchangeCode swaps an authorization code for an access token, then loads
// the profile with it.
func (c *LoginClient) ExchangeCode(ctx context.Context, code string) (*Profile, error) {
	accessToken, err := c.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.fetchProfile(ctx, accessToken)
}

func (c *LoginClient) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	data.Set("client_id", c.channelID)
	data.Set("client_secret", c.channelSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read token response: %v", ErrExchangeFailed, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint status=%d", ErrExchangeFailed, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrExchangeFailed, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}
	return payload.AccessToken, nil
}

func (c *LoginClient) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", ErrExchangeFailed, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: profile endpoint status=%d", ErrExchangeFailed, resp.StatusCode)
	}

	var payload struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
		PictureURL  string `json:"pictureUrl"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrExchangeFailed, err)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return nil, ErrMissingField
	}

	return &Profile{
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		PictureURL:  payload.PictureURL,
	}, nil
}
