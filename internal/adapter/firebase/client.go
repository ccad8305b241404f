package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

// Verifier checks primary-provider ID tokens.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (domain.AuthContext, error)
}

// Minter creates primary-provider custom tokens for bridged chat sessions.
type Minter interface {
	CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error)
}

// Client wraps the Firebase Admin SDK auth client.
type Client struct {
	auth *auth.Client
}

var (
	_ Verifier = (*Client)(nil)
	_ Minter   = (*Client)(nil)
)

// NewClient initialises the Admin SDK from a service-account credentials
// file. An empty path falls back to application-default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &Client{auth: authClient}, nil
}

// VerifyIDToken validates the ID token and maps it to an AuthContext.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (domain.AuthContext, error) {
	decoded, err := c.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return domain.AuthContext{}, fmt.Errorf("verify id token: %w", err)
	}

	authCtx := domain.AuthContext{
		Provider: domain.ProviderFirebase,
		UID:      decoded.UID,
	}
	if email, ok := decoded.Claims["email"].(string); ok {
		authCtx.Email = email
	}
	if name, ok := decoded.Claims["name"].(string); ok {
		authCtx.Name = name
	}
	if picture, ok := decoded.Claims["picture"].(string); ok {
		authCtx.Picture = picture
	}
	return authCtx, nil
}

// CustomToken mints a custom token carrying the bridged session claims.
func (c *Client) CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error) {
	if len(claims) == 0 {
		token, err := c.auth.CustomToken(ctx, uid)
		if err != nil {
			return "", fmt.Errorf("custom token: %w", err)
		}
		return token, nil
	}
	token, err := c.auth.CustomTokenWithClaims(ctx, uid, claims)
	if err != nil {
		return "", fmt.Errorf("custom token: %w", err)
	}
	return token, nil
}
