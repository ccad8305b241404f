package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Kind discriminates the session token types sharing the signing secret.
type Kind string

const (
	KindAccess     Kind = "access"
	KindRefresh    Kind = "refresh"
	KindOAuthState Kind = "oauth_state"
	KindLoginLink  Kind = "line_login_link"
)

// Verification failures are reported distinctly so callers can map them to
// precise HTTP semantics.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrWrongKind        = errors.New("token: wrong kind")
)

// Claims carries the subject fields embedded in every signed token. Empty
// fields are omitted from the payload.
type Claims struct {
	Subject  string `json:"sub,omitempty"`
	Provider string `json:"provider,omitempty"`
	ShopID   string `json:"shop_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	JTI      string `json:"jti,omitempty"`
}

type kindClaim struct {
	Typ string `json:"typ"`
}

// Codec signs and verifies session tokens with a single HMAC-SHA256 secret
// and a fixed issuer. Timestamps are unix seconds, UTC.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec constructs a codec over the process-wide signing secret. The
// configured secret is hashed to the 32-byte key size HS256 requires, so
// secrets of any length are accepted.
func NewCodec(secret []byte, issuer string) *Codec {
	key := sha256.Sum256(secret)
	return &Codec{secret: key[:], issuer: issuer}
}

// Issue signs claims as a token of the given kind expiring after ttl.
func (c *Codec) Issue(claims Claims, kind Kind, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: c.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Issuer:   c.issuer,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := gojwt.Signed(signer).
		Claims(std).
		Claims(kindClaim{Typ: string(kind)}).
		Claims(claims).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return token, nil
}

// Verify checks signature, issuer and expiry, then enforces the kind tag.
// Expiry is checked before kind so a stale token never passes as the wrong
// variant.
func (c *Codec) Verify(token string, expected Kind) (Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}

	var (
		std    gojwt.Claims
		kind   kindClaim
		claims Claims
	)
	if err := parsed.Claims(c.secret, &std, &kind, &claims); err != nil {
		return Claims{}, ErrInvalidSignature
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: c.issuer, Time: time.Now().UTC()}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidSignature
	}

	if kind.Typ != string(expected) {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}
