package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/firebase"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/membership"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/repository"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/service"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/token"
)

// Guard resolves bearer credentials to an identity and authorizes shop
// access for that identity.
type Guard struct {
	verifier firebase.Verifier
	codec    *token.Codec
	shops    repository.ShopRepository
	members  *membership.Resolver
	logger   *zap.Logger
}

// NewGuard wires the guard.
func NewGuard(verifier firebase.Verifier, codec *token.Codec, shops repository.ShopRepository, members *membership.Resolver, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.L()
	}
	return &Guard{verifier: verifier, codec: codec, shops: shops, members: members, logger: logger}
}

// Resolve authenticates a raw bearer token. The primary identity provider
// is probed first; on failure the token is re-read as a chat access token.
// Failure reasons are never exposed to the caller.
func (g *Guard) Resolve(ctx context.Context, rawToken string) (domain.AuthContext, error) {
	if rawToken == "" {
		return domain.AuthContext{}, service.ErrUnauthorized("Not authenticated")
	}

	auth, firebaseErr := g.verifier.VerifyIDToken(ctx, rawToken)
	if firebaseErr == nil {
		return auth, nil
	}

	claims, codecErr := g.codec.Verify(rawToken, token.KindAccess)
	if codecErr != nil || claims.Provider != domain.ProviderLine {
		g.logger.Debug("credential rejected",
			zap.NamedError("firebase_error", firebaseErr),
			zap.NamedError("codec_error", codecErr))
		return domain.AuthContext{}, service.ErrUnauthorized("Invalid authentication credentials")
	}

	return domain.AuthContext{
		Provider: domain.ProviderLine,
		UID:      claims.Subject,
		Name:     claims.Name,
		Picture:  claims.Picture,
		ShopID:   claims.ShopID,
		Role:     claims.Role,
	}, nil
}

// Authorize checks that the identity may operate on the shop and returns
// the shop row. Allowed roles apply to line memberships only; owners pass
// regardless.
func (g *Guard) Authorize(ctx context.Context, auth domain.AuthContext, shopID string, allowedRoles []string) (domain.Shop, error) {
	shop, err := g.shops.GetShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Shop{}, service.ErrNotFound("Shop not found")
		}
		return domain.Shop{}, fmt.Errorf("load shop: %w", err)
	}

	ok, err := g.members.CanAccessShop(ctx, shop, auth, allowedRoles)
	if err != nil {
		return domain.Shop{}, fmt.Errorf("check shop access: %w", err)
	}
	if !ok {
		return domain.Shop{}, service.ErrForbidden("Not allowed to access this shop")
	}
	return shop, nil
}
