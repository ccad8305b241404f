package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/repository"
)

// ErrNotFound signals a missing membership row.
var ErrNotFound = errors.New("membership: not found")

// Resolver answers identity/shop access questions over the membership store.
type Resolver struct {
	members repository.MemberRepository
	node    *snowflake.Node
	logger  *zap.Logger
}

// NewResolver wires the resolver.
func NewResolver(members repository.MemberRepository, node *snowflake.Node, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.L()
	}
	return &Resolver{members: members, node: node, logger: logger}
}

// FindMembership loads the membership row for (shop, user, provider).
func (r *Resolver) FindMembership(ctx context.Context, shopID, userID, provider string) (domain.ShopMember, error) {
	member, err := r.members.FindMember(ctx, shopID, userID, provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ShopMember{}, ErrNotFound
		}
		return domain.ShopMember{}, fmt.Errorf("find membership: %w", err)
	}
	return member, nil
}

// EnsureOwnerMembership creates an owner membership if none exists yet.
// Creation is idempotent: a concurrent duplicate resolves to the row that
// won the insert.
func (r *Resolver) EnsureOwnerMembership(ctx context.Context, shopID, userID, provider string) (domain.ShopMember, error) {
	member, err := r.FindMembership(ctx, shopID, userID, provider)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.ShopMember{}, err
	}

	created, err := r.members.CreateMember(ctx, domain.ShopMember{
		ID:           r.node.Generate().Int64(),
		ShopID:       shopID,
		UserID:       userID,
		Role:         domain.RoleOwner,
		AuthProvider: provider,
	})
	if err != nil {
		return domain.ShopMember{}, fmt.Errorf("ensure owner membership: %w", err)
	}

	r.logger.Info("owner membership created",
		zap.String("shop_id", shopID),
		zap.String("user_id", userID),
		zap.String("provider", provider))
	return created, nil
}

// ListMemberships returns all memberships for the identity, most recent
// first.
func (r *Resolver) ListMemberships(ctx context.Context, userID, provider string) ([]domain.ShopMember, error) {
	members, err := r.members.ListMembers(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

// HasRole reports whether the membership role is in the allowed set. An
// empty set admits any membership.
func HasRole(member domain.ShopMember, allowedRoles []string) bool {
	if len(allowedRoles) == 0 {
		return true
	}
	for _, role := range allowedRoles {
		if member.Role == role {
			return true
		}
	}
	return false
}

// CanAccessShop implements the platform-wide shop access decision: original
// owner identity always passes; everyone else needs a line membership whose
// role is in the allowed set.
func (r *Resolver) CanAccessShop(ctx context.Context, shop domain.Shop, auth domain.AuthContext, allowedRoles []string) (bool, error) {
	if shop.ShopID == "" || auth.UID == "" {
		return false, nil
	}

	if auth.IsFirebase() && shop.OwnerUID == auth.UID {
		return true, nil
	}
	if !auth.IsLine() {
		return false, nil
	}

	member, err := r.FindMembership(ctx, shop.ShopID, auth.UID, domain.ProviderLine)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return HasRole(member, allowedRoles), nil
}
