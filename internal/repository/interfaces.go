package repository

import (
	"context"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

// ShopRepository exposes the shop lookups authorization needs. Shop CRUD
// itself lives outside this service.
type ShopRepository interface {
	GetShop(ctx context.Context, shopID string) (domain.Shop, error)
}

// MemberRepository persists shop membership rows. Creation must be atomic
// under concurrent first logins; the store guarantees a unique
// (shop_id, user_id, auth_provider) constraint.
type MemberRepository interface {
	FindMember(ctx context.Context, shopID, userID, provider string) (domain.ShopMember, error)
	CreateMember(ctx context.Context, member domain.ShopMember) (domain.ShopMember, error)
	ListMembers(ctx context.Context, userID, provider string) ([]domain.ShopMember, error)
}

// CustomerRepository reads conversation participants for the inbox.
type CustomerRepository interface {
	ListByShop(ctx context.Context, shopID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, customerID, shopID string) (domain.Customer, error)
}

// ChatEventRepository persists conversation history.
type ChatEventRepository interface {
	ListHistory(ctx context.Context, shopID, customerID string) ([]domain.ChatEvent, error)
	LastEvent(ctx context.Context, customerID string) (domain.ChatEvent, error)
	Insert(ctx context.Context, event domain.ChatEvent) (domain.ChatEvent, error)
}
