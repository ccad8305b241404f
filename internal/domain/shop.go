package domain

import "time"

// Role values a shop member can hold.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// Auth providers recognised by the platform.
const (
	ProviderFirebase = "firebase"
	ProviderLine     = "line"
)

// Shop represents a merchant storefront.
type Shop struct {
	ShopID     string
	OwnerUID   string
	ShopName   string
	LineConfig map[string]any
	CreatedAt  time.Time
}

// LineChannelAccessToken returns the messaging channel token configured for
// the shop, or empty when LINE credentials were never saved.
func (s Shop) LineChannelAccessToken() string {
	if s.LineConfig == nil {
		return ""
	}
	token, _ := s.LineConfig["channelAccessToken"].(string)
	return token
}

// ShopMember grants a user a role within a shop under a specific auth
// provider. At most one row exists per (shop, user, provider).
type ShopMember struct {
	ID           int64
	ShopID       string
	UserID       string
	Role         string
	AuthProvider string
	CreatedAt    time.Time
}
