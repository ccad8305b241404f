package domain

import "time"

// Chat event roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatEvent is a single message in a shop/customer conversation. The JSON
// shape doubles as the bus wire format.
type ChatEvent struct {
	ID         int64     `json:"id,omitempty"`
	ShopID     string    `json:"shop_id"`
	CustomerID string    `json:"customer_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Customer is a LINE end user talking to a shop.
type Customer struct {
	CustomerID   string
	ShopID       string
	LineUserID   string
	DisplayName  string
	PictureURL   string
	LastActiveAt time.Time
	CreatedAt    time.Time
}
