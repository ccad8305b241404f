package service

// ShopChoice is one selectable shop in a multi-membership login response.
type ShopChoice struct {
	ShopID   string `json:"shopId"`
	ShopName string `json:"shopName"`
	Role     string `json:"role"`
}

// LoginResult is the response body for every login-shaped endpoint. When
// RequiresSelection is true no tokens are issued and Shops lists the
// candidates; otherwise Token carries the access token. The refresh token
// never appears in the body, it travels in the session cookie.
type LoginResult struct {
	RequiresSelection bool         `json:"requiresSelection"`
	Token             string       `json:"token,omitempty"`
	ShopID            string       `json:"shopId,omitempty"`
	ShopName          string       `json:"shopName,omitempty"`
	Role              string       `json:"role,omitempty"`
	DisplayName       string       `json:"displayName,omitempty"`
	PictureURL        string       `json:"pictureUrl,omitempty"`
	Shops             []ShopChoice `json:"shops,omitempty"`

	RefreshToken string `json:"-"`
}

// CallbackResult tells the handler where to send the browser after the
// OAuth callback. RefreshToken is empty when the callback ended without a
// session.
type CallbackResult struct {
	RedirectURL  string
	RefreshToken string
}
