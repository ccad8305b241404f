package domain

// AuthContext is the resolved identity behind one request or stream. The
// Provider field is the variant tag: firebase identities carry profile
// fields, line identities carry the shop scope baked into the session token.
type AuthContext struct {
	Provider string
	UID      string

	// Firebase identity fields.
	Email   string
	Name    string
	Picture string

	// Line identity fields.
	ShopID string
	Role   string
}

// IsFirebase reports whether the context was produced by primary-provider
// verification.
func (a AuthContext) IsFirebase() bool { return a.Provider == ProviderFirebase }

// IsLine reports whether the context was produced from a chat session token.
func (a AuthContext) IsLine() bool { return a.Provider == ProviderLine }
