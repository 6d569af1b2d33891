package services

import "time"

// TokenResponse is the success body of the token endpoint, RFC 6749 §5.1.
// RefreshToken is omitted for public clients on the code exchange; they
// cannot retain a long-lived secret-equivalent credential.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// IntrospectionResponse is the RFC 7662 introspection body. For an inactive
// token only Active is populated; everything else stays empty so no
// metadata leaks.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
}

// InactiveIntrospection is the only thing an introspection caller learns
// about an unknown, expired, or revoked token.
func InactiveIntrospection() *IntrospectionResponse {
	return &IntrospectionResponse{Active: false}
}

// ScopeDisplay pairs a scope name with its consent-page description.
type ScopeDisplay struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConsentPageData is what the consent UI needs to render an authorization
// prompt. Rendering itself happens outside this server.
type ConsentPageData struct {
	ClientID          string         `json:"client_id"`
	ClientName        string         `json:"client_name"`
	ClientDescription string         `json:"client_description,omitempty"`
	Scopes            []ScopeDisplay `json:"scopes"`
	RedirectURI       string         `json:"redirect_uri"`
	State             string         `json:"state,omitempty"`

	// Echoed so the consent form can post them back unchanged.
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// RegisterClientRequest carries a new client registration. Confidential and
// RotateRefreshTokens default to true when nil.
type RegisterClientRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	RedirectURIs        []string `json:"redirect_uris"`
	Scopes              []string `json:"scopes"`
	Confidential        *bool    `json:"confidential,omitempty"`
	RotateRefreshTokens *bool    `json:"rotate_refresh_tokens,omitempty"`
}

// RegisterClientResponse is returned exactly once per registration; the
// plaintext secret is not retrievable afterwards.
type RegisterClientResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

// GrantSummary is a standing grant joined with client display data, for the
// user-facing "connected applications" listing.
type GrantSummary struct {
	ClientID          string    `json:"client_id"`
	ClientName        string    `json:"client_name"`
	ClientDescription string    `json:"client_description,omitempty"`
	Scopes            []string  `json:"scopes"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
