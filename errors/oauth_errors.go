// Package errors defines the OAuth2 error taxonomy of the authorization
// server. Internally errors stay fine-grained (code reuse, expiry,
// consumption and revocation are distinct conditions for logging and
// alerting); at the HTTP boundary they collapse onto the RFC 6749 wire codes
// through an explicit mapping, never through string inspection.
package errors

import (
	"fmt"
	"net/http"
)

// Code identifies an error condition. The first block mirrors RFC 6749
// directly; the second block is internal-only and maps onto an RFC code for
// the wire.
type Code string

const (
	// RFC 6749 wire codes.
	InvalidRequest          Code = "invalid_request"
	InvalidClient           Code = "invalid_client"
	InvalidGrant            Code = "invalid_grant"
	InvalidScope            Code = "invalid_scope"
	UnauthorizedClient      Code = "unauthorized_client"
	AccessDenied            Code = "access_denied"
	UnsupportedGrantType    Code = "unsupported_grant_type"
	UnsupportedResponseType Code = "unsupported_response_type"
	ServerError             Code = "server_error"

	// Internal refinements. Never serialized as-is.
	InvalidRedirectURI  Code = "invalid_redirect_uri"
	InvalidCodeVerifier Code = "invalid_code_verifier"
	CodeExpired         Code = "code_expired"
	CodeAlreadyUsed     Code = "code_already_used"
	TokenExpired        Code = "token_expired"
	TokenRevoked        Code = "token_revoked"
	TokenReuseDetected  Code = "token_reuse_detected"
)

// OAuth2Error represents a standardized OAuth 2.0 error. Description is the
// internal detail: it is logged, and only surfaced on the wire for
// request-validation codes where RFC 6749 expects a helpful message.
type OAuth2Error struct {
	Code        Code   `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy carrying the client's state parameter for
// redirect-based error delivery.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	cp := *e
	cp.State = state
	return &cp
}

// RFCCode projects the internal code onto its RFC 6749 wire code. The
// mapping is exhaustive: any code added without a case here falls through to
// server_error, which a test pins down.
func (e *OAuth2Error) RFCCode() Code {
	switch e.Code {
	case InvalidRequest, InvalidClient, InvalidGrant, InvalidScope,
		UnauthorizedClient, AccessDenied, UnsupportedGrantType,
		UnsupportedResponseType:
		return e.Code
	case InvalidRedirectURI:
		return InvalidRequest
	case InvalidCodeVerifier, CodeExpired, CodeAlreadyUsed,
		TokenExpired, TokenRevoked, TokenReuseDetected:
		return InvalidGrant
	case ServerError:
		return ServerError
	default:
		return ServerError
	}
}

// HTTPStatus returns the HTTP status for the wire code per RFC 6749 §5.2.
func (e *OAuth2Error) HTTPStatus() int {
	switch e.RFCCode() {
	case InvalidClient:
		return http.StatusUnauthorized
	case ServerError:
		return http.StatusInternalServerError
	case AccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// Response is the RFC 6749 error body. Credential-class failures share one
// generic description so that externally "never existed", "already used" and
// "revoked" are indistinguishable.
type Response struct {
	Error            Code   `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	State            string `json:"state,omitempty"`
}

// WireResponse builds the externally visible error body.
func (e *OAuth2Error) WireResponse() Response {
	rfc := e.RFCCode()
	desc := e.Description
	switch rfc {
	case InvalidGrant:
		desc = "The provided authorization grant is invalid, expired, or revoked"
	case InvalidClient:
		desc = "Client authentication failed"
	case ServerError:
		desc = "An internal error occurred"
	}
	return Response{Error: rfc, ErrorDescription: desc, State: e.State}
}

// Common error constructors

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewInvalidRedirectURI(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRedirectURI, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewUnsupportedResponseType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedResponseType,
		Description: "Only the authorization code response type is supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// PKCE specific errors

func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: "PKCE is required for this client",
	}
}

func NewInvalidCodeVerifier(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidCodeVerifier, Description: description}
}

// Code lifecycle errors

func NewCodeExpired() *OAuth2Error {
	return &OAuth2Error{Code: CodeExpired, Description: "authorization code expired"}
}

func NewCodeAlreadyUsed() *OAuth2Error {
	return &OAuth2Error{Code: CodeAlreadyUsed, Description: "authorization code already redeemed"}
}

// Token lifecycle errors

func NewTokenExpired() *OAuth2Error {
	return &OAuth2Error{Code: TokenExpired, Description: "token expired"}
}

func NewTokenRevoked() *OAuth2Error {
	return &OAuth2Error{Code: TokenRevoked, Description: "token revoked"}
}

func NewTokenReuseDetected(familyID string) *OAuth2Error {
	return &OAuth2Error{
		Code:        TokenReuseDetected,
		Description: fmt.Sprintf("refresh token reuse detected for family %s", familyID),
	}
}
