package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/services"
)

// clientCredentials pulls client credentials from the HTTP Basic header
// first, then from the form body, RFC 6749 §2.3.1 order.
func clientCredentials(c echo.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

// TokenHandler drives the token endpoint, RFC 6749 §3.2. Client secrets
// are verified whenever both credential parts were presented; beyond that
// the flow rules decide what each grant requires. Success responses are
// marked uncacheable so token material never lands in a shared cache.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	ctx := c.Request().Context()
	clientID, clientSecret := clientCredentials(c)

	if clientID != "" && clientSecret != "" {
		if _, err := oa.clients.AuthenticateClient(ctx, clientID, clientSecret); err != nil {
			return writeOAuthError(c, err)
		}
	}

	var (
		token *services.TokenResponse
		err   error
	)
	switch c.FormValue("grant_type") {
	case "authorization_code":
		// The consumed code names its own client; the exchange fails there
		// when that client is gone or revoked.
		token, err = oa.oauth.ExchangeAuthorizationCode(ctx,
			c.FormValue("code"), c.FormValue("redirect_uri"), c.FormValue("code_verifier"))
	case "refresh_token":
		token, err = oa.oauth.RefreshTokens(ctx, c.FormValue("refresh_token"), clientID)
	default:
		err = serrors.NewUnsupportedGrantType()
	}
	if err != nil {
		return writeOAuthError(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, token)
}
