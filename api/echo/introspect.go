package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	serrors "github.com/strandauth/strand/errors"
)

// requireClientAuth authenticates the caller of the introspection and
// revocation endpoints. Both RFCs gate these on client authentication so
// token state never leaks to unauthenticated parties.
func (oa *OAuth2API) requireClientAuth(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)
	if clientID == "" {
		return serrors.NewInvalidClient("client authentication required")
	}
	_, err := oa.clients.AuthenticateClient(c.Request().Context(), clientID, clientSecret)
	return err
}

// IntrospectHandler implements RFC 7662. Whatever the reason a token is
// not live, the answer is the same bare {"active": false}.
func (oa *OAuth2API) IntrospectHandler(c echo.Context) error {
	if err := oa.requireClientAuth(c); err != nil {
		return writeOAuthError(c, err)
	}

	resp, err := oa.oauth.Introspect(c.Request().Context(), c.FormValue("token"))
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// RevokeHandler implements RFC 7009. Revoking an unknown or already dead
// token succeeds; the caller only ever learns that the token is no longer
// usable.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	if err := oa.requireClientAuth(c); err != nil {
		return writeOAuthError(c, err)
	}

	if err := oa.oauth.RevokeToken(c.Request().Context(), c.FormValue("token"), c.FormValue("token_type_hint")); err != nil {
		return writeOAuthError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
