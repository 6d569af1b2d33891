package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListGrantsHandler returns the authenticated user's connected
// applications: every standing grant joined with client display data.
func (oa *OAuth2API) ListGrantsHandler(c echo.Context) error {
	grants, err := oa.oauth.ListGrants(c.Request().Context(), currentUser(c))
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"grants": grants})
}

// RevokeGrantHandler disconnects one client from the authenticated user.
// The standing grant goes away together with every live token the pair
// still has.
func (oa *OAuth2API) RevokeGrantHandler(c echo.Context) error {
	revoked, err := oa.oauth.RevokeGrant(c.Request().Context(), currentUser(c), c.Param("client_id"))
	if err != nil {
		return writeOAuthError(c, err)
	}
	if !revoked {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	return c.NoContent(http.StatusNoContent)
}
