package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/strandauth/strand/domain"
	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/services"
)

// authorizeRequest reads the RFC 6749 §4.1.1 parameters through param,
// which is c.QueryParam on the GET and c.FormValue on the consent POST.
func authorizeRequest(param func(string) string) *services.AuthorizeRequest {
	return &services.AuthorizeRequest{
		ClientID:            param("client_id"),
		RedirectURI:         param("redirect_uri"),
		Scopes:              domain.SplitScopes(param("scope")),
		State:               param("state"),
		CodeChallenge:       param("code_challenge"),
		CodeChallengeMethod: param("code_challenge_method"),
	}
}

// AuthorizeHandler validates an authorization request and returns the data
// the consent page renders. This server never redirects: the first-party
// consent UI drives the browser and posts the user's decision back, so
// validation failures are JSON error bodies too.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := authorizeRequest(c.QueryParam)

	if c.QueryParam("response_type") != "code" {
		return writeOAuthError(c, serrors.NewUnsupportedResponseType().WithState(req.State))
	}

	page, err := oa.oauth.ValidateAuthorizeRequest(c.Request().Context(), req)
	if err != nil {
		return writeOAuthError(c, withState(err, req.State))
	}
	return c.JSON(http.StatusOK, page)
}

// ConsentHandler records the user's decision on a pending authorization
// request. Deny answers access_denied with the state echoed and mints
// nothing. Approve re-validates the request, then issues the single-use
// code the consent UI appends to the client's redirect URI.
func (oa *OAuth2API) ConsentHandler(c echo.Context) error {
	req := authorizeRequest(c.FormValue)

	if c.FormValue("response_type") != "code" {
		return writeOAuthError(c, serrors.NewUnsupportedResponseType().WithState(req.State))
	}

	switch c.FormValue("consent") {
	case "approve":
	case "deny":
		return writeOAuthError(c, serrors.NewAccessDenied("the user denied the authorization request").WithState(req.State))
	default:
		return writeOAuthError(c, serrors.NewInvalidRequest("consent must be approve or deny").WithState(req.State))
	}

	ctx := c.Request().Context()
	if _, err := oa.oauth.ValidateAuthorizeRequest(ctx, req); err != nil {
		return writeOAuthError(c, withState(err, req.State))
	}

	code, err := oa.oauth.CreateAuthorizationCode(ctx, currentUser(c), req)
	if err != nil {
		return writeOAuthError(c, withState(err, req.State))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"code":  code,
		"state": req.State,
	})
}
