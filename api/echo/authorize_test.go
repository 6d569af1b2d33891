package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/services"
)

const testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

func TestAuthorizeRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())

	form := authorizeForm(client.ClientID, client.RedirectURIs[0], "profile", "xyz", "")

	t.Run("no token", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), "invalid_token")
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
		rec := ts.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("refresh token is not a user credential", func(t *testing.T) {
		pair, err := ts.tokens.IssueTokenPair(context.Background(), "user-1", client.ClientID, []string{"profile"}, "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.RefreshToken)
		rec := ts.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthorizeConsentData(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())
	challenge := services.S256Challenge(testVerifier)

	form := authorizeForm(client.ClientID, client.RedirectURIs[0], "profile email", "xyz", challenge)
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.userToken(t, "user-1"))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page services.ConsentPageData
	decodeJSON(t, rec, &page)
	assert.Equal(t, client.ClientID, page.ClientID)
	assert.Equal(t, "Dashboard", page.ClientName)
	assert.Equal(t, "Team dashboard", page.ClientDescription)
	assert.Equal(t, "xyz", page.State)
	assert.Equal(t, challenge, page.CodeChallenge)
	assert.Equal(t, services.CodeChallengeMethodS256, page.CodeChallengeMethod)
	require.Len(t, page.Scopes, 2)
	assert.Equal(t, "profile", page.Scopes[0].Name)
	assert.NotEmpty(t, page.Scopes[0].Description)
}

func TestAuthorizeValidationFailures(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())
	bearer := "Bearer " + ts.userToken(t, "user-1")

	get := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		return ts.do(req)
	}

	t.Run("wrong response type", func(t *testing.T) {
		form := authorizeForm(client.ClientID, client.RedirectURIs[0], "", "st8", "")
		form.Set("response_type", "token")
		rec := get(form)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		we := decodeError(t, rec)
		assert.Equal(t, "unsupported_response_type", we.Error)
		assert.Equal(t, "st8", we.State)
	})

	t.Run("unknown client", func(t *testing.T) {
		rec := get(authorizeForm("nobody", "https://x.example/cb", "", "", ""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_client", decodeError(t, rec).Error)
	})

	t.Run("unregistered redirect uri", func(t *testing.T) {
		rec := get(authorizeForm(client.ClientID, "https://evil.example/cb", "", "", ""))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Error)
	})

	t.Run("scope outside the client's set", func(t *testing.T) {
		rec := get(authorizeForm(client.ClientID, client.RedirectURIs[0], "full", "", ""))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_scope", decodeError(t, rec).Error)
	})

	t.Run("public client without PKCE", func(t *testing.T) {
		pub := ts.registerClient(t, publicClientReq())
		rec := get(authorizeForm(pub.ClientID, pub.RedirectURIs[0], "profile", "", ""))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		we := decodeError(t, rec)
		assert.Equal(t, "invalid_request", we.Error)
		assert.Contains(t, we.ErrorDescription, "PKCE")
	})
}

func TestConsentDeny(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())

	form := authorizeForm(client.ClientID, client.RedirectURIs[0], "profile", "abc123", "")
	form.Set("consent", "deny")
	req := formRequest(http.MethodPost, "/oauth/authorize", form)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.userToken(t, "user-1"))
	rec := ts.do(req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	we := decodeError(t, rec)
	assert.Equal(t, "access_denied", we.Error)
	assert.Equal(t, "abc123", we.State)

	// Denial leaves no standing grant behind.
	grants, err := ts.oauth.ListGrants(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestConsentApprove(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())

	form := authorizeForm(client.ClientID, client.RedirectURIs[0], "profile email", "abc123", "")
	form.Set("consent", "approve")
	req := formRequest(http.MethodPost, "/oauth/authorize", form)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.userToken(t, "user-7"))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	decodeJSON(t, rec, &out)
	assert.NotEmpty(t, out.Code)
	assert.Equal(t, "abc123", out.State)

	// Approval records the standing grant.
	grants, err := ts.oauth.ListGrants(context.Background(), "user-7")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, client.ClientID, grants[0].ClientID)
	assert.Equal(t, []string{"profile", "email"}, grants[0].Scopes)
}

func TestConsentRejectsUnknownDecision(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())

	form := authorizeForm(client.ClientID, client.RedirectURIs[0], "profile", "", "")
	form.Set("consent", "maybe")
	req := formRequest(http.MethodPost, "/oauth/authorize", form)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.userToken(t, "user-1"))
	rec := ts.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Error)
}
