package echo

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/services"
)

func TestGrantsRequireUser(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/oauth/grants", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGrantsLifecycle(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())
	token := issueTokens(t, ts, "user-9", client)
	bearer := "Bearer " + ts.userToken(t, "user-9")

	listGrants := func() []*services.GrantSummary {
		req := httptest.NewRequest(http.MethodGet, "/oauth/grants", nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var out struct {
			Grants []*services.GrantSummary `json:"grants"`
		}
		decodeJSON(t, rec, &out)
		return out.Grants
	}

	grants := listGrants()
	require.Len(t, grants, 1)
	assert.Equal(t, client.ClientID, grants[0].ClientID)
	assert.Equal(t, "Dashboard", grants[0].ClientName)
	assert.Equal(t, []string{"profile"}, grants[0].Scopes)

	// Disconnect the application.
	req := httptest.NewRequest(http.MethodDelete, "/oauth/grants/"+client.ClientID, nil)
	req.Header.Set(echo.HeaderAuthorization, bearer)
	rec := ts.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Empty(t, listGrants())

	// The revocation cascaded to the pair's tokens.
	form := url.Values{}
	form.Set("token", token.AccessToken)
	introspect := formRequest(http.MethodPost, "/oauth/introspect", form)
	introspect.SetBasicAuth(client.ClientID, client.ClientSecret)
	rec = ts.do(introspect)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.IntrospectionResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Active)

	t.Run("second delete is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/oauth/grants/"+client.ClientID, nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		rec := ts.do(req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown client is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/oauth/grants/never-registered", nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		rec := ts.do(req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGrantsScopeAccumulation(t *testing.T) {
	ts := newTestServer(t)
	client := ts.registerClient(t, confidentialClientReq())
	bearer := "Bearer " + ts.userToken(t, "user-3")

	approve := func(scope string) {
		form := authorizeForm(client.ClientID, client.RedirectURIs[0], scope, "", "")
		form.Set("consent", "approve")
		req := formRequest(http.MethodPost, "/oauth/authorize", form)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	approve("profile")
	approve("email")

	req := httptest.NewRequest(http.MethodGet, "/oauth/grants", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Grants []*services.GrantSummary `json:"grants"`
	}
	decodeJSON(t, rec, &out)
	require.Len(t, out.Grants, 1)
	assert.Equal(t, []string{"profile", "email"}, out.Grants[0].Scopes)
}
