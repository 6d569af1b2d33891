package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/domain"
	"github.com/strandauth/strand/services"
)

func adminRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = jsonRequest(t, method, target, body)
	}
	req.Header.Set("X-Admin-Key", adminKey)
	return req
}

func TestAdminKeyGuard(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing key", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/admin/clients", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/clients", nil)
		req.Header.Set("X-Admin-Key", "guess")
		rec := ts.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAdminRegisterClient(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(adminRequest(t, http.MethodPost, "/admin/clients", confidentialClientReq()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created services.RegisterClientResponse
	decodeJSON(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.ClientID)
	assert.NotEmpty(t, created.ClientSecret)
	assert.Equal(t, "Dashboard", created.Name)

	t.Run("fetch never echoes the secret", func(t *testing.T) {
		rec := ts.do(adminRequest(t, http.MethodGet, "/admin/clients/"+created.ID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), created.ClientSecret)
		assert.NotContains(t, rec.Body.String(), "secret_digest")

		var fetched domain.Client
		decodeJSON(t, rec, &fetched)
		assert.Equal(t, created.ClientID, fetched.ClientID)
		assert.True(t, fetched.Confidential)
	})

	t.Run("listing includes it", func(t *testing.T) {
		rec := ts.do(adminRequest(t, http.MethodGet, "/admin/clients", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var out struct {
			Clients []*domain.Client `json:"clients"`
		}
		decodeJSON(t, rec, &out)
		require.Len(t, out.Clients, 1)
		assert.Equal(t, created.ClientID, out.Clients[0].ClientID)
	})

	t.Run("invalid registration", func(t *testing.T) {
		rec := ts.do(adminRequest(t, http.MethodPost, "/admin/clients", &services.RegisterClientRequest{
			Name: "No redirect URIs",
		}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Error)
	})
}

func TestAdminUpdateClient(t *testing.T) {
	ts := newTestServer(t)
	created := ts.registerClient(t, confidentialClientReq())

	rec := ts.do(adminRequest(t, http.MethodPatch, "/admin/clients/"+created.ID, map[string]any{
		"name":   "Dashboard v2",
		"scopes": []string{"profile", "email", "org:read"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Client
	decodeJSON(t, rec, &updated)
	assert.Equal(t, "Dashboard v2", updated.Name)
	assert.Equal(t, []string{"profile", "email", "org:read"}, updated.Scopes)
	assert.Equal(t, created.ClientID, updated.ClientID, "identity is immutable")

	t.Run("unknown id", func(t *testing.T) {
		rec := ts.do(adminRequest(t, http.MethodPatch, "/admin/clients/missing", map[string]any{
			"name": "x",
		}))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminRotateSecret(t *testing.T) {
	ts := newTestServer(t)
	created := ts.registerClient(t, confidentialClientReq())

	rec := ts.do(adminRequest(t, http.MethodPost, "/admin/clients/"+created.ID+"/secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		ClientSecret string `json:"client_secret"`
	}
	decodeJSON(t, rec, &out)
	require.NotEmpty(t, out.ClientSecret)
	require.NotEqual(t, created.ClientSecret, out.ClientSecret)

	// The old secret is dead, the new one works.
	form := url.Values{}
	form.Set("token", "anything")
	req := formRequest(http.MethodPost, "/oauth/introspect", form)
	req.SetBasicAuth(created.ClientID, created.ClientSecret)
	require.Equal(t, http.StatusUnauthorized, ts.do(req).Code)

	req = formRequest(http.MethodPost, "/oauth/introspect", form)
	req.SetBasicAuth(created.ClientID, out.ClientSecret)
	require.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestAdminRevokeClient(t *testing.T) {
	ts := newTestServer(t)
	created := ts.registerClient(t, confidentialClientReq())
	token := issueTokens(t, ts, "user-1", created)

	rec := ts.do(adminRequest(t, http.MethodDelete, "/admin/clients/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	t.Run("client can no longer authorize", func(t *testing.T) {
		form := authorizeForm(created.ClientID, created.RedirectURIs[0], "profile", "", "")
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+form.Encode(), nil)
		req.Header.Set("Authorization", "Bearer "+ts.userToken(t, "user-1"))
		rec := ts.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_client", decodeError(t, rec).Error)
	})

	t.Run("issued tokens died with it", func(t *testing.T) {
		resp, err := ts.oauth.Introspect(context.Background(), token.AccessToken)
		require.NoError(t, err)
		assert.False(t, resp.Active)
	})

	t.Run("second revoke is a 404", func(t *testing.T) {
		rec := ts.do(adminRequest(t, http.MethodDelete, "/admin/clients/"+created.ID, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
