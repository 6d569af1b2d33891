package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/cache"
	applog "github.com/strandauth/strand/log"
	"github.com/strandauth/strand/services"
)

const adminKey = "test-admin-key"

// fakeSecretHasher keeps handler tests fast; the real bcrypt and argon2id
// implementations have their own tests.
type fakeSecretHasher struct{}

func (fakeSecretHasher) Hash(secret string) (string, error) { return "digest:" + secret, nil }
func (fakeSecretHasher) Verify(secret, digest string) bool  { return digest == "digest:"+secret }

type testServer struct {
	e       *echo.Echo
	store   *cache.MemoryStore
	clients *services.ClientService
	tokens  *services.TokenService
	oauth   *services.OAuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	logger := applog.NewNop()
	clients := services.NewClientService(store, fakeSecretHasher{}, logger)
	tokens := services.NewTokenService(store, 15*time.Minute, 7*24*time.Hour, logger)
	oauth := services.NewOAuthService(clients, tokens, store, store, store, 10*time.Minute, logger)

	api := NewOAuth2API(oauth, clients, store, Config{AdminAPIKey: adminKey})
	e := echo.New()
	api.RegisterRoutes(e)

	return &testServer{e: e, store: store, clients: clients, tokens: tokens, oauth: oauth}
}

// do runs one request through the full router, middleware included.
func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) registerClient(t *testing.T, req *services.RegisterClientRequest) *services.RegisterClientResponse {
	t.Helper()
	resp, err := ts.clients.RegisterClient(context.Background(), req)
	require.NoError(t, err)
	return resp
}

// userToken mints a live access token for userID so a request can pass the
// bearer middleware. The issuing client is irrelevant to that check.
func (ts *testServer) userToken(t *testing.T, userID string) string {
	t.Helper()
	pair, err := ts.tokens.IssueTokenPair(context.Background(), userID, "console", []string{"profile"}, "")
	require.NoError(t, err)
	return pair.AccessToken
}

// approveConsent posts an approval for userID and returns the issued code.
func (ts *testServer) approveConsent(t *testing.T, userID string, form url.Values) string {
	t.Helper()
	form.Set("consent", "approve")
	req := formRequest(http.MethodPost, "/oauth/authorize", form)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.userToken(t, userID))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Code string `json:"code"`
	}
	decodeJSON(t, rec, &out)
	require.NotEmpty(t, out.Code)
	return out.Code
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(string(raw)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into), rec.Body.String())
}

// wireError mirrors the RFC 6749 error body.
type wireError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	State            string `json:"state"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) wireError {
	t.Helper()
	var we wireError
	decodeJSON(t, rec, &we)
	return we
}

func confidentialClientReq() *services.RegisterClientRequest {
	return &services.RegisterClientRequest{
		Name:         "Dashboard",
		Description:  "Team dashboard",
		RedirectURIs: []string{"https://dashboard.example.com/callback"},
		Scopes:       []string{"profile", "email"},
	}
}

func publicClientReq() *services.RegisterClientRequest {
	confidential := false
	return &services.RegisterClientRequest{
		Name:         "Mobile App",
		RedirectURIs: []string{"https://mobile.example.com/callback"},
		Scopes:       []string{"profile"},
		Confidential: &confidential,
	}
}

// authorizeForm builds the shared parameter set of the authorize endpoints.
func authorizeForm(clientID, redirectURI, scope, state, challenge string) url.Values {
	form := url.Values{}
	form.Set("response_type", "code")
	form.Set("client_id", clientID)
	form.Set("redirect_uri", redirectURI)
	if scope != "" {
		form.Set("scope", scope)
	}
	if state != "" {
		form.Set("state", state)
	}
	if challenge != "" {
		form.Set("code_challenge", challenge)
		form.Set("code_challenge_method", services.CodeChallengeMethodS256)
	}
	return form
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsExposed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
