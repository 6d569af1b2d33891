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

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// TestOAuth2ClientInterop runs the full authorization code + refresh flow
// against a live server through golang.org/x/oauth2, the way a real Go
// client would integrate.
func TestOAuth2ClientInterop(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	client := ts.registerClient(t, confidentialClientReq())

	conf := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURIs[0],
		Scopes:       []string{"profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/oauth/authorize",
			TokenURL: srv.URL + "/oauth/token",
		},
	}

	verifier := oauth2.GenerateVerifier()
	authURL, err := url.Parse(conf.AuthCodeURL("state-xyz", oauth2.S256ChallengeOption(verifier)))
	require.NoError(t, err)

	// The consent UI would render the GET and then post the user's
	// decision back with the same parameters.
	form := authURL.Query()
	form.Set("consent", "approve")
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/oauth/authorize", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+ts.userToken(t, "user-1"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var approved struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&approved))
	require.Equal(t, "state-xyz", approved.State)
	require.NotEmpty(t, approved.Code)

	tok, err := conf.Exchange(context.Background(), approved.Code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	require.True(t, tok.Valid())
	require.Equal(t, "Bearer", tok.Type())
	require.NotEmpty(t, tok.RefreshToken)

	// Expire the access token locally; the token source refreshes through
	// the refresh_token grant on its own.
	tok.Expiry = time.Now().Add(-time.Minute)
	fresh, err := conf.TokenSource(context.Background(), tok).Token()
	require.NoError(t, err)
	require.True(t, fresh.Valid())
	require.NotEqual(t, tok.AccessToken, fresh.AccessToken)
	require.NotEqual(t, tok.RefreshToken, fresh.RefreshToken, "refresh tokens rotate")

	// The rotated-out refresh token is dead.
	stale, err := ts.oauth.Introspect(context.Background(), tok.RefreshToken)
	require.NoError(t, err)
	require.False(t, stale.Active)
}
