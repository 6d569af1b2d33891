// Package echo exposes the authorization server over HTTP. Handlers
// translate between the RFC 6749/7009/7662 wire formats and the services
// layer; every flow decision lives in services, never here.
package echo

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/strandauth/strand/domain"
	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/services"
)

// userIDKey is the echo context key the user middleware stores the
// authenticated subject under.
const userIDKey = "user_id"

// Config carries the transport-level settings of the API.
type Config struct {
	// AdminAPIKey guards the client management surface. When empty the
	// admin routes are not registered at all.
	AdminAPIKey string

	// TokenRateLimitRPS throttles the token endpoint per source IP.
	// Zero or negative disables the limiter.
	TokenRateLimitRPS float64
}

// OAuth2API holds the handler dependencies.
type OAuth2API struct {
	oauth   *services.OAuthService
	clients *services.ClientService
	store   domain.Store
	cfg     Config
}

// NewOAuth2API builds the HTTP surface over the flow services.
func NewOAuth2API(oauth *services.OAuthService, clients *services.ClientService, store domain.Store, cfg Config) *OAuth2API {
	return &OAuth2API{
		oauth:   oauth,
		clients: clients,
		store:   store,
		cfg:     cfg,
	}
}

// RegisterRoutes registers every route on e.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	var tokenLimiter []echo.MiddlewareFunc
	if oa.cfg.TokenRateLimitRPS > 0 {
		tokenLimiter = append(tokenLimiter, middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStore(rate.Limit(oa.cfg.TokenRateLimitRPS))))
	}

	e.GET("/oauth/authorize", oa.AuthorizeHandler, oa.requireUser)
	e.POST("/oauth/authorize", oa.ConsentHandler, oa.requireUser)
	e.POST("/oauth/token", oa.TokenHandler, tokenLimiter...)
	e.POST("/oauth/introspect", oa.IntrospectHandler)
	e.POST("/oauth/revoke", oa.RevokeHandler)
	e.GET("/oauth/grants", oa.ListGrantsHandler, oa.requireUser)
	e.DELETE("/oauth/grants/:client_id", oa.RevokeGrantHandler, oa.requireUser)

	if oa.cfg.AdminAPIKey != "" {
		admin := e.Group("/admin", oa.requireAdminKey)
		admin.POST("/clients", oa.RegisterClientHandler)
		admin.GET("/clients", oa.ListClientsHandler)
		admin.GET("/clients/:id", oa.GetClientHandler)
		admin.PATCH("/clients/:id", oa.UpdateClientHandler)
		admin.DELETE("/clients/:id", oa.RevokeClientHandler)
		admin.POST("/clients/:id/secret", oa.RotateClientSecretHandler)
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", oa.HealthzHandler)
}

// HealthzHandler reports liveness of the server and its store.
func (oa *OAuth2API) HealthzHandler(c echo.Context) error {
	if err := oa.store.Ping(c.Request().Context()); err != nil {
		log.Error().Err(err).Msg("health check failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// requireUser authenticates the end user from a bearer access token issued
// by this server. The resolved subject lands on the context under
// userIDKey. Refresh tokens do not authenticate a user even while active.
func (oa *OAuth2API) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return unauthorizedBearer(c, "bearer token required")
		}
		introspection, err := oa.oauth.Introspect(c.Request().Context(), token)
		if err != nil {
			return writeOAuthError(c, err)
		}
		if !introspection.Active ||
			introspection.TokenType != string(domain.TokenTypeAccess) ||
			introspection.Sub == "" {
			return unauthorizedBearer(c, "token is not active")
		}
		c.Set(userIDKey, introspection.Sub)
		return next(c)
	}
}

// requireAdminKey guards the management surface with a constant-time key
// compare.
func (oa *OAuth2API) requireAdminKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		presented := c.Request().Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(oa.cfg.AdminAPIKey)) != 1 {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return next(c)
	}
}

// currentUser returns the subject the user middleware resolved.
func currentUser(c echo.Context) string {
	userID, _ := c.Get(userIDKey).(string)
	return userID
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):]), true
	}
	return "", false
}

// unauthorizedBearer answers a missing or dead user token with the RFC 6750
// challenge.
func unauthorizedBearer(c echo.Context, description string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error":             "invalid_token",
		"error_description": description,
	})
}

// writeOAuthError renders err in the RFC 6749 error format. Anything that
// is not an OAuth2Error is an internal failure: it gets logged with its
// detail and leaves the wire as a bare server_error.
func writeOAuthError(c echo.Context, err error) error {
	var oauthErr *serrors.OAuth2Error
	if !errors.As(err, &oauthErr) {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		oauthErr = serrors.NewServerError("internal error")
	}
	status := oauthErr.HTTPStatus()
	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="oauth", charset="UTF-8"`)
	}
	return c.JSON(status, oauthErr.WireResponse())
}

// withState stamps the request's state onto flow errors so the consent UI
// can hand it back to the client, RFC 6749 §4.1.2.1.
func withState(err error, state string) error {
	var oauthErr *serrors.OAuth2Error
	if state != "" && errors.As(err, &oauthErr) {
		return oauthErr.WithState(state)
	}
	return err
}
