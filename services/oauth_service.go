package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strandauth/strand/domain"
	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/internal/audit"
	"github.com/strandauth/strand/internal/metrics"
	applog "github.com/strandauth/strand/log"
)

// AuthorizeRequest is a parsed authorization request. Scopes are already
// split; response_type has already been checked by the transport layer.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// OAuthService orchestrates the authorization code and refresh token flows.
// It is stateless between calls; every piece of shared state lives in the
// repositories.
type OAuthService struct {
	clients *ClientService
	tokens  *TokenService
	codes   domain.AuthCodeRepository
	store   domain.TokenRepository
	grants  domain.GrantRepository
	codeTTL time.Duration
	logger  applog.Logger
}

// NewOAuthService creates the flow orchestrator.
func NewOAuthService(
	clients *ClientService,
	tokens *TokenService,
	codes domain.AuthCodeRepository,
	store domain.TokenRepository,
	grants domain.GrantRepository,
	codeTTL time.Duration,
	logger applog.Logger,
) *OAuthService {
	return &OAuthService{
		clients: clients,
		tokens:  tokens,
		codes:   codes,
		store:   store,
		grants:  grants,
		codeTTL: codeTTL,
		logger:  logger,
	}
}

// ValidateAuthorizeRequest checks an authorization request before any user
// interaction and returns the data a consent page needs. PKCE is a hard
// requirement for public clients; confidential clients may use it too.
func (s *OAuthService) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*ConsentPageData, error) {
	client, err := s.clients.FindActiveClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidClient("client not found or revoked")
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	if !client.Confidential && req.CodeChallenge == "" {
		return nil, serrors.NewPKCERequired()
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod != CodeChallengeMethodS256 {
		return nil, serrors.NewInvalidRequest("code_challenge_method must be S256")
	}

	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, serrors.NewInvalidRedirectURI("redirect_uri is not registered for this client")
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = domain.DefaultScopes()
	} else if !client.AllowsScopes(scopes) {
		return nil, serrors.NewInvalidScope("requested scope exceeds the client's allowed scopes")
	}

	displays := make([]ScopeDisplay, 0, len(scopes))
	for _, raw := range scopes {
		if sc, ok := domain.ParseScope(raw); ok {
			displays = append(displays, ScopeDisplay{
				Name:        sc.String(),
				Description: sc.Description(),
			})
		}
	}

	return &ConsentPageData{
		ClientID:            client.ClientID,
		ClientName:          client.Name,
		ClientDescription:   client.Description,
		Scopes:              displays,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}, nil
}

// CreateAuthorizationCode mints a single-use authorization code after the
// user approved the request, and upserts the standing grant for the
// (user, client) pair in the same step: consent is never recorded without a
// code, nor a code issued without recording consent. Only the code's digest
// is stored; the plaintext goes back to the caller and nowhere else.
//
// Callers must have passed the request through ValidateAuthorizeRequest
// first; this method trusts its inputs.
func (s *OAuthService) CreateAuthorizationCode(ctx context.Context, userID string, req *AuthorizeRequest) (string, error) {
	code, err := domain.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = domain.DefaultScopes()
	}

	now := time.Now().UTC()
	row := &domain.AuthorizationCode{
		ID:                  uuid.NewString(),
		CodeHash:            domain.HashToken(code),
		UserID:              userID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
	}
	if err := s.codes.CreateAuthorizationCode(ctx, row); err != nil {
		return "", fmt.Errorf("storing authorization code: %w", err)
	}

	if _, err := s.grants.UpsertUserGrant(ctx, userID, req.ClientID, scopes); err != nil {
		return "", fmt.Errorf("recording user grant: %w", err)
	}

	metrics.AuthCodesIssuedTotal.Inc()
	audit.Log(audit.ActionCodeIssue, userID, req.ClientID, domain.JoinScopes(scopes), true, nil)
	s.logger.Info(ctx, "authorization code issued", map[string]interface{}{
		"user_id":     userID,
		"client_id":   req.ClientID,
		"code_prefix": domain.HashPrefix(code),
		"scopes":      scopes,
	})
	return code, nil
}

// ExchangeAuthorizationCode redeems an authorization code for a fresh
// access/refresh pair. The code is consumed atomically: two concurrent
// redemptions yield exactly one pair. A consumed, expired, or unknown code
// is one and the same failure externally.
func (s *OAuthService) ExchangeAuthorizationCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	if code == "" || redirectURI == "" {
		return nil, serrors.NewInvalidGrant("code and redirect_uri are required")
	}

	authCode, err := s.codes.FindAndConsumeAuthorizationCode(ctx, domain.HashToken(code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn(ctx, "code exchange rejected", map[string]interface{}{
				"code_prefix": domain.HashPrefix(code),
				"reason":      "code not found, expired, or already consumed",
			})
			return nil, serrors.NewInvalidGrant("authorization code is invalid, expired, or already consumed")
		}
		return nil, fmt.Errorf("consuming authorization code: %w", err)
	}

	if authCode.RedirectURI != redirectURI {
		return nil, serrors.NewInvalidRedirectURI("redirect_uri does not match the authorization request")
	}

	if authCode.CodeChallenge != "" {
		if codeVerifier == "" {
			return nil, serrors.NewInvalidCodeVerifier("code_verifier is required")
		}
		if !VerifyPKCE(codeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			return nil, serrors.NewInvalidCodeVerifier("code_verifier does not match the code_challenge")
		}
	}

	client, err := s.clients.FindActiveClient(ctx, authCode.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidClient("client not found or revoked")
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	// Brand-new grant lineage, never a continuation of an old family.
	pair, err := s.tokens.IssueTokenPair(ctx, authCode.UserID, authCode.ClientID, authCode.Scopes, "")
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("authorization_code").Inc()
	audit.Log(audit.ActionCodeExchange, authCode.UserID, authCode.ClientID, "", true, nil)
	s.logger.Info(ctx, "authorization code exchanged", map[string]interface{}{
		"user_id":         authCode.UserID,
		"client_id":       authCode.ClientID,
		"access_token_id": pair.AccessTokenID,
		"family_id":       pair.FamilyID,
	})

	resp := &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        domain.JoinScopes(pair.Scopes),
	}
	// Public clients cannot safely retain a long-lived secret-equivalent
	// credential. The refresh token row exists but its plaintext is
	// withheld, so it can never be presented.
	if !client.Confidential {
		resp.RefreshToken = ""
	}
	return resp, nil
}

// RefreshTokens rotates a refresh token. Presenting a revoked token is
// conclusive evidence of theft or double-use, and takes down the whole
// token family before the request fails.
func (s *OAuthService) RefreshTokens(ctx context.Context, refreshToken, clientID string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, serrors.NewInvalidGrant("refresh_token is required")
	}

	token, err := s.store.FindRefreshTokenByHash(ctx, domain.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("refresh token not found")
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	if token.ClientID != clientID {
		s.logger.Warn(ctx, "refresh token presented by wrong client", map[string]interface{}{
			"token_id":           token.ID,
			"token_client_id":    token.ClientID,
			"presented_client_id": clientID,
		})
		return nil, serrors.NewInvalidClient("refresh token does not belong to this client")
	}

	if token.Revoked() {
		if err := s.store.RevokeTokenFamily(ctx, token.FamilyID); err != nil {
			return nil, fmt.Errorf("revoking token family: %w", err)
		}
		metrics.TokenReuseDetectedTotal.Inc()
		audit.Log(audit.ActionTokenReuse, token.UserID, token.ClientID, token.FamilyID, false, nil)
		s.logger.Error(ctx, "refresh token reuse detected, family revoked", nil, map[string]interface{}{
			"security_event": "refresh_token_reuse",
			"token_id":       token.ID,
			"family_id":      token.FamilyID,
			"user_id":        token.UserID,
			"client_id":      token.ClientID,
		})
		return nil, serrors.NewTokenReuseDetected(token.FamilyID)
	}

	if token.Expired(time.Now().UTC()) {
		return nil, serrors.NewTokenExpired()
	}

	client, err := s.clients.FindActiveClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewInvalidClient("client not found or revoked")
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	if err := s.store.RevokeRefreshToken(ctx, token.ID); err != nil {
		return nil, fmt.Errorf("revoking presented refresh token: %w", err)
	}

	// Rotation keeps the lineage so reuse of any ancestor stays
	// detectable. Clients that opted out of rotation tracking start a
	// fresh family on every refresh.
	familyID := token.FamilyID
	if !client.RotateRefreshTokens {
		familyID = ""
	}
	pair, err := s.tokens.IssueTokenPair(ctx, token.UserID, token.ClientID, token.Scopes, familyID)
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("refresh_token").Inc()
	audit.Log(audit.ActionTokenRefresh, token.UserID, token.ClientID, pair.FamilyID, true, nil)
	s.logger.Info(ctx, "refresh token rotated", map[string]interface{}{
		"user_id":          token.UserID,
		"client_id":        token.ClientID,
		"old_token_id":     token.ID,
		"new_token_id":     pair.RefreshTokenID,
		"family_id":        pair.FamilyID,
		"family_continued": client.RotateRefreshTokens,
	})

	// A refresh caller already holds a refresh token, so the public-client
	// restriction from the exchange path does not re-apply here.
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        domain.JoinScopes(pair.Scopes),
	}, nil
}

// Introspect reports whether a token is currently active, RFC 7662 style.
// Anything other than a live token, access or refresh, yields a bare
// {"active": false} with no metadata attached.
func (s *OAuthService) Introspect(ctx context.Context, token string) (*IntrospectionResponse, error) {
	if token == "" {
		metrics.IntrospectionTotal.WithLabelValues("false").Inc()
		return InactiveIntrospection(), nil
	}

	hash := domain.HashToken(token)
	now := time.Now().UTC()

	if access, err := s.store.FindAccessTokenByHash(ctx, hash); err == nil {
		return s.introspectionOf(access, now), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up access token: %w", err)
	}

	if refresh, err := s.store.FindRefreshTokenByHash(ctx, hash); err == nil {
		return s.introspectionOf(refresh, now), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	metrics.IntrospectionTotal.WithLabelValues("false").Inc()
	return InactiveIntrospection(), nil
}

func (s *OAuthService) introspectionOf(token *domain.Token, now time.Time) *IntrospectionResponse {
	if !token.Active(now) {
		metrics.IntrospectionTotal.WithLabelValues("false").Inc()
		return InactiveIntrospection()
	}
	metrics.IntrospectionTotal.WithLabelValues("true").Inc()
	return &IntrospectionResponse{
		Active:    true,
		Scope:     domain.JoinScopes(token.Scopes),
		ClientID:  token.ClientID,
		TokenType: string(token.TokenType),
		Exp:       token.ExpiresAt.Unix(),
		Iat:       token.CreatedAt.Unix(),
		Sub:       token.UserID,
	}
}

// RevokeToken revokes a single token, RFC 7009 style: unknown and
// already-revoked tokens are not errors, and only the presented token is
// affected, never its family. The type hint is accepted but not needed;
// both lookups run anyway.
func (s *OAuthService) RevokeToken(ctx context.Context, token, typeHint string) error {
	metrics.RevocationTotal.Inc()
	if token == "" {
		return nil
	}

	hash := domain.HashToken(token)

	revoked, err := s.store.RevokeAccessTokenByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("revoking access token: %w", err)
	}
	if revoked {
		audit.Log(audit.ActionTokenRevoke, "", domain.HashPrefix(token), string(domain.TokenTypeAccess), true, nil)
		s.logger.Info(ctx, "access token revoked", map[string]interface{}{
			"token_prefix": domain.HashPrefix(token),
		})
		return nil
	}

	revoked, err = s.store.RevokeRefreshTokenByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	if revoked {
		audit.Log(audit.ActionTokenRevoke, "", domain.HashPrefix(token), string(domain.TokenTypeRefresh), true, nil)
		s.logger.Info(ctx, "refresh token revoked", map[string]interface{}{
			"token_prefix": domain.HashPrefix(token),
		})
	}
	return nil
}

// ListGrants returns the user's standing grants joined with client display
// data. Grants whose client has since been revoked are omitted.
func (s *OAuthService) ListGrants(ctx context.Context, userID string) ([]*GrantSummary, error) {
	grants, err := s.grants.ListUserGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user grants: %w", err)
	}

	summaries := make([]*GrantSummary, 0, len(grants))
	for _, g := range grants {
		client, err := s.clients.FindActiveClient(ctx, g.ClientID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("looking up client %s: %w", g.ClientID, err)
		}
		summaries = append(summaries, &GrantSummary{
			ClientID:          client.ClientID,
			ClientName:        client.Name,
			ClientDescription: client.Description,
			Scopes:            g.Scopes,
			CreatedAt:         g.CreatedAt,
			UpdatedAt:         g.UpdatedAt,
		})
	}
	return summaries, nil
}

// RevokeGrant disconnects a client from a user: the standing grant goes
// away and every live token for the pair is revoked with it. Reports false
// when no active grant existed.
func (s *OAuthService) RevokeGrant(ctx context.Context, userID, clientID string) (bool, error) {
	revoked, err := s.grants.RevokeUserGrant(ctx, userID, clientID)
	if err != nil {
		return false, fmt.Errorf("revoking user grant: %w", err)
	}
	if !revoked {
		return false, nil
	}

	metrics.GrantsRevokedTotal.Inc()
	audit.Log(audit.ActionGrantRevoke, userID, clientID, "", true, nil)
	s.logger.Info(ctx, "user grant revoked", map[string]interface{}{
		"user_id":   userID,
		"client_id": clientID,
	})
	return true, nil
}
