package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandauth/strand/domain"
	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/internal/audit"
	"github.com/strandauth/strand/internal/metrics"
	applog "github.com/strandauth/strand/log"
)

// ClientService manages client registrations and authenticates clients on
// the token, introspection, and revocation endpoints.
type ClientService struct {
	clients domain.ClientRepository
	hasher  SecretHasher
	logger  applog.Logger
}

// NewClientService creates a ClientService backed by the given repository
// and secret hasher.
func NewClientService(clients domain.ClientRepository, hasher SecretHasher, logger applog.Logger) *ClientService {
	return &ClientService{
		clients: clients,
		hasher:  hasher,
		logger:  logger,
	}
}

// RegisterClient creates a new client and returns its credentials. The
// plaintext secret appears in this response and nowhere else; afterwards
// only its digest exists.
func (s *ClientService) RegisterClient(ctx context.Context, req *RegisterClientRequest) (*RegisterClientResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, serrors.NewInvalidRequest("name is required")
	}
	if err := validateRedirectURIs(req.RedirectURIs); err != nil {
		return nil, err
	}
	if err := validateScopeNames(req.Scopes); err != nil {
		return nil, err
	}

	clientID, err := domain.NewClientID()
	if err != nil {
		return nil, fmt.Errorf("generating client id: %w", err)
	}
	secret, err := domain.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generating client secret: %w", err)
	}
	digest, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hashing client secret: %w", err)
	}

	now := time.Now().UTC()
	client := &domain.Client{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		SecretDigest:        digest,
		Name:                req.Name,
		Description:         req.Description,
		RedirectURIs:        req.RedirectURIs,
		Scopes:              req.Scopes,
		Confidential:        boolOrDefault(req.Confidential, true),
		RotateRefreshTokens: boolOrDefault(req.RotateRefreshTokens, true),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.clients.CreateClient(ctx, client); err != nil {
		audit.Log(audit.ActionClientRegister, "", clientID, req.Name, false, err)
		return nil, fmt.Errorf("creating client: %w", err)
	}

	metrics.ClientsRegisteredTotal.Inc()
	audit.Log(audit.ActionClientRegister, "", clientID, req.Name, true, nil)
	s.logger.Info(ctx, "client registered", map[string]interface{}{
		"client_id":    clientID,
		"name":         req.Name,
		"confidential": client.Confidential,
	})

	return &RegisterClientResponse{
		ID:           client.ID,
		ClientID:     client.ClientID,
		ClientSecret: secret,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		CreatedAt:    client.CreatedAt,
	}, nil
}

// GetClient returns a client by internal ID, revoked or not.
func (s *ClientService) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	return s.clients.GetClientByID(ctx, id)
}

// ListClients returns every registered client, revoked included.
func (s *ClientService) ListClients(ctx context.Context) ([]*domain.Client, error) {
	return s.clients.ListClients(ctx)
}

// UpdateClient applies the non-nil fields of upd to the client and returns
// the updated record. The confidentiality flag is immutable; switching a
// public client to confidential after issuance would silently upgrade its
// trust level.
func (s *ClientService) UpdateClient(ctx context.Context, id string, upd *domain.ClientUpdate) (*domain.Client, error) {
	client, err := s.clients.GetClientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, serrors.NewInvalidRequest("name must not be empty")
		}
		client.Name = *upd.Name
	}
	if upd.Description != nil {
		client.Description = *upd.Description
	}
	if upd.RedirectURIs != nil {
		if err := validateRedirectURIs(upd.RedirectURIs); err != nil {
			return nil, err
		}
		client.RedirectURIs = upd.RedirectURIs
	}
	if upd.Scopes != nil {
		if err := validateScopeNames(upd.Scopes); err != nil {
			return nil, err
		}
		client.Scopes = upd.Scopes
	}
	if upd.RotateRefreshTokens != nil {
		client.RotateRefreshTokens = *upd.RotateRefreshTokens
	}
	client.UpdatedAt = time.Now().UTC()

	if err := s.clients.UpdateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("updating client: %w", err)
	}
	audit.Log(audit.ActionClientUpdate, "", client.ClientID, "", true, nil)
	return client, nil
}

// RegenerateClientSecret replaces the client's secret and returns the new
// plaintext exactly once. The previous secret stops working immediately.
func (s *ClientService) RegenerateClientSecret(ctx context.Context, id string) (string, error) {
	client, err := s.clients.GetClientByID(ctx, id)
	if err != nil {
		return "", err
	}

	secret, err := domain.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generating client secret: %w", err)
	}
	digest, err := s.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("hashing client secret: %w", err)
	}
	if err := s.clients.UpdateClientSecret(ctx, id, digest); err != nil {
		return "", fmt.Errorf("updating client secret: %w", err)
	}

	audit.Log(audit.ActionClientSecretRotate, "", client.ClientID, "", true, nil)
	s.logger.Info(ctx, "client secret rotated", map[string]interface{}{
		"client_id": client.ClientID,
	})
	return secret, nil
}

// RevokeClient revokes the client and every token issued to it. Codes are
// left alone; they fail at exchange time because the client is no longer
// active.
func (s *ClientService) RevokeClient(ctx context.Context, id string) error {
	client, err := s.clients.GetClientByID(ctx, id)
	if err != nil {
		return err
	}

	revoked, err := s.clients.RevokeClient(ctx, id)
	if err != nil {
		audit.Log(audit.ActionClientRevoke, "", client.ClientID, "", false, err)
		return fmt.Errorf("revoking client: %w", err)
	}
	if !revoked {
		return domain.ErrNotFound
	}

	audit.Log(audit.ActionClientRevoke, "", client.ClientID, "", true, nil)
	s.logger.Warn(ctx, "client revoked", map[string]interface{}{
		"client_id": client.ClientID,
	})
	return nil
}

// AuthenticateClient verifies client credentials for the token endpoint.
// Confidential clients must present their secret; public clients are
// identified by client_id alone and any presented secret is ignored.
//
// An unknown client_id and a wrong secret both come back as the same
// invalid_client error. The distinction is logged server-side only, so the
// endpoint cannot be used to probe which client IDs exist.
func (s *ClientService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, error) {
	client, err := s.clients.FindActiveClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn(ctx, "client authentication failed: unknown or revoked client", map[string]interface{}{
				"client_id": clientID,
			})
			return nil, serrors.NewInvalidClient("client not found or revoked")
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	if client.Confidential {
		if !s.hasher.Verify(clientSecret, client.SecretDigest) {
			s.logger.Warn(ctx, "client authentication failed: secret mismatch", map[string]interface{}{
				"client_id": clientID,
			})
			return nil, serrors.NewInvalidClient("client secret verification failed")
		}
	}
	return client, nil
}

// FindActiveClient returns a non-revoked client by public client_id without
// checking credentials. Authorization request validation uses it before any
// user interaction happens.
func (s *ClientService) FindActiveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.clients.FindActiveClient(ctx, clientID)
}

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return serrors.NewInvalidRequest("at least one redirect_uri is required")
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return serrors.NewInvalidRequest(fmt.Sprintf("redirect_uri %q must be an absolute URI without a fragment", raw))
		}
	}
	return nil
}

func validateScopeNames(scopes []string) error {
	if len(scopes) == 0 {
		return serrors.NewInvalidRequest("at least one scope is required")
	}
	if bad, ok := domain.ValidateScopes(scopes); !ok {
		return serrors.NewInvalidScope(fmt.Sprintf("unknown scope %q", bad))
	}
	return nil
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
