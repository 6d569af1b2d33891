package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/strandauth/strand/domain"
	serrors "github.com/strandauth/strand/errors"
	"github.com/strandauth/strand/services"
)

// adminError maps service failures for the management surface. Unknown
// clients become a plain 404; everything else keeps the OAuth error shape.
func adminError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	return writeOAuthError(c, err)
}

// RegisterClientHandler creates a client. The response body is the only
// place the plaintext secret ever appears; afterwards only its digest
// exists anywhere.
func (oa *OAuth2API) RegisterClientHandler(c echo.Context) error {
	var req services.RegisterClientRequest
	if err := c.Bind(&req); err != nil {
		return writeOAuthError(c, serrors.NewInvalidRequest("malformed request body"))
	}

	resp, err := oa.clients.RegisterClient(c.Request().Context(), &req)
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// ListClientsHandler returns every registered client, revoked included.
func (oa *OAuth2API) ListClientsHandler(c echo.Context) error {
	clients, err := oa.clients.ListClients(c.Request().Context())
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"clients": clients})
}

// GetClientHandler returns one client by internal ID.
func (oa *OAuth2API) GetClientHandler(c echo.Context) error {
	client, err := oa.clients.GetClient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(http.StatusOK, client)
}

// UpdateClientHandler applies a partial update to a client's mutable
// fields. Identity, confidentiality, and the secret digest stay fixed.
func (oa *OAuth2API) UpdateClientHandler(c echo.Context) error {
	var upd domain.ClientUpdate
	if err := c.Bind(&upd); err != nil {
		return writeOAuthError(c, serrors.NewInvalidRequest("malformed request body"))
	}

	client, err := oa.clients.UpdateClient(c.Request().Context(), c.Param("id"), &upd)
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(http.StatusOK, client)
}

// RevokeClientHandler soft-revokes a client and every token issued to it.
func (oa *OAuth2API) RevokeClientHandler(c echo.Context) error {
	if err := oa.clients.RevokeClient(c.Request().Context(), c.Param("id")); err != nil {
		return adminError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RotateClientSecretHandler replaces the client's secret. The old secret
// stops working the moment this returns; the new plaintext is returned
// exactly once.
func (oa *OAuth2API) RotateClientSecretHandler(c echo.Context) error {
	secret, err := oa.clients.RegenerateClientSecret(c.Request().Context(), c.Param("id"))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"client_secret": secret})
}
