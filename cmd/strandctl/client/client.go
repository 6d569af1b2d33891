// Package client is the thin HTTP wrapper strandctl uses to talk to a
// strand server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API calls one strand server.
type API struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

// New builds an API client for the given server base URL.
func New(baseURL, adminKey string) *API {
	return &API{
		baseURL:  strings.TrimRight(baseURL, "/"),
		adminKey: adminKey,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Do sends a JSON request to an admin endpoint and decodes the response
// into out when out is non-nil.
func (a *API) Do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.adminKey != "" {
		req.Header.Set("X-Admin-Key", a.adminKey)
	}
	return a.send(req, out)
}

// DoForm sends a form-encoded request to an OAuth endpoint, with Basic
// client credentials when clientID is set.
func (a *API) DoForm(path string, form url.Values, clientID, clientSecret string, out any) error {
	req, err := http.NewRequest(http.MethodPost, a.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}
	return a.send(req, out)
}

func (a *API) send(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: %s: %s",
			req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
