// Package api - API-Methoden des Clients
package api

import (
	"context"
	"net/http"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}

// Attention computes scaled dot-product attention on the server.
func (c *Client) Attention(ctx context.Context, req *AttentionRequest) (*AttentionResponse, error) {
	var resp AttentionResponse
	if err := c.do(ctx, http.MethodPost, "/api/attention", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
