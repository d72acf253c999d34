// Package api - Client fuer die Attention-API.
// Dieses Modul enthaelt die Client-Struktur und den JSON-Roundtrip,
// die einzelnen Endpunkte sind in client_api.go.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/version"
)

// RequestIDHeader traegt die Request-ID zwischen Client und Server
const RequestIDHeader = "X-Request-Id"

// Client encapsulates client state for interacting with the attention
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

// ClientFromEnvironment creates a new [Client] for the server at OLLAMA_HOST
// (<scheme>://<host>:<port>, default http://127.0.0.1:11434).
func ClientFromEnvironment() (*Client, error) {
	return NewClient(envconfig.Host(), http.DefaultClient), nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func userAgent() string {
	return fmt.Sprintf("ollama-sdpa/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version())
}

// do sendet reqData als JSON und dekodiert die Antwort in respData.
// Fehlerantworten werden zu StatusError.
func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent())

	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp, respBody)
	}

	if len(respBody) == 0 || respData == nil {
		return nil
	}
	return json.Unmarshal(respBody, respData)
}

func statusError(resp *http.Response, body []byte) error {
	apiError := StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RequestID:  resp.Header.Get(RequestIDHeader),
	}

	if err := json.Unmarshal(body, &apiError); err != nil {
		// kein JSON, z.B. von einem Proxy
		apiError.ErrorMessage = string(body)
	}

	return apiError
}
