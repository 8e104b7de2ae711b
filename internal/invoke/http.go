package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "deepracer-llm-agent/0.1"

	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	maxErrorBodyBytes = 64 * 1024
)

// HTTPInvoker posts request envelopes to a Bedrock-compatible invocation
// endpoint: POST {base_url}/model/{model_id}/invoke.
type HTTPInvoker struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTP constructs an invoker against the given endpoint. Extra headers
// (authorization and the like) are sent with every request.
func NewHTTP(baseURL string, headers map[string]string) (*HTTPInvoker, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("invoke base url must not be empty")
	}

	return &HTTPInvoker{
		baseURL: baseURL,
		headers: headers,
		client:  newHTTPClient(defaultHTTPTimeout),
	}, nil
}

// Invoke performs one blocking invocation round trip.
func (i *HTTPInvoker) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/model/%s/invoke", i.baseURL, url.PathEscape(modelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("construct invoke request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range i.headers {
		req.Header.Set(k, v)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke model %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read invoke response: %w", err)
	}
	return body, nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("upstream error status %d: %s", resp.StatusCode, apiErr.Message)
	}

	return fmt.Errorf("upstream error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
