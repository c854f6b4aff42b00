package gemini

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	apiKeyHeader = "x-goog-api-key"
	maxErrorBody = 4 << 10
)

// StatusError is an overload response from the service. It is returned by
// the transport in place of the response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "gemini: " + e.Status
	}
	return fmt.Sprintf("gemini: %s: %s", e.Status, e.Body)
}

// HTTPCode returns the response status code.
func (e *StatusError) HTTPCode() int { return e.Code }

// keyTransport sends each request once with the API key attached. The SDK
// only retries *googleapi.Error, so a 503 surfaced as *StatusError reaches
// the planner after a single request.
type keyTransport struct {
	key  string
	base http.RoundTripper
}

func newHTTPClient(key string, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: &keyTransport{key: key, base: base}}
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(apiKeyHeader, t.key)

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   strings.TrimSpace(string(body)),
	}
}
