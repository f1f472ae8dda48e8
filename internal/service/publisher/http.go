package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const maxResponseBytes = 10 << 20

var (
	ErrNotConnected        = errors.New("platform not connected")
	ErrTokenExpired        = errors.New("access token expired")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// APIError is a non-2xx answer or an error payload from a platform API.
type APIError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (%d): %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Platform, e.Message)
}

// Request describes one outbound platform call. At most one of JSON, Form
// and Body is used.
type Request struct {
	Method      string
	URL         string
	Header      map[string]string
	Query       url.Values
	JSON        any
	Form        url.Values
	Body        []byte
	ContentType string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Snippet returns the body trimmed for error messages.
func (r *Response) Snippet() string {
	const max = 500
	if len(r.Body) > max {
		return string(r.Body[:max]) + "..."
	}
	return string(r.Body)
}

// Do performs the request. It only returns an error when no HTTP response
// was obtained; status codes are left to the caller.
func Do(ctx context.Context, client *http.Client, req Request) (*Response, error) {
	target := req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
		}
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.JSON != nil:
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case req.Form != nil:
		body = bytes.NewBufferString(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// DecodeRaw decodes a JSON object body for storing as diagnostic payload.
// Non-object bodies are returned under "body".
func DecodeRaw(resp *Response) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal(resp.Body, &raw); err != nil || raw == nil {
		return map[string]any{"status": resp.StatusCode, "body": resp.Snippet()}
	}
	return raw
}
