package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/pkg/util"
)

// Metadata is a free-form JSON object as stored in jsonb columns.
type Metadata map[string]any

// String returns the first non-empty value found under keys, formatted as a
// string. JSON numbers are rendered without exponent.
func (m Metadata) String(keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Strings reads a list under the first present key. JSON arrays, comma
// separated strings and bracketed list strings such as "[a, 'b']" are
// accepted.
func (m Metadata) Strings(keys ...string) []string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case []string:
			return v
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			return out
		case string:
			if tags := util.ParseTags(v); len(tags) > 0 {
				return tags
			}
			return nil
		}
	}
	return nil
}

// Value returns the raw value under key.
func (m Metadata) Value(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Content is the platform independent view of a scheduled content row.
type Content struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Platform string   `json:"platform"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Keywords []string `json:"keywords"`
	Metadata Metadata `json:"metadata"`
}

func (c Content) ImageURL() string {
	return c.Metadata.String("image_url", "imageUrl", "featured_image")
}

func (c Content) LinkURL() string {
	return c.Metadata.String("link_url", "link", "external_url")
}

func (c Content) Tags() []string {
	return c.Metadata.Strings("tags")
}

// Credentials is a resolved platform integration.
type Credentials struct {
	IntegrationID string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	Metadata      Metadata
}

// Expired reports whether the token has an expiry at or before now.
func (c Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Result is the normalized outcome of one platform publish call.
type Result struct {
	Success bool           `json:"success"`
	URL     string         `json:"url,omitempty"`
	PostID  string         `json:"postId,omitempty"`
	Error   string         `json:"error,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// Failed builds a handled failure result.
func Failed(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// FailedWith builds a handled failure result from an error.
func FailedWith(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}

// AsMap converts the result into a JSON object for storage.
func (r *Result) AsMap() map[string]any {
	out := map[string]any{"success": r.Success}
	if r.URL != "" {
		out["url"] = r.URL
	}
	if r.PostID != "" {
		out["postId"] = r.PostID
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if len(r.Raw) > 0 {
		out["raw"] = r.Raw
	}
	return out
}

// Options are the transport settings shared by platform publishers.
type Options struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Now       func() time.Time
}

func (o Options) HTTPClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// Endpoint joins path onto the configured base URL, or onto defaultBase when
// no override is set.
func (o Options) Endpoint(defaultBase, path string) string {
	base := defaultBase
	if o.BaseURL != "" {
		base = o.BaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func (o Options) Clock() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Publisher is implemented once per publishing platform.
type Publisher interface {
	GetPlatformName() string

	// Publish sends content to the platform. Rejections by the platform and
	// missing content prerequisites come back as a Result with Success false.
	// A returned error means the attempt could not be completed (transport
	// failure, timeout, missing or expired credentials) and should be retried.
	Publish(ctx context.Context, content Content, creds Credentials) (*Result, error)
}

// FromContentStrategy converts a content row into publisher input.
func FromContentStrategy(row *models.ContentStrategy) Content {
	metadata := Metadata{}
	for k, v := range row.Metadata {
		metadata[k] = v
	}

	return Content{
		ID:       row.ID,
		UserID:   row.UserID,
		Platform: strings.ToLower(strings.TrimSpace(row.TargetPlatform)),
		Title:    row.Topic,
		Body:     row.GeneratedContent,
		Keywords: []string(row.TargetKeywords),
		Metadata: metadata,
	}
}

// FromIntegration converts an integration row into credentials.
func FromIntegration(row *models.PlatformIntegration) Credentials {
	metadata := Metadata{}
	for k, v := range row.Metadata {
		metadata[k] = v
	}

	return Credentials{
		IntegrationID: row.ID,
		AccessToken:   row.AccessToken,
		RefreshToken:  row.RefreshToken,
		ExpiresAt:     row.ExpiresAt,
		Metadata:      metadata,
	}
}

// LogFields returns the standard zap fields describing a content item.
func (c Content) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("content_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("platform", c.Platform),
	}
}
