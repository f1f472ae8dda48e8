// Package quora posts into a Quora Space. Quora has no public API, so this
// drives the web GraphQL endpoint with a stored session cookie and formkey
// and is best effort.
package quora

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
)

const (
	defaultBaseURL = "https://www.quora.com"
	queryName      = "CreatePostMutation"
)

type QuoraPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type gqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func NewQuoraPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &QuoraPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *QuoraPublisher) GetPlatformName() string {
	return publisher.PlatformQuora
}

func (p *QuoraPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	spaceID := SpaceID(content, creds)
	if spaceID == "" {
		return publisher.Failed("Quora space id is not configured"), nil
	}

	cookie := creds.Metadata.String("session_cookie", "cookie", "m_b")
	if cookie == "" {
		cookie = creds.AccessToken
	}
	formkey := creds.Metadata.String("formkey", "form_key")
	if cookie == "" || formkey == "" {
		return publisher.Failed("Quora session cookie and formkey are required"), nil
	}

	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/graphql/gql_para_POST?q="+queryName),
		Header: map[string]string{
			"Cookie":          "m-b=" + cookie,
			"Quora-Formkey":   formkey,
			"User-Agent":      userAgent(p.opts),
			"Origin":          defaultBaseURL,
			"Referer":         defaultBaseURL + "/",
			"Accept-Language": "en-US,en;q=0.9",
		},
		JSON: map[string]any{
			"queryName": queryName,
			"variables": map[string]any{
				"tribeId": spaceID,
				"title":   content.Title,
				"content": strings.TrimSpace(content.Body),
			},
			"extensions": map[string]any{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("quora create post: %w", err)
	}
	if !resp.OK() {
		return publisher.FailedWith(&publisher.APIError{
			Platform:   publisher.PlatformQuora,
			StatusCode: resp.StatusCode,
			Message:    resp.Snippet(),
		}), nil
	}

	var out gqlResponse
	if err := resp.Decode(&out); err != nil {
		return publisher.FailedWith(err), nil
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return publisher.Failed("Quora rejected the post: %s", strings.Join(msgs, "; ")), nil
	}

	postURL := findString(out.Data, "url")
	if postURL != "" && strings.HasPrefix(postURL, "/") {
		postURL = defaultBaseURL + postURL
	}
	postID := findString(out.Data, "postId", "id")

	if postURL == "" && postID == "" {
		return &publisher.Result{
			Success: false,
			Error:   "Quora response did not include the created post",
			Raw:     out.Data,
		}, nil
	}

	return &publisher.Result{
		Success: true,
		URL:     postURL,
		PostID:  postID,
		Raw: map[string]any{
			"space_id": spaceID,
			"post_id":  postID,
			"url":      postURL,
		},
	}, nil
}

// SpaceID reads the target Space from content metadata, then the integration.
func SpaceID(content publisher.Content, creds publisher.Credentials) string {
	if id := content.Metadata.String("quora_space_id", "space_id"); id != "" {
		return id
	}
	return creds.Metadata.String("space_id", "tribe_id")
}

// findString walks nested objects breadth first and returns the first
// scalar found under one of keys.
func findString(data map[string]any, keys ...string) string {
	queue := []map[string]any{data}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if s := publisher.Metadata(node).String(keys...); s != "" {
			return s
		}
		for _, v := range node {
			if child, ok := v.(map[string]any); ok {
				queue = append(queue, child)
			}
		}
	}
	return ""
}

func userAgent(opts publisher.Options) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return "Mozilla/5.0 (compatible; cadence-publisher/1.0)"
}
