package medium

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const (
	defaultBaseURL = "https://api.medium.com"

	// MaxTags is the number of tags Medium accepts per post.
	MaxTags = 5
)

// MediumPublisher creates a Markdown post on the user's Medium profile.
type MediumPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type PostRequest struct {
	Title         string   `json:"title"`
	ContentFormat string   `json:"contentFormat"`
	Content       string   `json:"content"`
	Tags          []string `json:"tags,omitempty"`
	CanonicalURL  string   `json:"canonicalUrl,omitempty"`
	PublishStatus string   `json:"publishStatus"`
}

type postResponse struct {
	Data struct {
		ID            string `json:"id"`
		URL           string `json:"url"`
		PublishStatus string `json:"publishStatus"`
		AuthorID      string `json:"authorId"`
	} `json:"data"`
}

type meResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

func NewMediumPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &MediumPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *MediumPublisher) GetPlatformName() string {
	return publisher.PlatformMedium
}

func (p *MediumPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	authorID := creds.Metadata.String("author_id", "user_id", "medium_user_id")
	if authorID == "" {
		id, failure, err := p.lookupAuthor(ctx, creds.AccessToken)
		if failure != nil || err != nil {
			return failure, err
		}
		authorID = id
	}

	req := BuildPost(content)
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, fmt.Sprintf("/v1/users/%s/posts", authorID)),
		Header: map[string]string{"Authorization": "Bearer " + creds.AccessToken},
		JSON:   req,
	})
	if err != nil {
		return nil, fmt.Errorf("medium create post: %w", err)
	}
	if !resp.OK() {
		return publisher.FailedWith(apiError(resp)), nil
	}

	var created postResponse
	if err := resp.Decode(&created); err != nil {
		return publisher.FailedWith(err), nil
	}

	return &publisher.Result{
		Success: true,
		URL:     created.Data.URL,
		PostID:  created.Data.ID,
		Raw: map[string]any{
			"id":             created.Data.ID,
			"url":            created.Data.URL,
			"publish_status": created.Data.PublishStatus,
			"author_id":      authorID,
			"tags":           req.Tags,
		},
	}, nil
}

func (p *MediumPublisher) lookupAuthor(ctx context.Context, token string) (string, *publisher.Result, error) {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodGet,
		URL:    p.opts.Endpoint(defaultBaseURL, "/v1/me"),
		Header: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return "", nil, fmt.Errorf("medium me: %w", err)
	}
	if !resp.OK() {
		return "", publisher.FailedWith(apiError(resp)), nil
	}

	var me meResponse
	if err := resp.Decode(&me); err != nil || me.Data.ID == "" {
		return "", publisher.Failed("Medium did not return the author id"), nil
	}
	return me.Data.ID, nil, nil
}

// BuildPost renders the Medium post payload.
func BuildPost(content publisher.Content) PostRequest {
	body := util.PrependImage(strings.TrimSpace(content.Body), content.ImageURL())

	tags := util.MergeTags(content.Tags())
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}

	status := content.Metadata.String("publish_status")
	if status == "" {
		status = "public"
	}

	return PostRequest{
		Title:         content.Title,
		ContentFormat: "markdown",
		Content:       body,
		Tags:          tags,
		CanonicalURL:  content.Metadata.String("canonical_url"),
		PublishStatus: status,
	}
}

func apiError(resp *publisher.Response) *publisher.APIError {
	msg := resp.Snippet()
	var body errorResponse
	if resp.Decode(&body) == nil && len(body.Errors) > 0 {
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			msgs = append(msgs, e.Message)
		}
		msg = strings.Join(msgs, "; ")
	}
	return &publisher.APIError{Platform: publisher.PlatformMedium, StatusCode: resp.StatusCode, Message: msg}
}
