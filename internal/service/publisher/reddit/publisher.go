package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	siteURL        = "https://www.reddit.com"
)

// RedditPublisher submits content as a self (text) post.
type RedditPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type submitResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			URL       string `json:"url"`
			Permalink string `json:"permalink"`
		} `json:"data"`
	} `json:"json"`
}

func NewRedditPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &RedditPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *RedditPublisher) GetPlatformName() string {
	return publisher.PlatformReddit
}

func (p *RedditPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	subreddit := Subreddit(content, creds)
	if subreddit == "" {
		return publisher.Failed("no subreddit configured for Reddit post"), nil
	}

	form := url.Values{
		"sr":       {subreddit},
		"kind":     {"self"},
		"title":    {content.Title},
		"text":     {util.PrependImage(content.Body, content.ImageURL())},
		"api_type": {"json"},
	}

	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/api/submit"),
		Header: map[string]string{
			"Authorization": "Bearer " + creds.AccessToken,
			"User-Agent":    userAgent(p.opts, creds),
		},
		Form: form,
	})
	if err != nil {
		return nil, fmt.Errorf("reddit submit: %w", err)
	}

	if !resp.OK() {
		return publisher.FailedWith(&publisher.APIError{
			Platform:   publisher.PlatformReddit,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}), nil
	}

	var submitted submitResponse
	if err := resp.Decode(&submitted); err != nil {
		return publisher.FailedWith(err), nil
	}
	if msg := JoinErrors(submitted.JSON.Errors); msg != "" {
		return &publisher.Result{
			Success: false,
			Error:   "Reddit rejected the post: " + msg,
			Raw:     publisher.DecodeRaw(resp),
		}, nil
	}

	data := submitted.JSON.Data
	postURL := Permalink(data.Permalink, subreddit, data.ID)
	p.logger.Debug("Reddit post submitted",
		zap.String("subreddit", subreddit),
		zap.String("post_id", data.ID))

	return &publisher.Result{
		Success: true,
		URL:     postURL,
		PostID:  data.ID,
		Raw: map[string]any{
			"subreddit": subreddit,
			"id":        data.ID,
			"name":      data.Name,
			"url":       data.URL,
			"permalink": postURL,
		},
	}, nil
}

// Subreddit picks the target from content metadata, then the integration
// default, then the user's own profile subreddit.
func Subreddit(content publisher.Content, creds publisher.Credentials) string {
	sr := content.Metadata.String("subreddit", "subreddit_name")
	if sr == "" {
		sr = creds.Metadata.String("default_subreddit", "subreddit")
	}
	if sr == "" {
		if username := creds.Metadata.String("username", "name"); username != "" {
			sr = "u_" + username
		}
	}
	sr = strings.TrimPrefix(sr, "/")
	sr = strings.TrimPrefix(sr, "r/")
	return sr
}

// Permalink makes an absolute post URL from the API permalink, or builds
// one from the post id when the API omitted it.
func Permalink(permalink, subreddit, id string) string {
	if permalink != "" {
		if strings.HasPrefix(permalink, "http") {
			return permalink
		}
		return siteURL + "/" + strings.TrimPrefix(permalink, "/")
	}
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s/r/%s/comments/%s", siteURL, subreddit, strings.TrimPrefix(id, "t3_"))
}

// JoinErrors flattens Reddit's [[code, message, field], ...] error list.
func JoinErrors(errs [][]any) string {
	var msgs []string
	for _, e := range errs {
		var parts []string
		for _, part := range e {
			if s, ok := part.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if len(parts) > 1 {
			msgs = append(msgs, parts[0]+": "+parts[1])
		} else {
			msgs = append(msgs, parts[0])
		}
	}
	return strings.Join(msgs, "; ")
}

func errorMessage(resp *publisher.Response) string {
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if resp.Decode(&body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != nil {
			return fmt.Sprint(body.Error)
		}
	}
	return resp.Snippet()
}

func userAgent(opts publisher.Options, creds publisher.Credentials) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	if username := creds.Metadata.String("username"); username != "" {
		return "cadence-publisher/1.0 by " + username
	}
	return "cadence-publisher/1.0"
}
