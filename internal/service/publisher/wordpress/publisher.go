package wordpress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const defaultBaseURL = "https://public-api.wordpress.com/rest/v1.1"

// WordPressPublisher publishes through the WordPress.com REST API.
type WordPressPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type PostRequest struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Tags          string `json:"tags,omitempty"`
	Slug          string `json:"slug,omitempty"`
	FeaturedImage string `json:"featured_image,omitempty"`
}

type postResponse struct {
	ID  int64  `json:"ID"`
	URL string `json:"URL"`
}

type mediaResponse struct {
	Media []struct {
		ID  int64  `json:"ID"`
		URL string `json:"URL"`
	} `json:"media"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewWordPressPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &WordPressPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *WordPressPublisher) GetPlatformName() string {
	return publisher.PlatformWordPress
}

func (p *WordPressPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	site := SiteID(content, creds)
	if site == "" {
		return publisher.Failed("WordPress site id is not configured"), nil
	}

	post := BuildPost(content)
	if imageURL := content.ImageURL(); imageURL != "" {
		if mediaID := p.uploadMedia(ctx, site, imageURL, creds.AccessToken); mediaID != "" {
			post.FeaturedImage = mediaID
		}
	}

	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/sites/"+url.PathEscape(site)+"/posts/new"),
		Header: map[string]string{"Authorization": "Bearer " + creds.AccessToken},
		JSON:   post,
	})
	if err != nil {
		return nil, fmt.Errorf("wordpress create post: %w", err)
	}
	if !resp.OK() {
		return publisher.FailedWith(apiError(resp)), nil
	}

	var created postResponse
	if err := resp.Decode(&created); err != nil {
		return publisher.FailedWith(err), nil
	}

	postID := strconv.FormatInt(created.ID, 10)
	return &publisher.Result{
		Success: true,
		URL:     created.URL,
		PostID:  postID,
		Raw: map[string]any{
			"id":             postID,
			"url":            created.URL,
			"site":           site,
			"featured_image": post.FeaturedImage,
		},
	}, nil
}

// uploadMedia sideloads the image into the media library and returns its id.
// Failures are logged and the post goes out without a featured image.
func (p *WordPressPublisher) uploadMedia(ctx context.Context, site, imageURL, token string) string {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/sites/"+url.PathEscape(site)+"/media/new"),
		Header: map[string]string{"Authorization": "Bearer " + token},
		Form:   url.Values{"media_urls[]": {imageURL}},
	})
	if err != nil || !resp.OK() {
		fields := []zap.Field{zap.String("site", site), zap.Error(err)}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
		}
		p.logger.Warn("WordPress media upload failed, publishing without featured image", fields...)
		return ""
	}

	var media mediaResponse
	if err := resp.Decode(&media); err != nil || len(media.Media) == 0 {
		p.logger.Warn("WordPress media upload returned no media", zap.String("site", site))
		return ""
	}
	return strconv.FormatInt(media.Media[0].ID, 10)
}

// BuildPost renders the post payload without the featured image.
func BuildPost(content publisher.Content) PostRequest {
	return PostRequest{
		Title:   content.Title,
		Content: strings.TrimSpace(content.Body),
		Status:  "publish",
		Tags:    strings.Join(util.MergeTags(content.Tags(), content.Keywords), ","),
		Slug:    util.GenerateSlug(content.Title),
	}
}

// SiteID reads the target site from content metadata, then the integration.
func SiteID(content publisher.Content, creds publisher.Credentials) string {
	if site := content.Metadata.String("wordpress_site_id", "site_id"); site != "" {
		return site
	}
	return creds.Metadata.String("site_id", "blog_id", "site")
}

func apiError(resp *publisher.Response) *publisher.APIError {
	msg := resp.Snippet()
	var body errorResponse
	if resp.Decode(&body) == nil && (body.Message != "" || body.Error != "") {
		msg = strings.TrimSpace(body.Error + ": " + body.Message)
		msg = strings.Trim(msg, ": ")
	}
	return &publisher.APIError{Platform: publisher.PlatformWordPress, StatusCode: resp.StatusCode, Message: msg}
}
