package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const (
	defaultBaseURL = "https://api.linkedin.com"
	feedURL        = "https://www.linkedin.com/feed/update/"

	// MaxTextLength is the UGC share commentary limit.
	MaxTextLength = 3000

	uploadMechanismKey = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

// LinkedInPublisher shares content on the member's feed through the UGC
// Posts API, attaching the content image when it can be uploaded.
type LinkedInPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

func NewLinkedInPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &LinkedInPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *LinkedInPublisher) GetPlatformName() string {
	return publisher.PlatformLinkedIn
}

func (p *LinkedInPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	if creds.Expired(p.opts.Clock()) {
		return nil, fmt.Errorf("linkedin token expired at %s, reconnect the account: %w",
			creds.ExpiresAt.UTC().Format("2006-01-02 15:04:05"), publisher.ErrTokenExpired)
	}

	author := PersonURN(creds.Metadata)
	if author == "" {
		return publisher.Failed("LinkedIn person URN is missing from the integration"), nil
	}

	text := util.TruncateAtWord(ComposeText(content), MaxTextLength)

	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}

	var asset string
	if imageURL := content.ImageURL(); imageURL != "" {
		var err error
		asset, err = p.uploadImage(ctx, creds.AccessToken, author, imageURL)
		if err != nil {
			p.logger.Warn("LinkedIn image upload failed, posting text only",
				append(content.LogFields(), zap.String("image_url", imageURL), zap.Error(err))...)
			asset = ""
		}
	}
	if asset != "" {
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = []map[string]any{{
			"status": "READY",
			"media":  asset,
			"title":  map[string]any{"text": content.Title},
		}}
	}

	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/v2/ugcPosts"),
		Header: p.headers(creds.AccessToken),
		JSON: map[string]any{
			"author":         author,
			"lifecycleState": "PUBLISHED",
			"specificContent": map[string]any{
				"com.linkedin.ugc.ShareContent": shareContent,
			},
			"visibility": map[string]any{
				"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("linkedin ugc post: %w", err)
	}
	if !resp.OK() {
		return publisher.FailedWith(&publisher.APIError{
			Platform:   publisher.PlatformLinkedIn,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}), nil
	}

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var created ugcPostResponse
		if resp.Decode(&created) == nil {
			postID = created.ID
		}
	}

	result := &publisher.Result{
		Success: true,
		PostID:  postID,
		Raw: map[string]any{
			"id":          postID,
			"author":      author,
			"has_image":   asset != "",
			"text_length": len([]rune(text)),
		},
	}
	if postID != "" {
		result.URL = feedURL + postID
	}
	return result, nil
}

// uploadImage runs register upload, binary upload and returns the asset URN.
func (p *LinkedInPublisher) uploadImage(ctx context.Context, token, owner, imageURL string) (string, error) {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/v2/assets"),
		Query:  map[string][]string{"action": {"registerUpload"}},
		Header: p.headers(token),
		JSON: map[string]any{
			"registerUploadRequest": map[string]any{
				"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
				"owner":   owner,
				"serviceRelationships": []map[string]any{{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				}},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("register upload returned %d: %s", resp.StatusCode, resp.Snippet())
	}

	var registered registerUploadResponse
	if err := resp.Decode(&registered); err != nil {
		return "", err
	}
	mechanism, ok := registered.Value.UploadMechanism[uploadMechanismKey]
	if !ok || mechanism.UploadURL == "" || registered.Value.Asset == "" {
		return "", errors.New("register upload response has no upload url")
	}

	image, err := publisher.Do(ctx, p.client, publisher.Request{Method: http.MethodGet, URL: imageURL})
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if !image.OK() || len(image.Body) == 0 {
		return "", fmt.Errorf("download image returned %d", image.StatusCode)
	}

	contentType := image.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uploadHeaders := map[string]string{"Authorization": "Bearer " + token}
	for k, v := range mechanism.Headers {
		uploadHeaders[k] = v
	}

	uploaded, err := publisher.Do(ctx, p.client, publisher.Request{
		Method:      http.MethodPut,
		URL:         mechanism.UploadURL,
		Header:      uploadHeaders,
		Body:        image.Body,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if !uploaded.OK() {
		return "", fmt.Errorf("upload image returned %d: %s", uploaded.StatusCode, uploaded.Snippet())
	}

	return registered.Value.Asset, nil
}

func (p *LinkedInPublisher) headers(token string) map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Restli-Protocol-Version": "2.0.0",
	}
}

// PersonURN returns the member URN stored on the integration.
func PersonURN(meta publisher.Metadata) string {
	if urn := meta.String("person_urn", "author_urn", "urn"); urn != "" {
		return urn
	}
	if id := meta.String("person_id", "sub", "id"); id != "" {
		return "urn:li:person:" + id
	}
	return ""
}

// ComposeText builds the share commentary from title, body and link.
func ComposeText(content publisher.Content) string {
	body := strings.TrimSpace(content.Body)
	title := strings.TrimSpace(content.Title)

	text := body
	if title != "" && !strings.HasPrefix(body, title) {
		if body == "" {
			text = title
		} else {
			text = title + "\n\n" + body
		}
	}
	if link := content.LinkURL(); link != "" && !strings.Contains(text, link) {
		text += "\n\n" + link
	}
	return text
}

func errorMessage(resp *publisher.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	if resp.Decode(&body) == nil && body.Message != "" {
		return body.Message
	}
	return resp.Snippet()
}
