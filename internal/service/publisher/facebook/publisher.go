package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/internal/service/publisher/graph"
)

const siteURL = "https://www.facebook.com/"

// FacebookPublisher posts to the user's connected Facebook page: a photo
// post when the content has an image, a feed post otherwise.
type FacebookPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type postResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func NewFacebookPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &FacebookPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *FacebookPublisher) GetPlatformName() string {
	return publisher.PlatformFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	pageID := creds.Metadata.String("page_id", "facebook_page_id")
	if pageID == "" {
		return publisher.Failed("Facebook page id is missing from the integration"), nil
	}
	token := creds.Metadata.String("page_access_token")
	if token == "" {
		token = creds.AccessToken
	}

	path, form := BuildRequest(pageID, content)
	form.Set("access_token", token)

	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(graph.DefaultBaseURL, path),
		Form:   form,
	})
	if err != nil {
		return nil, fmt.Errorf("facebook %s: %w", path, err)
	}
	if apiErr := graph.APIError(publisher.PlatformFacebook, resp); apiErr != nil {
		return publisher.FailedWith(apiErr), nil
	}

	var created postResponse
	if err := resp.Decode(&created); err != nil {
		return publisher.FailedWith(err), nil
	}

	postID := created.PostID
	if postID == "" {
		postID = created.ID
	}

	result := &publisher.Result{
		Success: true,
		PostID:  postID,
		Raw: map[string]any{
			"id":       created.ID,
			"post_id":  created.PostID,
			"page_id":  pageID,
			"endpoint": path,
		},
	}
	if postID != "" {
		result.URL = siteURL + postID
	}
	return result, nil
}

// BuildRequest chooses between the /photos and /feed edges. A photo post
// can't carry a link attachment, so the link is folded into the caption.
func BuildRequest(pageID string, content publisher.Content) (string, url.Values) {
	message := strings.TrimSpace(content.Body)
	if message == "" {
		message = strings.TrimSpace(content.Title)
	}
	link := content.LinkURL()

	if imageURL := content.ImageURL(); imageURL != "" {
		caption := message
		if link != "" && !strings.Contains(caption, link) {
			caption += "\n\n" + link
		}
		return graph.Path(pageID + "/photos"), url.Values{
			"url":     {imageURL},
			"caption": {caption},
		}
	}

	form := url.Values{"message": {message}}
	if link != "" {
		form.Set("link", link)
	}
	return graph.Path(pageID + "/feed"), form
}
