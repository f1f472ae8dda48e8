package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/internal/service/publisher/graph"
	"github.com/ifuryst/cadence/pkg/util"
)

// MaxCaptionLength is the Instagram caption limit.
const MaxCaptionLength = 2200

// InstagramPublisher publishes an image post through the Instagram Graph API
// of the business account linked to the user's Facebook page.
type InstagramPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type idResponse struct {
	ID string `json:"id"`
}

type permalinkResponse struct {
	Permalink string `json:"permalink"`
}

func NewInstagramPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &InstagramPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *InstagramPublisher) GetPlatformName() string {
	return publisher.PlatformInstagram
}

func (p *InstagramPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	imageURL := content.ImageURL()
	if imageURL == "" {
		return publisher.Failed("Instagram posts require an image URL"), nil
	}

	if creds.Expired(p.opts.Clock()) {
		return nil, fmt.Errorf("instagram token expired at %s, reconnect the account: %w",
			creds.ExpiresAt.UTC().Format("2006-01-02 15:04:05"), publisher.ErrTokenExpired)
	}

	accountID := BusinessAccountID(creds.Metadata)
	if accountID == "" {
		return publisher.Failed("Instagram business account id is missing from the integration"), nil
	}

	caption := Caption(content)

	container, failure, err := p.post(ctx, graph.Path(accountID+"/media"), url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {creds.AccessToken},
	})
	if failure != nil || err != nil {
		return failure, err
	}

	published, failure, err := p.post(ctx, graph.Path(accountID+"/media_publish"), url.Values{
		"creation_id":  {container.ID},
		"access_token": {creds.AccessToken},
	})
	if failure != nil || err != nil {
		return failure, err
	}

	permalink := p.permalink(ctx, published.ID, creds.AccessToken)

	return &publisher.Result{
		Success: true,
		URL:     permalink,
		PostID:  published.ID,
		Raw: map[string]any{
			"container_id":   container.ID,
			"media_id":       published.ID,
			"permalink":      permalink,
			"caption_length": len([]rune(caption)),
		},
	}, nil
}

func (p *InstagramPublisher) post(ctx context.Context, path string, form url.Values) (*idResponse, *publisher.Result, error) {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(graph.DefaultBaseURL, path),
		Form:   form,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("instagram %s: %w", path, err)
	}
	if apiErr := graph.APIError(publisher.PlatformInstagram, resp); apiErr != nil {
		return nil, publisher.FailedWith(apiErr), nil
	}

	var out idResponse
	if err := resp.Decode(&out); err != nil || out.ID == "" {
		return nil, publisher.Failed("Instagram %s returned no id", path), nil
	}
	return &out, nil, nil
}

// permalink fetches the public URL of the media. It is best effort.
func (p *InstagramPublisher) permalink(ctx context.Context, mediaID, token string) string {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodGet,
		URL:    p.opts.Endpoint(graph.DefaultBaseURL, graph.Path(mediaID)),
		Query: url.Values{
			"fields":       {"permalink"},
			"access_token": {token},
		},
	})
	if err != nil || !resp.OK() {
		p.logger.Debug("Instagram permalink lookup failed", zap.String("media_id", mediaID), zap.Error(err))
		return ""
	}

	var out permalinkResponse
	if resp.Decode(&out) != nil {
		return ""
	}
	return out.Permalink
}

// BusinessAccountID reads the Instagram business account derived from the
// connected Facebook page.
func BusinessAccountID(meta publisher.Metadata) string {
	return meta.String("instagram_business_account_id", "instagram_account_id", "ig_user_id")
}

// Caption is the body followed by hashtags for the content tags, limited to
// MaxCaptionLength with the hashtags kept whole when they fit.
func Caption(content publisher.Content) string {
	text := strings.TrimSpace(content.Body)
	if text == "" {
		text = strings.TrimSpace(content.Title)
	}

	tags := util.Hashtags(content.Tags())
	if tags == "" {
		return util.TruncateAtWord(text, MaxCaptionLength)
	}

	suffix := "\n\n" + tags
	room := MaxCaptionLength - len([]rune(suffix))
	if room <= 0 {
		return util.TruncateAtWord(text, MaxCaptionLength)
	}
	return util.TruncateAtWord(text, room) + suffix
}
