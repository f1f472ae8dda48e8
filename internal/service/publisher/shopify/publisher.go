package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const (
	apiVersion = "2024-01"

	// DefaultBlogHandle is used for the article URL when the blog handle
	// can't be looked up. It is the handle of Shopify's default blog.
	DefaultBlogHandle = "news"
)

// ShopifyPublisher creates a blog article in the user's Shopify store.
type ShopifyPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type Blog struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

type blogsResponse struct {
	Blogs []Blog `json:"blogs"`
}

type blogResponse struct {
	Blog Blog `json:"blog"`
}

type Article struct {
	Title     string         `json:"title"`
	BodyHTML  string         `json:"body_html"`
	Tags      string         `json:"tags,omitempty"`
	Published bool           `json:"published"`
	Image     map[string]any `json:"image,omitempty"`
}

type articleResponse struct {
	Article struct {
		ID     int64  `json:"id"`
		Handle string `json:"handle"`
		BlogID int64  `json:"blog_id"`
	} `json:"article"`
}

func NewShopifyPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &ShopifyPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *ShopifyPublisher) GetPlatformName() string {
	return publisher.PlatformShopify
}

func (p *ShopifyPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	shop := ShopDomain(creds.Metadata)
	if shop == "" {
		return publisher.Failed("Shopify shop domain is missing from the integration"), nil
	}
	api := &adminAPI{p: p, shop: shop, token: creds.AccessToken}

	blogID := content.Metadata.String("shopify_blog_id", "blog_id")
	if blogID == "" {
		blogID = creds.Metadata.String("blog_id")
	}
	if blogID == "" {
		id, failure, err := api.firstBlog(ctx)
		if failure != nil || err != nil {
			return failure, err
		}
		blogID = id
	}

	article := BuildArticle(content)
	resp, err := api.do(ctx, http.MethodPost, "/blogs/"+blogID+"/articles.json", map[string]any{"article": article})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return publisher.FailedWith(apiError(resp)), nil
	}

	var created articleResponse
	if err := resp.Decode(&created); err != nil {
		return publisher.FailedWith(err), nil
	}

	handle := api.blogHandle(ctx, blogID)
	articleURL := fmt.Sprintf("https://%s/blogs/%s/%s", shop, handle, created.Article.Handle)
	articleID := strconv.FormatInt(created.Article.ID, 10)

	return &publisher.Result{
		Success: true,
		URL:     articleURL,
		PostID:  articleID,
		Raw: map[string]any{
			"article_id":     articleID,
			"article_handle": created.Article.Handle,
			"blog_id":        blogID,
			"blog_handle":    handle,
			"shop":           shop,
		},
	}, nil
}

// BuildArticle renders the article payload.
func BuildArticle(content publisher.Content) Article {
	article := Article{
		Title:     content.Title,
		BodyHTML:  util.ParagraphsToHTML(content.Body),
		Tags:      strings.Join(util.MergeTags(content.Tags(), content.Keywords), ", "),
		Published: true,
	}
	if imageURL := content.ImageURL(); imageURL != "" {
		article.Image = map[string]any{"src": imageURL, "alt": content.Title}
	}
	return article
}

// ShopDomain returns the bare shop host from the integration.
func ShopDomain(meta publisher.Metadata) string {
	shop := meta.String("shop_domain", "shop", "shop_url")
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.TrimRight(shop, "/")
}

type adminAPI struct {
	p     *ShopifyPublisher
	shop  string
	token string
}

func (a *adminAPI) do(ctx context.Context, method, path string, body any) (*publisher.Response, error) {
	req := publisher.Request{
		Method: method,
		URL:    a.p.opts.Endpoint("https://"+a.shop, "/admin/api/"+apiVersion+path),
		Header: map[string]string{"X-Shopify-Access-Token": a.token},
	}
	if body != nil {
		req.JSON = body
	}

	resp, err := publisher.Do(ctx, a.p.client, req)
	if err != nil {
		return nil, fmt.Errorf("shopify %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (a *adminAPI) firstBlog(ctx context.Context) (string, *publisher.Result, error) {
	resp, err := a.do(ctx, http.MethodGet, "/blogs.json", nil)
	if err != nil {
		return "", nil, err
	}
	if !resp.OK() {
		return "", publisher.FailedWith(apiError(resp)), nil
	}

	var blogs blogsResponse
	if err := resp.Decode(&blogs); err != nil {
		return "", publisher.FailedWith(err), nil
	}
	if len(blogs.Blogs) == 0 {
		return "", publisher.Failed("Shopify store %s has no blogs", a.shop), nil
	}
	return strconv.FormatInt(blogs.Blogs[0].ID, 10), nil, nil
}

// blogHandle looks up the blog handle, falling back to DefaultBlogHandle.
func (a *adminAPI) blogHandle(ctx context.Context, blogID string) string {
	resp, err := a.do(ctx, http.MethodGet, "/blogs/"+blogID+".json", nil)
	if err != nil || !resp.OK() {
		a.p.logger.Debug("Shopify blog handle lookup failed", zap.String("blog_id", blogID), zap.Error(err))
		return DefaultBlogHandle
	}

	var blog blogResponse
	if resp.Decode(&blog) != nil || blog.Blog.Handle == "" {
		return DefaultBlogHandle
	}
	return blog.Blog.Handle
}

func apiError(resp *publisher.Response) *publisher.APIError {
	msg := resp.Snippet()
	var body struct {
		Errors any `json:"errors"`
	}
	if resp.Decode(&body) == nil && body.Errors != nil {
		msg = fmt.Sprint(body.Errors)
	}
	return &publisher.APIError{Platform: publisher.PlatformShopify, StatusCode: resp.StatusCode, Message: msg}
}
