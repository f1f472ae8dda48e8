package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/util"
)

const defaultBaseURL = "https://api.github.com"

const repositoryQuery = `query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    id
    discussionCategories(first: 25) {
      nodes { id name }
    }
  }
}`

const createDiscussionMutation = `mutation($repositoryId: ID!, $categoryId: ID!, $title: String!, $body: String!) {
  createDiscussion(input: {repositoryId: $repositoryId, categoryId: $categoryId, title: $title, body: $body}) {
    discussion { id number url }
  }
}`

// GitHubPublisher posts content as a GitHub Discussion in the repository
// configured on the integration.
type GitHubPublisher struct {
	logger *zap.Logger
	opts   publisher.Options
	client *http.Client
}

type DiscussionCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type repositoryResponse struct {
	Data struct {
		Repository *struct {
			ID                   string `json:"id"`
			DiscussionCategories struct {
				Nodes []DiscussionCategory `json:"nodes"`
			} `json:"discussionCategories"`
		} `json:"repository"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type Discussion struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	URL    string `json:"url"`
}

type createDiscussionResponse struct {
	Data struct {
		CreateDiscussion *struct {
			Discussion Discussion `json:"discussion"`
		} `json:"createDiscussion"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func NewGitHubPublisher(logger *zap.Logger, opts publisher.Options) publisher.Publisher {
	return &GitHubPublisher{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient(),
	}
}

func (p *GitHubPublisher) GetPlatformName() string {
	return publisher.PlatformGitHub
}

func (p *GitHubPublisher) Publish(ctx context.Context, content publisher.Content, creds publisher.Credentials) (*publisher.Result, error) {
	owner, repo := repository(creds.Metadata)
	if owner == "" || repo == "" {
		return publisher.Failed("GitHub repository (owner/repo) is not configured on the integration"), nil
	}

	var repoResp repositoryResponse
	if failure, err := p.graphQL(ctx, creds.AccessToken, repositoryQuery, map[string]any{
		"owner": owner,
		"name":  repo,
	}, &repoResp); failure != nil || err != nil {
		return failure, err
	}
	if msg := joinErrors(repoResp.Errors); msg != "" {
		return publisher.Failed("GitHub GraphQL error: %s", msg), nil
	}
	if repoResp.Data.Repository == nil {
		return publisher.Failed("GitHub repository %s/%s not found", owner, repo), nil
	}

	categories := repoResp.Data.Repository.DiscussionCategories.Nodes
	if len(categories) == 0 {
		return publisher.Failed("GitHub Discussions is not enabled for %s/%s", owner, repo), nil
	}
	category := SelectCategory(categories)

	body := util.StripSchemaMarkup(content.Body)
	if body == "" {
		body = content.Title
	}

	var created createDiscussionResponse
	if failure, err := p.graphQL(ctx, creds.AccessToken, createDiscussionMutation, map[string]any{
		"repositoryId": repoResp.Data.Repository.ID,
		"categoryId":   category.ID,
		"title":        content.Title,
		"body":         body,
	}, &created); failure != nil || err != nil {
		return failure, err
	}
	if msg := joinErrors(created.Errors); msg != "" {
		return publisher.Failed("GitHub GraphQL error: %s", msg), nil
	}
	if created.Data.CreateDiscussion == nil {
		return publisher.Failed("GitHub did not return the created discussion"), nil
	}

	discussion := created.Data.CreateDiscussion.Discussion
	p.logger.Debug("GitHub discussion created",
		zap.String("repository", owner+"/"+repo),
		zap.String("category", category.Name),
		zap.Int("number", discussion.Number))

	return &publisher.Result{
		Success: true,
		URL:     discussion.URL,
		PostID:  discussion.ID,
		Raw: map[string]any{
			"repository": owner + "/" + repo,
			"category":   category.Name,
			"number":     discussion.Number,
			"url":        discussion.URL,
			"id":         discussion.ID,
		},
	}, nil
}

// SelectCategory prefers the category named "general" (any case) and
// otherwise takes the first one. categories must not be empty.
func SelectCategory(categories []DiscussionCategory) DiscussionCategory {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c.Name), "general") {
			return c
		}
	}
	return categories[0]
}

// graphQL posts one GraphQL document. HTTP level rejections come back as a
// failed Result, transport failures as an error.
func (p *GitHubPublisher) graphQL(ctx context.Context, token, query string, variables map[string]any, out any) (*publisher.Result, error) {
	resp, err := publisher.Do(ctx, p.client, publisher.Request{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint(defaultBaseURL, "/graphql"),
		Header: map[string]string{
			"Authorization": "Bearer " + token,
			"User-Agent":    userAgent(p.opts),
		},
		JSON: graphQLRequest{Query: query, Variables: variables},
	})
	if err != nil {
		return nil, fmt.Errorf("github graphql request: %w", err)
	}

	if !resp.OK() {
		var body struct {
			Message string `json:"message"`
		}
		msg := resp.Snippet()
		if resp.Decode(&body) == nil && body.Message != "" {
			msg = body.Message
		}
		return publisher.FailedWith(&publisher.APIError{
			Platform:   publisher.PlatformGitHub,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}), nil
	}

	if err := resp.Decode(out); err != nil {
		return publisher.FailedWith(err), nil
	}
	return nil, nil
}

func repository(meta publisher.Metadata) (string, string) {
	owner := meta.String("owner", "repo_owner")
	repo := meta.String("repo", "repo_name")
	if full := meta.String("repository", "full_name"); full != "" && strings.Contains(full, "/") {
		parts := strings.SplitN(full, "/", 2)
		if owner == "" {
			owner = parts[0]
		}
		if repo == "" || strings.Contains(repo, "/") {
			repo = parts[1]
		}
	}
	return owner, repo
}

func joinErrors(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func userAgent(opts publisher.Options) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return "cadence-publisher"
}
