package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
)

func TestBuildRequest(t *testing.T) {
	t.Run("photo post folds link into caption", func(t *testing.T) {
		content := publisher.Content{
			Body: "New article",
			Metadata: publisher.Metadata{
				"image_url": "https://img.example.com/a.png",
				"link_url":  "https://example.com/a",
			},
		}
		path, form := BuildRequest("123", content)
		assert.Equal(t, "/v18.0/123/photos", path)
		assert.Equal(t, "https://img.example.com/a.png", form.Get("url"))
		assert.Equal(t, "New article\n\nhttps://example.com/a", form.Get("caption"))
		assert.Empty(t, form.Get("link"))
	})

	t.Run("feed post carries link natively", func(t *testing.T) {
		content := publisher.Content{
			Body:     "New article",
			Metadata: publisher.Metadata{"link_url": "https://example.com/a"},
		}
		path, form := BuildRequest("123", content)
		assert.Equal(t, "/v18.0/123/feed", path)
		assert.Equal(t, "New article", form.Get("message"))
		assert.Equal(t, "https://example.com/a", form.Get("link"))
	})
}

func TestPublish_UsesPageToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/123/feed", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "page-token", r.PostForm.Get("access_token"))
		_, _ = w.Write([]byte(`{"id":"123_456"}`))
	}))
	defer server.Close()

	p := NewFacebookPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(), publisher.Content{Body: "Hello"}, publisher.Credentials{
		AccessToken: "user-token",
		Metadata:    publisher.Metadata{"page_id": "123", "page_access_token": "page-token"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "123_456", result.PostID)
	assert.Equal(t, "https://www.facebook.com/123_456", result.URL)
}

func TestPublish_PhotoPrefersPostID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/123/photos", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"photo-1","post_id":"123_789"}`))
	}))
	defer server.Close()

	p := NewFacebookPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(),
		publisher.Content{Body: "Hi", Metadata: publisher.Metadata{"image_url": "https://img.example.com/a.png"}},
		publisher.Credentials{AccessToken: "t", Metadata: publisher.Metadata{"page_id": "123"}})
	require.NoError(t, err)

	assert.Equal(t, "123_789", result.PostID)
	assert.Equal(t, "https://www.facebook.com/123_789", result.URL)
}

func TestPublish_MissingPageID(t *testing.T) {
	p := NewFacebookPublisher(zap.NewNop(), publisher.Options{BaseURL: "http://127.0.0.1:1"})
	result, err := p.Publish(context.Background(), publisher.Content{Body: "Hi"}, publisher.Credentials{AccessToken: "t"})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestPublish_ErrorBodyOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"Session has expired","code":190}}`))
	}))
	defer server.Close()

	p := NewFacebookPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(), publisher.Content{Body: "Hi"},
		publisher.Credentials{AccessToken: "t", Metadata: publisher.Metadata{"page_id": "123"}})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Session has expired")
}
