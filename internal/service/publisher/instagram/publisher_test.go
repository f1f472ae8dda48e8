package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
)

func TestPublish_NoImageMakesNoCalls(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	p := NewInstagramPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(), publisher.Content{Body: "caption"}, publisher.Credentials{
		AccessToken: "ig-token",
		Metadata:    publisher.Metadata{"instagram_business_account_id": "1789"},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "image")
	assert.Zero(t, hits.Load())
}

func TestPublish_ExpiredTokenIsError(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)

	p := NewInstagramPublisher(zap.NewNop(), publisher.Options{BaseURL: "http://127.0.0.1:1", Now: func() time.Time { return now }})
	result, err := p.Publish(context.Background(),
		publisher.Content{Metadata: publisher.Metadata{"image_url": "https://img.example.com/a.png"}},
		publisher.Credentials{AccessToken: "ig-token", ExpiresAt: &expired})

	assert.ErrorIs(t, err, publisher.ErrTokenExpired)
	assert.Nil(t, result)
}

func TestPublish_ContainerThenPublish(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v18.0/1789/media":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "https://img.example.com/a.png", r.PostForm.Get("image_url"))
			assert.Equal(t, "Launch day\n\n#golang #release", r.PostForm.Get("caption"))
			_, _ = w.Write([]byte(`{"id":"container-1"}`))
		case "/v18.0/1789/media_publish":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "container-1", r.PostForm.Get("creation_id"))
			_, _ = w.Write([]byte(`{"id":"media-9"}`))
		case "/v18.0/media-9":
			assert.Equal(t, "permalink", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"permalink":"https://www.instagram.com/p/XYZ/"}`))
		}
	}))
	defer server.Close()

	content := publisher.Content{
		Body: "Launch day",
		Metadata: publisher.Metadata{
			"image_url": "https://img.example.com/a.png",
			"tags":      []any{"golang", "release"},
		},
	}

	p := NewInstagramPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(), content, publisher.Credentials{
		AccessToken: "ig-token",
		Metadata:    publisher.Metadata{"instagram_business_account_id": "1789"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "media-9", result.PostID)
	assert.Equal(t, "https://www.instagram.com/p/XYZ/", result.URL)
	assert.Equal(t, []string{
		"POST /v18.0/1789/media",
		"POST /v18.0/1789/media_publish",
		"GET /v18.0/media-9",
	}, paths)
}

func TestPublish_GraphErrorIsHandledFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid image","type":"OAuthException","code":36003}}`))
	}))
	defer server.Close()

	p := NewInstagramPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(),
		publisher.Content{Metadata: publisher.Metadata{"image_url": "https://img.example.com/a.png"}},
		publisher.Credentials{AccessToken: "ig-token", Metadata: publisher.Metadata{"ig_user_id": "1"}})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid image (code 36003)")
}

func TestCaption_KeepsHashtagsWithinLimit(t *testing.T) {
	content := publisher.Content{
		Body:     strings.Repeat("word ", 600),
		Metadata: publisher.Metadata{"tags": "go,cloud"},
	}
	caption := Caption(content)
	assert.LessOrEqual(t, len([]rune(caption)), MaxCaptionLength)
	assert.True(t, strings.HasSuffix(caption, "\n\n#go #cloud"))
}
