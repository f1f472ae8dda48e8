package linkedin

import (
	"context"
	"encoding/json"
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

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func creds(expiresAt *time.Time) publisher.Credentials {
	return publisher.Credentials{
		AccessToken: "li-token",
		ExpiresAt:   expiresAt,
		Metadata:    publisher.Metadata{"person_id": "abc"},
	}
}

func TestPublish_ExpiredTokenIsError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	expired := fixedNow.Add(-time.Hour)
	p := NewLinkedInPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL, Now: func() time.Time { return fixedNow }})

	result, err := p.Publish(context.Background(), publisher.Content{Title: "T", Body: "B"}, creds(&expired))
	require.Error(t, err)
	assert.ErrorIs(t, err, publisher.ErrTokenExpired)
	assert.Nil(t, result)
	assert.Zero(t, hits.Load())
}

func TestPublish_TextPostTruncated(t *testing.T) {
	var posted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ugcPosts", r.URL.Path)
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))

		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	valid := fixedNow.Add(time.Hour)
	p := NewLinkedInPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL, Now: func() time.Time { return fixedNow }})

	body := strings.Repeat("word ", 620)
	result, err := p.Publish(context.Background(), publisher.Content{Body: body}, creds(&valid))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "urn:li:share:42", result.PostID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:42", result.URL)

	assert.Equal(t, "urn:li:person:abc", posted["author"])
	share := posted["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	text := share["shareCommentary"].(map[string]any)["text"].(string)
	assert.LessOrEqual(t, len([]rune(text)), MaxTextLength)
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Equal(t, "NONE", share["shareMediaCategory"])
}

func TestPublish_ImageUploadFailureFallsBackToText(t *testing.T) {
	var posted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/assets":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"upstream"}`))
		case "/v2/ugcPosts":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"urn:li:share:7"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := NewLinkedInPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL, Now: func() time.Time { return fixedNow }})
	content := publisher.Content{
		Title:    "T",
		Body:     "B",
		Metadata: publisher.Metadata{"image_url": server.URL + "/image.png"},
	}

	result, err := p.Publish(context.Background(), content, creds(nil))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "urn:li:share:7", result.PostID)
	share := posted["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	assert.Equal(t, "NONE", share["shareMediaCategory"])
	assert.Nil(t, share["media"])
}

func TestPublish_ImageUploaded(t *testing.T) {
	var uploaded atomic.Bool
	var posted map[string]any
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/assets":
			assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": map[string]any{
					"asset": "urn:li:digitalmediaAsset:1",
					"uploadMechanism": map[string]any{
						uploadMechanismKey: map[string]any{"uploadUrl": serverURL + "/upload"},
					},
				},
			})
		case "/image.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/upload":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			uploaded.Store(true)
			w.WriteHeader(http.StatusCreated)
		case "/v2/ugcPosts":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.Header().Set("X-RestLi-Id", "urn:li:share:9")
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()
	serverURL = server.URL

	p := NewLinkedInPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL, Now: func() time.Time { return fixedNow }})
	content := publisher.Content{
		Title:    "T",
		Body:     "B",
		Metadata: publisher.Metadata{"image_url": server.URL + "/image.png"},
	}

	result, err := p.Publish(context.Background(), content, creds(nil))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, uploaded.Load())
	share := posted["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	assert.Equal(t, "IMAGE", share["shareMediaCategory"])
}

func TestPublish_APIErrorIsHandledFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Content is a duplicate"}`))
	}))
	defer server.Close()

	p := NewLinkedInPublisher(zap.NewNop(), publisher.Options{BaseURL: server.URL})
	result, err := p.Publish(context.Background(), publisher.Content{Body: "B"}, creds(nil))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Content is a duplicate")
}

func TestComposeText(t *testing.T) {
	content := publisher.Content{
		Title:    "Title",
		Body:     "Body",
		Metadata: publisher.Metadata{"link_url": "https://example.com/post"},
	}
	assert.Equal(t, "Title\n\nBody\n\nhttps://example.com/post", ComposeText(content))

	content.Body = "Title is already the opening line"
	content.Title = "Title"
	content.Metadata = nil
	assert.Equal(t, "Title is already the opening line", ComposeText(content))
}

func TestPersonURN(t *testing.T) {
	assert.Equal(t, "urn:li:person:x", PersonURN(publisher.Metadata{"person_urn": "urn:li:person:x"}))
	assert.Equal(t, "urn:li:person:y", PersonURN(publisher.Metadata{"sub": "y"}))
	assert.Equal(t, "", PersonURN(nil))
}
