package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-renovator-bot/internal/credential"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		Credentials: credential.NewStatic("test-key"),
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
	})
}

func textResponse(text string) string {
	encoded, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"parts":[{"text":` + string(encoded) + `}]}}]}`
}

func imageResponse(data string) string {
	return `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + data + `","mimeType":"image/png"}}]}}]}`
}

func TestClassify(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateContentRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(textResponse("Kitchen\n")))
	})

	label, err := client.Classify(context.Background(), ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"}, "What room?")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", label)

	assert.Equal(t, "/v1beta/models/gemini-3-flash-preview:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 2)
	assert.Equal(t, "aW1n", gotBody.Contents[0].Parts[0].InlineData.Data)
	assert.Equal(t, "What room?", gotBody.Contents[0].Parts[1].Text)
}

func TestEditImageSendsAspectRatio(t *testing.T) {
	var gotBody generateContentRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(imageResponse("b3V0")))
	})

	img, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"}, "renovate", "4:3")
	require.NoError(t, err)
	assert.Equal(t, "b3V0", img.DataBase64)
	assert.Equal(t, "image/png", img.MimeType)

	assert.Equal(t, []string{"IMAGE"}, gotBody.GenerationConfig.ResponseModalities)
	require.NotNil(t, gotBody.GenerationConfig.ImageConfig)
	assert.Equal(t, "4:3", gotBody.GenerationConfig.ImageConfig.AspectRatio)
}

func TestEditImageFallsBackWithoutImageConfig(t *testing.T) {
	var calls int
	var secondBody generateContentRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"Unknown name \"imageConfig\" at 'generation_config'"}}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&secondBody))
		_, _ = w.Write([]byte(imageResponse("b3V0")))
	})

	img, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"}, "renovate", "16:9")
	require.NoError(t, err)
	assert.Equal(t, "b3V0", img.DataBase64)

	assert.Equal(t, 2, calls)
	assert.Nil(t, secondBody.GenerationConfig.ImageConfig)
}

func TestEditImageNoImageInResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(textResponse("I cannot do that")))
	})

	_, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"}, "renovate", "")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestEditImageEmptyPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n"}, "   ", "")
	assert.Error(t, err)
}

func TestAPIErrorClassification(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`))
	})

	_, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n"}, "renovate", "")
	require.Error(t, err)
	assert.True(t, IsQuotaExhausted(err))
	assert.False(t, IsPermissionDenied(err))
	assert.Contains(t, err.Error(), "Quota exceeded")
}

func TestPermissionDeniedClassification(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"status":"PERMISSION_DENIED","message":"API key lacks access"}}`))
	})

	_, err := client.EditImage(context.Background(), ImageInput{DataBase64: "aW1n"}, "renovate", "")
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsQuotaExhausted(err))
}

func TestCredentialResolutionFailureShortCircuits(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(srv.Close)

	client := New(Options{
		Credentials: credential.NewStatic(""),
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
	})

	_, err := client.Classify(context.Background(), ImageInput{DataBase64: "aW1n"}, "What room?")
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrNoCredential)
	assert.Equal(t, 0, calls)
}

func TestDataURLRoundTrip(t *testing.T) {
	img := ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"}
	url := img.DataURL()
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	parsed, ok := FromDataURL(url, "image/png")
	require.True(t, ok)
	assert.Equal(t, "aW1n", parsed.DataBase64)
	assert.Equal(t, "image/jpeg", parsed.MimeType)

	// Bare base64 keeps the fallback MIME type.
	parsed, ok = FromDataURL("aW1n", "image/png")
	require.True(t, ok)
	assert.Equal(t, "image/png", parsed.MimeType)

	_, ok = FromDataURL("", "image/png")
	assert.False(t, ok)
}
