package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient("", nil)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)

	client, err := NewClient("test-api-key", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultModel, client.model)
}

func TestClient_Complete(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotReq generateContentRequest

	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{
			"candidates": [
				{"content": {"parts": [{"text": "  {\"week\": 1}\n"}]}}
			]
		}`))
		require.NoError(t, err)
	}))
	defer testServer.Close()

	client, err := NewClient("test-api-key", testServer.Client())
	require.NoError(t, err)
	client.baseURL = testServer.URL

	completion, err := client.Complete(context.Background(), "build me a workout")
	require.NoError(t, err)

	// completion comes back trimmed
	assert.Equal(t, `{"week": 1}`, completion)

	assert.Equal(t, "/models/"+defaultModel+":generateContent", gotPath)
	assert.Equal(t, "test-api-key", gotAPIKey)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 1)
	assert.Equal(t, "build me a workout", gotReq.Contents[0].Parts[0].Text)
}

func TestClient_Complete_APIError(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, err := w.Write([]byte(`{
			"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}
		}`))
		require.NoError(t, err)
	}))
	defer testServer.Close()

	client, err := NewClient("test-api-key", testServer.Client())
	require.NoError(t, err)
	client.baseURL = testServer.URL

	_, err = client.Complete(context.Background(), "prompt")
	assert.ErrorContains(t, err, "quota exceeded")
	assert.ErrorContains(t, err, "429")
}

func TestClient_Complete_NoCandidates(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"candidates": []}`))
		require.NoError(t, err)
	}))
	defer testServer.Close()

	client, err := NewClient("test-api-key", testServer.Client())
	require.NoError(t, err)
	client.baseURL = testServer.URL

	_, err = client.Complete(context.Background(), "prompt")
	assert.ErrorContains(t, err, "no candidates")
}
