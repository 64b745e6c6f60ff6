package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicdeeds/magic-studio/internal/models"
)

func pendingOperation(name string) map[string]any {
	return map[string]any{"name": name, "done": false}
}

func doneOperation(name, uri string) map[string]any {
	return map[string]any{
		"name": name,
		"done": true,
		"response": map[string]any{
			"generateVideoResponse": map[string]any{
				"generatedSamples": []map[string]any{
					{"video": map[string]string{"uri": uri}},
				},
			},
		},
	}
}

func TestGenerateVideoPollsUntilDone(t *testing.T) {
	const opName = "models/veo-3.1-fast-generate-preview/operations/op-1"
	var submits, polls, fetches int

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		submits++
		var req submitVideoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		assert.Equal(t, "a drone shot", req.Instances[0].Prompt)
		assert.Equal(t, 1, req.Parameters.SampleCount)
		assert.Equal(t, "720p", req.Parameters.Resolution)
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			json.NewEncoder(w).Encode(pendingOperation(opName))
			return
		}
		json.NewEncoder(w).Encode(doneOperation(opName, srv.URL+"/files/video-1"))
	})
	mux.HandleFunc("GET /files/video-1", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	})

	c := newTestClient(t, srv.URL)
	video, err := c.GenerateVideo(context.Background(), VideoRequest{
		Prompt:     "a drone shot",
		Model:      models.ModelVideoFast,
		Resolution: "720p",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4-bytes"), video.Bytes)
	assert.Equal(t, "video/mp4", video.MimeType)
	assert.True(t, strings.HasSuffix(video.SourceURI, "/files/video-1"))
	assert.Equal(t, 1, submits)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, fetches)
}

func TestGenerateVideoOperationError(t *testing.T) {
	const opName = "models/veo-3.1-generate-preview/operations/op-2"
	fetches := 0

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":  opName,
			"done":  true,
			"error": map[string]string{"message": "safety filters triggered"},
		})
	})
	mux.HandleFunc("GET /files/", func(w http.ResponseWriter, r *http.Request) {
		fetches++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", Model: models.ModelVideoHD})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Contains(t, err.Error(), "safety filters triggered")
	assert.Equal(t, 0, fetches)
}

func TestGenerateVideoDoneWithoutURI(t *testing.T) {
	const opName = "models/veo-3.1-fast-generate-preview/operations/op-3"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"name": opName, "done": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", Model: models.ModelVideoFast})
	assert.True(t, IsKind(err, KindEmptyResult))
}

func TestGenerateVideoTimesOut(t *testing.T) {
	const opName = "models/veo-3.1-fast-generate-preview/operations/op-4"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.videoTimeout = 20 * time.Millisecond
	c.pollInterval = 5 * time.Millisecond

	_, err := c.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", Model: models.ModelVideoFast})
	assert.True(t, IsKind(err, KindTimedOut))
}

func TestGenerateVideoRetriesSubmissionOnly(t *testing.T) {
	const opName = "models/veo-3.1-fast-generate-preview/operations/op-5"
	var submits int

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		submits++
		if submits == 1 {
			http.Error(w, "quota", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(doneOperation(opName, srv.URL+"/files/video-5"))
	})
	mux.HandleFunc("GET /files/video-5", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("bytes"))
	})

	c := newTestClient(t, srv.URL)
	video, err := c.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", Model: models.ModelVideoFast})
	require.NoError(t, err)
	assert.Equal(t, 2, submits)
	assert.Equal(t, "video/mp4", video.MimeType)
}

func TestGenerateVideoPollFailureIsFatal(t *testing.T) {
	const opName = "models/veo-3.1-fast-generate-preview/operations/op-6"
	var polls int

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pendingOperation(opName))
	})
	mux.HandleFunc("GET /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		polls++
		http.Error(w, "backend blew up", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", Model: models.ModelVideoFast})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Equal(t, 1, polls)
}
