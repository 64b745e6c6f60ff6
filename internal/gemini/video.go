package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/magicdeeds/magic-studio/internal/models"
)

type VideoRequest struct {
	Prompt      string
	Model       models.ModelType
	AspectRatio string
	Resolution  string
	// ReferenceImage is an optional base64 data URI used as the first frame.
	ReferenceImage string
}

// Video is the fetched binary asset, not the operation handle.
type Video struct {
	Bytes     []byte
	MimeType  string
	SourceURI string
}

type videoInstance struct {
	Prompt string `json:"prompt"`
	Image  *struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"image,omitempty"`
}

type videoParameters struct {
	SampleCount int    `json:"sampleCount"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type submitVideoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []generatedVideo `json:"generatedSamples"`
			GeneratedVideos  []generatedVideo `json:"generatedVideos"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type generatedVideo struct {
	Video struct {
		URI string `json:"uri"`
	} `json:"video"`
}

// GenerateVideo submits a long-running generation job, polls it to
// completion, then fetches the produced binary asset. Only the initial
// submission is retried; mid-flight polling failures are fatal for the job.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*Video, error) {
	name, err := withRetry(ctx, func() (string, error) {
		return c.submitVideo(ctx, req)
	}, c.maxRetries, c.retryDelay)
	if err != nil {
		return nil, err
	}

	uri, err := c.pollOperation(ctx, name)
	if err != nil {
		return nil, err
	}

	return c.fetchVideo(ctx, uri)
}

func (c *Client) submitVideo(ctx context.Context, req VideoRequest) (string, error) {
	instance := videoInstance{Prompt: req.Prompt}
	if req.ReferenceImage != "" {
		mime, data, err := SplitDataURI(req.ReferenceImage)
		if err != nil {
			return "", fmt.Errorf("reference image: %w", err)
		}
		instance.Image = &struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		}{BytesBase64Encoded: data, MimeType: mime}
	}

	payload := submitVideoRequest{
		Instances: []videoInstance{instance},
		Parameters: videoParameters{
			SampleCount: 1,
			Resolution:  req.Resolution,
			AspectRatio: req.AspectRatio,
		},
	}

	var resp operationResponse
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", c.baseURL, req.Model)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", &Error{Kind: KindTransport, Message: "empty operation name in response"}
	}

	if c.log != nil {
		c.log.Info("video job submitted", "operation", resp.Name, "model", req.Model)
	}
	return resp.Name, nil
}

// pollOperation queries the operation status at a fixed interval until it
// reports done, the wall-clock fence expires, or the context is canceled.
func (c *Client) pollOperation(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/%s", c.baseURL, name)
	deadline := time.Now().Add(c.videoTimeout)

	for attempt := 0; ; attempt++ {
		var status operationResponse
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
			return "", err
		}

		if status.Done {
			if status.Error != nil {
				return "", &Error{Kind: KindTransport, Message: fmt.Sprintf("video generation failed: %s", status.Error.Message)}
			}
			uri := extractVideoURI(&status)
			if uri == "" {
				return "", &Error{Kind: KindEmptyResult, Message: "no video uri in completed operation"}
			}
			if c.log != nil {
				c.log.Info("video job completed", "operation", name, "polls", attempt)
			}
			return uri, nil
		}

		if time.Now().After(deadline) {
			return "", &Error{Kind: KindTimedOut, Message: fmt.Sprintf("video generation timed out after %s", c.videoTimeout)}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func extractVideoURI(status *operationResponse) string {
	if status.Response == nil {
		return ""
	}
	videos := status.Response.GenerateVideoResponse.GeneratedSamples
	if len(videos) == 0 {
		videos = status.Response.GenerateVideoResponse.GeneratedVideos
	}
	if len(videos) == 0 {
		return ""
	}
	return videos[0].Video.URI
}

// fetchVideo performs the secondary authenticated fetch of the actual
// binary content; the operation result only carries a reference.
func (c *Client) fetchVideo(ctx context.Context, uri string) (*Video, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, truncateBody(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("read video body: %v", err)}
	}
	if len(data) == 0 {
		return nil, &Error{Kind: KindEmptyResult, Message: "empty video body"}
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return &Video{Bytes: data, MimeType: mime, SourceURI: uri}, nil
}
