package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/magicdeeds/magic-studio/internal/config"
	"github.com/magicdeeds/magic-studio/internal/models"
)

// Client is the generation gateway: it shapes typed requests into calls
// against the hosted model API and extracts normalized artifacts.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	text       *openai.Client
	log        *slog.Logger

	maxRetries   uint64
	retryDelay   time.Duration
	pollInterval time.Duration
	videoTimeout time.Duration
}

type TextRequest struct {
	Prompt            string
	Model             models.ModelType
	SystemInstruction string
}

type ImageRequest struct {
	Prompt      string
	Model       models.ModelType
	AspectRatio string
	ImageSize   string
	// ReferenceImage is an optional base64 data URI attached inline.
	ReferenceImage string
}

const defaultSystemInstruction = "You are a digital commerce copywriting expert. You excel at writing high-conversion commercial copy."

const ecommercePromptTemplate = `[ECOMMERCE HIGH-FIDELITY MODE]
Task: %s.
Requirement:
1. ABSOLUTELY PRESERVE all core features of the product/person from the reference image.
2. DO NOT change shape, labels, colors, or textures of the primary subject.
3. Style: Commercial high-end photography, professional studio lighting, realistic environment.
4. Output: 4K resolution, hyper-realistic, sharp focus.`

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	retries := cfg.RetryMax
	if retries < 0 {
		retries = 0
	}
	retryDelay := cfg.RetryInitialDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 8 * time.Second
	}
	videoTimeout := cfg.VideoTimeout
	if videoTimeout <= 0 {
		videoTimeout = 10 * time.Minute
	}

	textCfg := openai.DefaultConfig(cfg.GeminiAPIKey)
	if cfg.TextAPIBaseURL != "" {
		textCfg.BaseURL = strings.TrimRight(cfg.TextAPIBaseURL, "/")
	}

	return &Client{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		text:         openai.NewClientWithConfig(textCfg),
		log:          log,
		maxRetries:   uint64(retries),
		retryDelay:   retryDelay,
		pollInterval: pollInterval,
		videoTimeout: videoTimeout,
	}
}

// GenerateText sends a chat-style completion request and returns the first
// choice's content.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	system := req.SystemInstruction
	if system == "" {
		system = defaultSystemInstruction
	}

	return withRetry(ctx, func() (string, error) {
		resp, err := c.text.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: string(req.Model),
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
			},
			Temperature: 0.7,
		})
		if err != nil {
			return "", classifyTextErr(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", &Error{Kind: KindEmptyResult, Message: "no text content in response"}
		}
		return resp.Choices[0].Message.Content, nil
	}, c.maxRetries, c.retryDelay)
}

func classifyTextErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	return &Error{Kind: KindTransport, Message: err.Error()}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generationConfig struct {
	ImageConfig *imageConfig `json:"imageConfig,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []tool            `json:"tools,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage wraps the prompt in the high-fidelity e-commerce template,
// attaches the reference image when given, and returns the produced image
// as a base64 data URI.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	parts := []part{{Text: fmt.Sprintf(ecommercePromptTemplate, req.Prompt)}}

	if req.ReferenceImage != "" {
		mime, data, err := SplitDataURI(req.ReferenceImage)
		if err != nil {
			return "", fmt.Errorf("reference image: %w", err)
		}
		parts = append(parts, part{InlineData: &inlineData{MimeType: mime, Data: data}})
	}

	imgCfg := &imageConfig{AspectRatio: req.AspectRatio}
	// The image-size tier and web grounding are only honored by the
	// pro-tier image model; they must be omitted for anything else.
	var tools []tool
	if req.Model == models.ModelImagePro {
		imgCfg.ImageSize = req.ImageSize
		tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{ImageConfig: imgCfg},
		Tools:            tools,
	}

	return withRetry(ctx, func() (string, error) {
		var resp generateContentResponse
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, req.Model)
		if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
			return "", err
		}

		if len(resp.Candidates) == 0 {
			return "", &Error{Kind: KindEmptyResult, Message: "no image data found in response"}
		}
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				mime := p.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," + p.InlineData.Data, nil
			}
		}
		return "", &Error{Kind: KindEmptyResult, Message: "no image data found in response"}
	}, c.maxRetries, c.retryDelay)
}

// GenerateImages fans out n independent image calls and joins them; a
// failure anywhere fails the whole batch.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest, n int) ([]string, error) {
	if n <= 1 {
		img, err := c.GenerateImage(ctx, req)
		if err != nil {
			return nil, err
		}
		return []string{img}, nil
	}

	images := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			img, err := c.GenerateImage(gctx, req)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// doJSON posts a JSON payload and decodes the JSON response, mapping any
// non-success status onto the gateway error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("gemini call failed", "status", resp.StatusCode, "url", endpoint, "body", truncateBody(rawBody))
		}
		return apiError(resp.StatusCode, truncateBody(rawBody))
	}

	if out != nil {
		if err := json.Unmarshal(rawBody, out); err != nil {
			return &Error{Kind: KindTransport, Message: fmt.Sprintf("decode response: %v (body=%s)", err, truncateBody(rawBody))}
		}
	}
	return nil
}

// SplitDataURI splits a base64 data URI into its mime type and payload.
func SplitDataURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", "", fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(uri, "data:")
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return "", "", fmt.Errorf("data URI is not base64 encoded")
	}
	mime := rest[:semi]
	if mime == "" {
		mime = "image/png"
	}
	return mime, rest[semi+len(";base64,"):], nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
