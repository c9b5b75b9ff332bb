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
	"regexp"
	"strings"

	"room-renovator-bot/internal/credential"
)

const (
	modelClassify = "gemini-3-flash-preview"
	modelImage    = "gemini-2.5-flash-image"
)

type Options struct {
	Credentials credential.Provider
	BaseURL     string
	APIVersion  string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type Client struct {
	creds      credential.Provider
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// Classify sends an image with an instruction and returns the model's
// text answer, trimmed. Callers must tolerate an empty result.
func (c *Client) Classify(ctx context.Context, image ImageInput, instruction string) (string, error) {
	req := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{
				{InlineData: &blob{Data: stripDataURLPrefix(image.DataBase64), MimeType: image.MimeType}},
				{Text: instruction},
			}},
		},
	}

	resp, err := c.generateContent(ctx, modelClassify, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.text), nil
}

// EditImage renders one transformation of the reference image. The
// aspect ratio is passed as a generation parameter; endpoints that do
// not support imageConfig get one fallback call without it.
func (c *Client) EditImage(ctx context.Context, ref ImageInput, prompt string, aspectRatio string) (ImageInput, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ImageInput{}, errors.New("prompt is empty")
	}

	req := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{
				{InlineData: &blob{Data: stripDataURLPrefix(ref.DataBase64), MimeType: ref.MimeType}},
				{Text: prompt},
			}},
		},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if aspectRatio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspectRatio}
	}

	resp, err := c.generateContent(ctx, modelImage, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, modelImage, req)
	}
	if err != nil {
		return ImageInput{}, err
	}

	if len(resp.images) == 0 {
		return ImageInput{}, ErrNoImage
	}
	return resp.images[0], nil
}

type modelResponse struct {
	text   string
	images []ImageInput
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (modelResponse, error) {
	if c.httpClient == nil {
		return modelResponse{}, errors.New("http client is nil")
	}

	apiKey, err := c.creds.Key(ctx)
	if err != nil {
		return modelResponse{}, fmt.Errorf("resolve credential: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return modelResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return modelResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return modelResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return modelResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return modelResponse{}, decodeAPIError(httpResp.StatusCode, rawBody)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return modelResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return extractParts(decoded), nil
}

func decodeAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{
		Code:    statusCode,
		Message: strings.TrimSpace(string(body)),
	}

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
		if envelope.Error.Code != 0 {
			apiErr.Code = envelope.Error.Code
		}
	}
	return apiErr
}

func extractParts(resp generateContentResponse) modelResponse {
	if len(resp.Candidates) == 0 {
		return modelResponse{}
	}

	var out modelResponse
	var textBuilder strings.Builder

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			mimeType := p.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			out.images = append(out.images, ImageInput{
				DataBase64: p.InlineData.Data,
				MimeType:   mimeType,
			})
		}
	}

	out.text = textBuilder.String()
	return out
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

var dataURLRegex = regexp.MustCompile(`^data:([^;]+);base64,`)

// DataURL renders the image as a data URL.
func (img ImageInput) DataURL() string {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, stripDataURLPrefix(img.DataBase64))
}

// FromDataURL parses a data URL, keeping the fallback MIME type when
// the URL carries none.
func FromDataURL(dataURL string, fallbackMime string) (ImageInput, bool) {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return ImageInput{}, false
	}

	mimeType := fallbackMime
	if matches := dataURLRegex.FindStringSubmatch(dataURL); len(matches) == 2 {
		mimeType = matches[1]
	}

	data := stripDataURLPrefix(dataURL)
	if data == "" {
		return ImageInput{}, false
	}

	return ImageInput{DataBase64: data, MimeType: mimeType}, true
}

func stripDataURLPrefix(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
