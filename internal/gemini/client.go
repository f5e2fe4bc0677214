package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

var (
	ErrMissingCredentials = errors.New("gemini api key missing")
	ErrEmptyResponse      = errors.New("gemini returned no text")
)

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client enhances prompts through the Gemini text models. A client built
// without an API key is valid and fails every call with ErrMissingCredentials.
type Client struct {
	genai  *genai.Client
	model  string
	logger *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	c := &Client{model: model, logger: logger}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		logger.Warn("gemini api key not set, prompt enhancement will use style templates")
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.genai = client
	return c, nil
}

func (c *Client) GenerateText(ctx context.Context, instruction string) (string, error) {
	if c.genai == nil {
		return "", ErrMissingCredentials
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(instruction), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("gemini enhancement", "model", c.model, "chars", len(text))
	return text, nil
}
