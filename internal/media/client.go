package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/digkill/genstudio/internal/fallback"
	"github.com/digkill/genstudio/internal/models"
)

var (
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrMissingCredentials    = errors.New("primary provider credentials missing")
	ErrNotImage              = errors.New("provider payload is not an image")
)

const (
	defaultPrimaryBaseURL   = "https://api-inference.huggingface.co"
	defaultPrimaryModel     = "stabilityai/stable-diffusion-xl-base-1.0"
	defaultSecondaryBaseURL = "https://image.pollinations.ai"
	defaultNegativePrompt   = "blurry, low quality, distorted, watermark, text artifacts, extra limbs, deformed"
)

// Store turns a raw image payload into a fetchable URL.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Options struct {
	PrimaryAPIKey    string
	PrimaryBaseURL   string
	PrimaryModel     string
	SecondaryBaseURL string
	HTTPClient       *http.Client
	Store            Store
	Seed             func() int64
	Logger           *slog.Logger
}

type Client struct {
	primaryKey   string
	primaryBase  string
	primaryModel string
	secondary    string
	httpClient   *http.Client
	store        Store
	seed         func() int64
	log          *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		primaryKey:   strings.TrimSpace(opts.PrimaryAPIKey),
		primaryBase:  strings.TrimRight(opts.PrimaryBaseURL, "/"),
		primaryModel: strings.Trim(opts.PrimaryModel, "/"),
		secondary:    strings.TrimRight(opts.SecondaryBaseURL, "/"),
		httpClient:   opts.HTTPClient,
		store:        opts.Store,
		seed:         opts.Seed,
		log:          opts.Logger,
	}
	if c.primaryBase == "" {
		c.primaryBase = defaultPrimaryBaseURL
	}
	if c.primaryModel == "" {
		c.primaryModel = defaultPrimaryModel
	}
	if c.secondary == "" {
		c.secondary = defaultSecondaryBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.seed == nil {
		c.seed = func() int64 { return rand.Int64N(1_000_000_000) }
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Generate makes one attempt against the primary provider and, if it is
// unusable, one attempt against the secondary. It returns the media URL.
func (c *Client) Generate(ctx context.Context, prompt string, size models.Size) (string, error) {
	width, height := size.Dimensions()
	mediaURL, err := fallback.FirstSuccess(ctx, c.log,
		fallback.Tier[string]{
			Name: "primary",
			Run: func(ctx context.Context) (string, error) {
				return c.generatePrimary(ctx, prompt, width, height)
			},
		},
		fallback.Tier[string]{
			Name: "secondary",
			Run: func(ctx context.Context) (string, error) {
				return c.generateSecondary(ctx, prompt, width, height)
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return mediaURL, nil
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
}

func (c *Client) generatePrimary(ctx context.Context, prompt string, width, height int) (string, error) {
	if isPlaceholderKey(c.primaryKey) {
		return "", ErrMissingCredentials
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs: prompt,
		Parameters: inferenceParameters{
			NegativePrompt:    defaultNegativePrompt,
			NumInferenceSteps: 30,
			GuidanceScale:     7.5,
			Width:             width,
			Height:            height,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := c.primaryBase + "/models/" + c.primaryModel
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.primaryKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post primary: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("primary error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	contentType, err := imageContentType(rawBody)
	if err != nil {
		return "", err
	}

	if c.store == nil {
		return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(rawBody), nil
	}
	mediaURL, err := c.store.Upload(ctx, rawBody, contentType)
	if err != nil {
		return "", fmt.Errorf("store primary payload: %w", err)
	}
	c.log.Info("primary generation stored", "url", mediaURL, "bytes", len(rawBody))
	return mediaURL, nil
}

func (c *Client) generateSecondary(ctx context.Context, prompt string, width, height int) (string, error) {
	params := url.Values{}
	params.Set("width", strconv.Itoa(width))
	params.Set("height", strconv.Itoa(height))
	params.Set("seed", strconv.FormatInt(c.seed(), 10))
	params.Set("nologo", "true")
	mediaURL := c.secondary + "/prompt/" + url.PathEscape(prompt) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify secondary: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("secondary error: status=%d", resp.StatusCode)
	}
	return mediaURL, nil
}

func isPlaceholderKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	switch lower {
	case "", "changeme", "change-me", "placeholder", "xxx", "none", "todo":
		return true
	}
	return strings.HasPrefix(lower, "your") || strings.HasPrefix(lower, "hf_xxx") || strings.HasPrefix(lower, "<")
}

// imageContentType sniffs the payload; a 2xx body that is not an image counts as a failed tier.
func imageContentType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	ct := http.DetectContentType(data)
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, ct)
	}
	return ct, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
