// Package imagegen submits hero-image jobs to an external image model.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/config"
)

const (
	MinPromptLen      = 10
	MinAspectRatioLen = 3
)

// Job is the provider's acknowledgement of one image request. Status is
// passed through verbatim.
type Job struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	Status      string `json:"status"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProviderError reports a failed or rejected provider call.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image provider returned %d: %v", e.StatusCode, e.Err)
	}
	return "image provider: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error     { return e.Err }
func (e *ProviderError) Kind() apperr.Kind { return apperr.KindImageProvider }

// Submitter forwards one prompt to an image model.
type Submitter interface {
	Submit(ctx context.Context, prompt, aspectRatio string) (*Job, error)
}

// Validate checks prompt and aspect ratio and returns their trimmed forms.
// Minimum lengths apply to the raw input in UTF-16 code units, the same
// count the dashboard form enforces in the browser.
func Validate(prompt, aspectRatio string) (string, string, error) {
	verr := &apperr.ValidationError{}
	checkField(verr, "prompt", prompt, MinPromptLen)
	checkField(verr, "aspectRatio", aspectRatio, MinAspectRatioLen)
	return strings.TrimSpace(prompt), strings.TrimSpace(aspectRatio), verr.OrNil()
}

func checkField(verr *apperr.ValidationError, field, value string, min int) {
	switch {
	case utf16Len(value) < min:
		verr.Add(field, "must be at least %d characters", min)
	case strings.TrimSpace(value) == "":
		verr.Add(field, "must not be blank")
	}
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// NanoBanana is a Submitter for the Nano Banana image generation API.
type NanoBanana struct {
	Endpoint string
	Model    string
	apiKey   string
	client   *http.Client
}

// NewNanoBanana creates a client. A nil httpClient gets one with timeout.
func NewNanoBanana(endpoint, model, apiKey string, timeout time.Duration, httpClient *http.Client) *NanoBanana {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &NanoBanana{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Model:    model,
		apiKey:   apiKey,
		client:   httpClient,
	}
}

// FromConfig builds the configured Submitter.
func FromConfig(cfg config.Images) *NanoBanana {
	return NewNanoBanana(cfg.Endpoint, cfg.Model, os.Getenv(cfg.APIKeyEnv), cfg.Timeout(), nil)
}

type generationResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// Submit validates its input and, only if valid, makes one provider call.
func (n *NanoBanana) Submit(ctx context.Context, prompt, aspectRatio string) (*Job, error) {
	prompt, aspectRatio, err := Validate(prompt, aspectRatio)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(map[string]string{
		"model":        n.Model,
		"prompt":       prompt,
		"aspect_ratio": aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint+"/v1/images/generations", bytes.NewReader(data))
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	var result generationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	job := &Job{
		ID:          result.ID,
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		Status:      result.Status,
		ImageURL:    result.ImageURL,
		Error:       result.Error,
	}
	if job.ImageURL == "" {
		job.ImageURL = result.URL
	}

	log.Debug().Str("job_id", job.ID).Str("status", job.Status).Msg("image job submitted")
	return job, nil
}
