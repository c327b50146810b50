package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/config"
)

// ErrNotConfigured is returned by Complete when the provider has no credentials.
var ErrNotConfigured = errors.New("language model provider not configured")

// Completion is one system+user exchange with sampling settings.
type Completion struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider is the interface for LLM providers.
type Provider interface {
	Complete(ctx context.Context, c Completion) (string, error)
	IsConfigured() bool
	Name() string
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Warn().Str("model", o.Model).Msg("ollama model not found")
	return false
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		NumPredict  int     `json:"num_predict,omitempty"`
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

// Complete sends one non-streaming chat exchange to Ollama.
func (o *OllamaProvider) Complete(ctx context.Context, c Completion) (string, error) {
	chat := ollamaChatRequest{Model: o.Model}
	if c.System != "" {
		chat.Messages = append(chat.Messages, ollamaMessage{Role: "system", Content: c.System})
	}
	chat.Messages = append(chat.Messages, ollamaMessage{Role: "user", Content: c.Prompt})
	chat.Options.NumPredict = c.MaxTokens
	chat.Options.Temperature = c.Temperature

	data, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("encoding ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	log.Debug().Str("model", o.Model).Dur("duration", time.Since(start)).Msg("ollama completion")
	return out.Message.Content, nil
}

// OpenAIProvider talks to the OpenAI chat completions API, or any
// compatible endpoint when BaseURL is set.
type OpenAIProvider struct {
	Model   string
	BaseURL string
	apiKey  string
	client  openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. The SDK's own retries are
// disabled: a failed generation is reported to the caller, not repeated.
func NewOpenAIProvider(model, baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIProvider{
		Model:   model,
		BaseURL: baseURL,
		apiKey:  apiKey,
		client:  openai.NewClient(opts...),
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != ""
}

// Complete sends one chat exchange and returns the first choice's content.
// An empty string with a nil error means the model returned nothing.
func (o *OpenAIProvider) Complete(ctx context.Context, c Completion) (string, error) {
	if o.apiKey == "" {
		return "", ErrNotConfigured
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	if c.System != "" {
		msgs = append(msgs, openai.SystemMessage(c.System))
	}
	msgs = append(msgs, openai.UserMessage(c.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.Model),
		Messages:    msgs,
		Temperature: openai.Float(c.Temperature),
	}
	if c.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateProvider creates an LLM provider based on configuration. Ollama is
// used when selected and reachable; otherwise the OpenAI-compatible provider
// is returned, configured or not, so callers get a clear error at call time.
func CreateProvider(cfg config.Generation) Provider {
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	if strings.EqualFold(cfg.Provider, "ollama") {
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.Timeout())
		if p.IsConfigured() {
			log.Info().Str("model", cfg.Model).Msg("using Ollama")
			return p
		}
		log.Warn().Msg("Ollama not available, trying OpenAI fallback")
	}

	p := NewOpenAIProvider(cfg.Model, cfg.BaseURL, os.Getenv(cfg.APIKeyEnv), httpClient)
	if p.IsConfigured() {
		log.Info().Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("using OpenAI")
	} else {
		log.Warn().Str("env", cfg.APIKeyEnv).Msg("no LLM credentials; generation requests will fail")
	}
	return p
}
