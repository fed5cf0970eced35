package analysis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openaigo "github.com/sashabaranov/go-openai"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "analysis").Logger()

// Client is the minimal completion surface the invoker needs from an
// LLM backend.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientConfig selects and tunes a backend. The prompt token budget is
// not a client concern; Service truncates the story text before the
// call.
type ClientConfig struct {
	Backend     string // "openai" (OpenRouter-compatible) or "ollama"
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

var (
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "istory_analysis_llm_requests_total",
			Help: "Total number of requests to the LLM backend.",
		},
		[]string{"model", "status"},
	)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "istory_analysis_llm_request_duration_seconds",
			Help:    "Histogram of LLM request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	llmPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "istory_analysis_llm_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 16),
		},
		[]string{"model"},
	)
)

// NewClient builds the configured backend.
func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("LLM model name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("LLM API key is required for the openai backend")
		}
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiConfig.BaseURL = cfg.BaseURL
		}
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		log.Info().Str("baseURL", openaiConfig.BaseURL).Str("model", cfg.Model).Msg("OpenAI-compatible LLM client created")
		return &openAIClient{
			client: openaigo.NewClientWithConfig(openaiConfig),
			cfg:    cfg,
		}, nil
	case "ollama":
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM backend: %q", cfg.Backend)
	}
}

// --- OpenAI-compatible backend ---

type openAIClient struct {
	client *openaigo.Client
	cfg    ClientConfig
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openaigo.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   1500,
		TopP:        0.95,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		duration := time.Since(start)

		if err != nil {
			llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "error"}).Inc()
			log.Error().Err(err).Int("attempt", attempt).Dur("duration", duration).Msg("LLM request failed")
			lastErr = err
			if attempt < c.cfg.MaxAttempts {
				time.Sleep(time.Duration(attempt) * c.cfg.RetryDelay)
			}
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "error_empty_response"}).Inc()
			log.Warn().Int("attempt", attempt).Msg("LLM returned no choices")
			lastErr = fmt.Errorf("empty completion from model")
			if attempt < c.cfg.MaxAttempts {
				time.Sleep(time.Duration(attempt) * c.cfg.RetryDelay)
			}
			continue
		}

		llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "success"}).Inc()
		llmRequestDuration.With(prometheus.Labels{"model": c.cfg.Model}).Observe(duration.Seconds())
		if resp.Usage.PromptTokens > 0 {
			llmPromptTokens.With(prometheus.Labels{"model": c.cfg.Model}).Observe(float64(resp.Usage.PromptTokens))
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("LLM request failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// --- Ollama backend ---

type ollamaClient struct {
	client *api.Client
	cfg    ClientConfig
}

func newOllamaClient(cfg ClientConfig) (Client, error) {
	// api.NewClient wants the server root, without a /v1 suffix.
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/v1"), "/")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama base URL %q: %w", baseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	log.Info().Str("baseURL", baseURL).Str("model", cfg.Model).Msg("Ollama LLM client created")

	return &ollamaClient{client: client, cfg: cfg}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model: c.cfg.Model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.3,
			"num_predict": 1500,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		var resp api.ChatResponse
		err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
			resp = r
			return nil
		})
		duration := time.Since(start)

		if err != nil {
			llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "error"}).Inc()
			log.Error().Err(err).Int("attempt", attempt).Dur("duration", duration).Msg("Ollama request failed")
			lastErr = err
			if attempt < c.cfg.MaxAttempts {
				time.Sleep(time.Duration(attempt) * c.cfg.RetryDelay)
			}
			continue
		}
		if resp.Message.Content == "" {
			llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "error_empty_response"}).Inc()
			lastErr = fmt.Errorf("empty completion from model")
			if attempt < c.cfg.MaxAttempts {
				time.Sleep(time.Duration(attempt) * c.cfg.RetryDelay)
			}
			continue
		}

		llmRequestsTotal.With(prometheus.Labels{"model": c.cfg.Model, "status": "success"}).Inc()
		llmRequestDuration.With(prometheus.Labels{"model": c.cfg.Model}).Observe(duration.Seconds())
		if resp.PromptEvalCount > 0 {
			llmPromptTokens.With(prometheus.Labels{"model": c.cfg.Model}).Observe(float64(resp.PromptEvalCount))
		}
		return resp.Message.Content, nil
	}

	return "", fmt.Errorf("ollama request failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// truncateToTokenBudget trims text to at most maxTokens using the
// cl100k_base encoding. Falls back to a byte cap when the tokenizer is
// unavailable (it downloads its vocabulary on first use).
func truncateToTokenBudget(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, falling back to byte-based truncation")
		approxBytes := maxTokens * 4
		if len(text) > approxBytes {
			return text[:approxBytes]
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
