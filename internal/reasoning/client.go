// Package reasoning invokes the reasoning backend (an OpenAI-compatible
// chat-completions API such as OpenRouter) to turn a metrics snapshot into a
// structured trade recommendation, and defensively parses its output.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/quantpair/pairgate/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "qwen/qwen3-max"
	defaultTimeout = 60 * time.Second

	maxCompletionTokens = 1024
)

// keyGuidance is remediation text attached to transport/auth failures.
const keyGuidance = "OpenRouter request failed. Check the reasoning API key " +
	"and account access, and confirm the configured model is available."

// Config holds the reasoning backend connection parameters.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the reasoning backend. A nil *Client is treated by the
// orchestrator as "backend not initialized".
type Client struct {
	api    openai.Client
	model  string
	logger *slog.Logger
}

// NewClient creates a Client. It fails when no API key is configured; the
// caller should then run without a reasoner rather than with a broken one.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reasoning: api key not configured")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
	)

	return &Client{
		api:    api,
		model:  model,
		logger: logger.With(slog.String("component", "reasoning")),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// AnalyzePair asks the backend for a recommendation on the given metrics.
// Transport and auth failures come back as *domain.ReasoningError; a
// response that is merely malformed is degraded to a defaulted record by the
// parser and never fails the call.
func (c *Client) AnalyzePair(ctx context.Context, symbolA, symbolB string, m domain.MetricsRecord, temperature float64) (domain.AnalysisRecord, error) {
	prompt := buildPrompt(symbolA, symbolB, m)

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxCompletionTokens),
	})
	if err != nil {
		return domain.AnalysisRecord{}, &domain.ReasoningError{Guidance: keyGuidance, Err: err}
	}
	if len(completion.Choices) == 0 {
		return domain.AnalysisRecord{}, &domain.ReasoningError{
			Guidance: keyGuidance,
			Err:      fmt.Errorf("empty completion from model %s", c.model),
		}
	}

	rec := ParseAnalysis(completion.Choices[0].Message.Content)

	c.logger.DebugContext(ctx, "analysis completed",
		slog.String("symbol_a", symbolA),
		slog.String("symbol_b", symbolB),
		slog.String("signal", string(rec.Signal)),
		slog.Float64("confidence", rec.Confidence),
	)
	return rec, nil
}
