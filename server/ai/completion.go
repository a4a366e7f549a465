package ai

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/usecounsel/counsel/internal/profile"
)

// Message represents a chat message in a completion request. The system
// role exists only in these transient payloads and is never persisted.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FallbackReply is returned in-band whenever the completion service fails.
// Callers never need to branch on an error from Complete.
const FallbackReply = "I'm sorry, but I'm experiencing technical difficulties right now. Please try again in a moment."

// Completer turns an ordered message history into a single assistant reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) string
}

// Config holds the completion provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		Model:      "gpt-4o-mini",
		MaxTokens:  1000,
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// NewProviderFromProfile builds a Provider from the server profile, or nil
// when no completion service is configured.
func NewProviderFromProfile(p *profile.Profile) *Provider {
	if !p.IsAIEnabled() {
		return nil
	}
	cfg := DefaultConfig()
	cfg.APIKey = p.AIAPIKey
	if p.AIBaseURL != "" {
		cfg.BaseURL = p.AIBaseURL
	}
	if p.AIModel != "" {
		cfg.Model = p.AIModel
	}
	return NewProvider(cfg)
}

// Provider is the go-openai backed Completer.
type Provider struct {
	client *openai.Client
	config *Config
}

// NewProvider creates a new completion provider.
func NewProvider(cfg *Config) *Provider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Complete sends the history, with the counseling system message
// prepended, to the completion service. Upstream failures are represented
// by the in-band fallback reply, never an error.
func (p *Provider) Complete(ctx context.Context, messages []Message) string {
	llmMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	llmMessages = append(llmMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: CounselorSystemMessage,
	})
	for _, msg := range messages {
		llmMessages = append(llmMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:     p.config.Model,
		Messages:  llmMessages,
		MaxTokens: p.config.MaxTokens,
	}

	var result string
	err := p.doWithRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		resp, err := p.client.CreateChatCompletion(reqCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errEmptyResponse
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		slog.Error("completion failed, returning fallback reply",
			slog.String("model", p.config.Model),
			slog.String("error", err.Error()))
		return FallbackReply
	}
	if result == "" {
		return FallbackReply
	}

	return result
}

var errEmptyResponse = errors.New("empty chat response")

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < p.config.MaxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			slog.Debug("completion request failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait_time", waitTime),
				slog.String("error", err.Error()))
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
