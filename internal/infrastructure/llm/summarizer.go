// Package llm summarizes documents with an OpenAI-compatible chat model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const defaultSystemPrompt = "You summarize regulatory publications for a pharmaceutical compliance team. " +
	"Answer with two or three plain sentences that name the affected products, the action required and any deadline."

const maxRetries = 3

// Summarizer calls a chat model under a shared rate limit.
type Summarizer struct {
	chat         model.BaseChatModel
	limiter      *rate.Limiter
	systemPrompt string
	baseDelay    time.Duration
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer builds the OpenAI-compatible chat model from configuration.
func NewSummarizer(ctx context.Context, cfg config.ChatGPTConfig) (*Summarizer, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("chatgpt summarizer misconfigured: api key and model are required")
	}
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return New(chat, cfg), nil
}

// New wraps an existing chat model.
func New(chat model.BaseChatModel, cfg config.ChatGPTConfig) *Summarizer {
	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Summarizer{
		chat:         chat,
		limiter:      rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		systemPrompt: safePrompt(cfg.SystemPrompt),
		baseDelay:    2 * time.Second,
	}
}

// Summarize returns the model's summary of text. Every failure wraps
// domain.ErrSummarizerUnavailable.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(s.systemPrompt),
		schema.UserMessage(text),
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", unavailable(err)
		}

		resp, err := s.chat.Generate(ctx, messages)
		if err != nil {
			lastErr = err
			if isRateLimited(err) && i < maxRetries {
				if err := sleep(ctx, s.baseDelay*time.Duration(1<<i)); err != nil {
					return "", unavailable(err)
				}
				continue
			}
			return "", unavailable(err)
		}

		out := strings.TrimSpace(resp.Content)
		if out == "" {
			return "", unavailable(errors.New("empty completion"))
		}
		return out, nil
	}
	return "", unavailable(lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrSummarizerUnavailable, err)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
