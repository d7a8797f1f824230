package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Service implements interfaces.LLMService over the provider factory.
// It applies a per-call timeout and per-provider rate limiting so the
// analysis pipeline can invoke it from several goroutines without
// tripping provider quotas, and records every call in the audit trail.
type Service struct {
	factory  *ProviderFactory
	audit    AuditLogger
	logger   arbor.ILogger
	model    string
	timeout  time.Duration
	thinking map[ProviderType]string
	limiters map[ProviderType]*rate.Limiter
}

// NewService creates an LLM service bound to the configured default provider.
//
// Parameters:
//   - cfg: Full application configuration for provider and analysis settings
//   - kvStorage: Key/value storage for API key resolution (can be nil)
//   - audit: Audit logger for call records (nil disables auditing)
//   - logger: Structured logger for service operations
//
// Returns:
//   - *Service: Initialized service ready for use
//   - error: nil on success, error with details on failure
func NewService(cfg *common.Config, kvStorage interfaces.KeyValueStorage, audit AuditLogger, logger arbor.ILogger) (*Service, error) {
	factory := NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, kvStorage, logger)

	provider := ProviderType(cfg.LLM.DefaultProvider)
	model := factory.GetDefaultModel(provider)
	if model == "" {
		return nil, fmt.Errorf("no model configured for default provider '%s'", provider)
	}

	limiters, err := buildLimiters(cfg)
	if err != nil {
		return nil, err
	}

	if audit == nil {
		audit = NewNullAuditLogger()
	}

	service := &Service{
		factory: factory,
		audit:   audit,
		logger:  logger,
		model:   model,
		timeout: cfg.AnalysisLLMTimeout(),
		thinking: map[ProviderType]string{
			ProviderGemini: cfg.Gemini.Thinking,
			ProviderClaude: cfg.Claude.Thinking,
		},
		limiters: limiters,
	}

	logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Dur("timeout", service.timeout).
		Msg("LLM service initialized")

	return service, nil
}

// buildLimiters constructs one rate limiter per provider from the configured
// minimum call intervals. A zero interval yields an unbounded limiter.
func buildLimiters(cfg *common.Config) (map[ProviderType]*rate.Limiter, error) {
	intervals := map[ProviderType]string{
		ProviderGemini: cfg.Gemini.RateLimit,
		ProviderClaude: cfg.Claude.RateLimit,
	}

	limiters := make(map[ProviderType]*rate.Limiter, len(intervals))
	for provider, value := range intervals {
		if value == "" {
			limiters[provider] = rate.NewLimiter(rate.Inf, 1)
			continue
		}
		interval, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit '%s' for provider '%s': %w", value, provider, err)
		}
		if interval <= 0 {
			limiters[provider] = rate.NewLimiter(rate.Inf, 1)
			continue
		}
		limiters[provider] = rate.NewLimiter(rate.Every(interval), 1)
	}

	return limiters, nil
}

// Invoke sends the conversation to the configured provider and returns the
// response text.
func (s *Service) Invoke(ctx context.Context, messages []interfaces.Message) (string, error) {
	return s.generate(ctx, messages, AuditOpChat, false)
}

// InvokeJSON sends the conversation requesting a JSON object response.
// The returned text may still carry markdown fences on some providers, so
// callers parse through common.CleanMarkdownFences.
func (s *Service) InvokeJSON(ctx context.Context, messages []interfaces.Message) (string, error) {
	return s.generate(ctx, messages, AuditOpChatJSON, true)
}

// ModelName identifies the configured model, recorded in run metadata.
func (s *Service) ModelName() string {
	return s.model
}

// Close releases provider resources
func (s *Service) Close() error {
	return s.factory.Close()
}

// generate runs one rate-limited, audited provider call
func (s *Service) generate(ctx context.Context, messages []interfaces.Message, operation string, jsonOutput bool) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}

	provider := s.factory.DetectProvider(s.model)

	if limiter := s.limiters[provider]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	request := &ContentRequest{
		Messages:      messages,
		Model:         s.model,
		ThinkingLevel: s.thinking[provider],
		JSONOutput:    jsonOutput,
	}

	start := time.Now()
	response, err := s.factory.GenerateContent(timeoutCtx, request)
	duration := time.Since(start)

	call := AuditCall{
		Provider:  provider,
		Model:     s.model,
		Operation: operation,
		Success:   err == nil,
		Duration:  duration,
		Err:       err,
		Prompt:    firstUserContent(messages),
	}
	if response != nil {
		call.ResponseChars = common.RuneLen(response.Text)
	}
	// The audit write must survive run cancellation, otherwise failed calls
	// would be the ones missing from the trail.
	if auditErr := s.audit.LogCall(context.WithoutCancel(ctx), call); auditErr != nil {
		s.logger.Warn().Err(auditErr).Msg("Failed to record LLM call in audit trail")
	}

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("operation", operation).
			Int("prompt_chars", promptChars(messages)).
			Msg("LLM invocation failed")
		return "", fmt.Errorf("LLM invocation failed: %w", err)
	}

	s.logger.Debug().
		Str("operation", operation).
		Int("prompt_chars", promptChars(messages)).
		Int("response_chars", call.ResponseChars).
		Dur("duration", duration).
		Msg("LLM invocation completed")

	return response.Text, nil
}
