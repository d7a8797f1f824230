package llm

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// NewLLMService creates the LLM service and its audit logger from configuration.
// API keys are resolved lazily on first call, so construction succeeds without
// credentials; missing keys fail the first invocation instead of startup.
func NewLLMService(
	cfg *common.Config,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) (interfaces.LLMService, AuditLogger, error) {
	if err := validateProviderConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid LLM configuration: %w", err)
	}

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Bool("audit", cfg.LLM.Audit.Enabled).
		Msg("Initializing LLM service")

	var audit AuditLogger = NewNullAuditLogger()
	if cfg.LLM.Audit.Enabled {
		if kvStorage == nil {
			logger.Warn().Msg("Audit enabled but no KV storage available, disabling audit trail")
		} else {
			audit = NewKVAuditLogger(kvStorage, &cfg.LLM.Audit, logger)
		}
	}

	service, err := NewService(cfg, kvStorage, audit, logger)
	if err != nil {
		audit.Close()
		return nil, nil, fmt.Errorf("failed to create LLM service: %w", err)
	}

	return service, audit, nil
}

// validateProviderConfig validates the configuration of the default provider
func validateProviderConfig(cfg *common.Config) error {
	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		return validateGeminiConfig(&cfg.Gemini)
	case common.LLMProviderClaude:
		return validateClaudeConfig(&cfg.Claude)
	default:
		return fmt.Errorf("unsupported default provider '%s': must be 'gemini' or 'claude'", cfg.LLM.DefaultProvider)
	}
}

// validateGeminiConfig validates the Gemini provider configuration
func validateGeminiConfig(cfg *common.GeminiConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}

	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			return fmt.Errorf("invalid gemini.timeout '%s': %w", cfg.Timeout, err)
		}
	}

	if cfg.RateLimit != "" {
		if _, err := time.ParseDuration(cfg.RateLimit); err != nil {
			return fmt.Errorf("invalid gemini.rate_limit '%s': %w", cfg.RateLimit, err)
		}
	}

	return nil
}

// validateClaudeConfig validates the Claude provider configuration
func validateClaudeConfig(cfg *common.ClaudeConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("claude.model is required")
	}

	if cfg.MaxTokens <= 0 {
		return fmt.Errorf("claude.max_tokens must be greater than 0, got %d", cfg.MaxTokens)
	}

	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			return fmt.Errorf("invalid claude.timeout '%s': %w", cfg.Timeout, err)
		}
	}

	if cfg.RateLimit != "" {
		if _, err := time.ParseDuration(cfg.RateLimit); err != nil {
			return fmt.Errorf("invalid claude.rate_limit '%s': %w", cfg.RateLimit, err)
		}
	}

	return nil
}
