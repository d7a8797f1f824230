package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "429 status",
			err:      errors.New("Error 429, Message: too many requests"),
			expected: true,
		},
		{
			name:     "resource exhausted",
			err:      errors.New("Status: RESOURCE_EXHAUSTED"),
			expected: true,
		},
		{
			name:     "quota exceeded",
			err:      errors.New("quota exceeded for metric"),
			expected: true,
		},
		{
			name:     "claude rate limit",
			err:      errors.New("rate_limit_error: request rate exceeded"),
			expected: true,
		},
		{
			name:     "claude overloaded",
			err:      errors.New("overloaded_error: the API is temporarily overloaded"),
			expected: true,
		},
		{
			name:     "generic error",
			err:      errors.New("connection refused"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected time.Duration
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: 0,
		},
		{
			name:     "no delay in message",
			err:      errors.New("Error 429, Message: too many requests"),
			expected: 0,
		},
		{
			name:     "gemini please retry format",
			err:      errors.New("Error 429, Message: You exceeded your quota. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"),
			expected: time.Duration(45.387061394 * float64(time.Second)),
		},
		{
			name:     "retryDelay format",
			err:      errors.New("retryDelay: 30s"),
			expected: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay := ExtractRetryDelay(tt.err)
			assert.InDelta(t, tt.expected.Seconds(), delay.Seconds(), 0.001)
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	t.Run("first attempt uses initial backoff", func(t *testing.T) {
		assert.Equal(t, cfg.InitialBackoff, cfg.CalculateBackoff(0, 0))
	})

	t.Run("backoff grows with attempts", func(t *testing.T) {
		first := cfg.CalculateBackoff(0, 0)
		second := cfg.CalculateBackoff(1, 0)
		assert.Greater(t, second, first)
	})

	t.Run("backoff is capped at max", func(t *testing.T) {
		assert.Equal(t, cfg.MaxBackoff, cfg.CalculateBackoff(10, 0))
	})

	t.Run("api delay used as base with buffer", func(t *testing.T) {
		backoff := cfg.CalculateBackoff(0, 20*time.Second)
		assert.Equal(t, 25*time.Second, backoff)
	})

	t.Run("api delay still capped at max", func(t *testing.T) {
		backoff := cfg.CalculateBackoff(0, 10*time.Minute)
		assert.Equal(t, cfg.MaxBackoff, backoff)
	})
}

func TestNewDefaultRetryConfig(t *testing.T) {
	cfg := NewDefaultRetryConfig()
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultInitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, DefaultBackoffMultiplier, cfg.BackoffMultiplier)
}
