package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "shorter than max unchanged",
			input:    "hello",
			max:      10,
			expected: "hello",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			max:      5,
			expected: "hello",
		},
		{
			name:     "ascii truncated",
			input:    "hello world",
			max:      5,
			expected: "hello",
		},
		{
			name:     "chinese counted by rune not byte",
			input:    "货币资金期末余额",
			max:      4,
			expected: "货币资金",
		},
		{
			name:     "zero max returns empty",
			input:    "hello",
			max:      0,
			expected: "",
		},
		{
			name:     "empty input",
			input:    "",
			max:      5,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateRunes(tt.input, tt.max)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateRunesPreservesValidUTF8(t *testing.T) {
	input := strings.Repeat("财务分析", 100)
	for max := 1; max < 20; max++ {
		result := TruncateRunes(input, max)
		assert.Equal(t, max, RuneLen(result))
		assert.True(t, strings.HasPrefix(input, result))
	}
}

func TestSnippetRunes(t *testing.T) {
	assert.Equal(t, "短文本", SnippetRunes("短文本", 10, "..."))
	assert.Equal(t, "货币资金...", SnippetRunes("货币资金期末余额", 4, "..."))
	assert.Equal(t, "exact", SnippetRunes("exact", 5, "..."))
}

func TestCleanMarkdownFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain json untouched",
			input:    `{"relevant_chunk_ids": ["a"]}`,
			expected: `{"relevant_chunk_ids": ["a"]}`,
		},
		{
			name:     "json fence removed",
			input:    "```json\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "uppercase hint removed",
			input:    "```JSON\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "bare fence removed",
			input:    "```\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "surrounding whitespace stripped",
			input:    "  ```json\n{\"key\": \"value\"}\n```  ",
			expected: `{"key": "value"}`,
		},
		{
			name:     "inner backticks preserved",
			input:    "```json\n{\"code\": \"```inner```\"}\n```",
			expected: "{\"code\": \"```inner```\"}",
		},
		{
			name:     "unbalanced opening fence",
			input:    "```json\n{\"key\": \"value\"}",
			expected: `{"key": "value"}`,
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanMarkdownFences(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
