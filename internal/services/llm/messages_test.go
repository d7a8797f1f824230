package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

func TestConvertMessagesToClaude(t *testing.T) {
	t.Run("empty messages rejected", func(t *testing.T) {
		_, _, err := convertMessagesToClaude(nil)
		assert.Error(t, err)
	})

	t.Run("requires a user message", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleSystem, Content: "you are an analyst"},
		}
		_, _, err := convertMessagesToClaude(messages)
		assert.Error(t, err)
	})

	t.Run("system message extracted", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleSystem, Content: "you are an analyst"},
			{Role: interfaces.RoleUser, Content: "分析这家公司"},
		}
		claudeMessages, systemText, err := convertMessagesToClaude(messages)
		require.NoError(t, err)
		assert.Equal(t, "you are an analyst", systemText)
		assert.Len(t, claudeMessages, 1)
	})

	t.Run("only first system message kept", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleSystem, Content: "first"},
			{Role: interfaces.RoleSystem, Content: "second"},
			{Role: interfaces.RoleUser, Content: "question"},
		}
		_, systemText, err := convertMessagesToClaude(messages)
		require.NoError(t, err)
		assert.Equal(t, "first", systemText)
	})

	t.Run("conversation preserved in order", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleUser, Content: "question"},
			{Role: interfaces.RoleAssistant, Content: "answer"},
			{Role: interfaces.RoleUser, Content: "followup"},
		}
		claudeMessages, systemText, err := convertMessagesToClaude(messages)
		require.NoError(t, err)
		assert.Empty(t, systemText)
		assert.Len(t, claudeMessages, 3)
	})
}

func TestConvertMessagesToGemini(t *testing.T) {
	t.Run("empty messages rejected", func(t *testing.T) {
		_, _, err := convertMessagesToGemini(nil)
		assert.Error(t, err)
	})

	t.Run("requires a user message", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleAssistant, Content: "hello"},
		}
		_, _, err := convertMessagesToGemini(messages)
		assert.Error(t, err)
	})

	t.Run("system message extracted", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleSystem, Content: "you are an analyst"},
			{Role: interfaces.RoleUser, Content: "分析这家公司"},
		}
		contents, systemText, err := convertMessagesToGemini(messages)
		require.NoError(t, err)
		assert.Equal(t, "you are an analyst", systemText)
		require.Len(t, contents, 1)
		assert.Equal(t, "user", contents[0].Role)
	})

	t.Run("assistant mapped to model role", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: interfaces.RoleUser, Content: "question"},
			{Role: interfaces.RoleAssistant, Content: "answer"},
		}
		contents, _, err := convertMessagesToGemini(messages)
		require.NoError(t, err)
		require.Len(t, contents, 2)
		assert.Equal(t, "user", contents[0].Role)
		assert.Equal(t, "model", contents[1].Role)
	})

	t.Run("unknown role defaults to user", func(t *testing.T) {
		messages := []interfaces.Message{
			{Role: "tool", Content: "result"},
			{Role: interfaces.RoleUser, Content: "question"},
		}
		contents, _, err := convertMessagesToGemini(messages)
		require.NoError(t, err)
		require.Len(t, contents, 2)
		assert.Equal(t, "user", contents[0].Role)
	})
}

func TestPromptChars(t *testing.T) {
	messages := []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: "sys"},
		{Role: interfaces.RoleUser, Content: "hello"},
	}
	assert.Equal(t, 8, promptChars(messages))
	assert.Equal(t, 0, promptChars(nil))
}

func TestFirstUserContent(t *testing.T) {
	messages := []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: "sys"},
		{Role: interfaces.RoleUser, Content: "first"},
		{Role: interfaces.RoleUser, Content: "second"},
	}
	assert.Equal(t, "first", firstUserContent(messages))
	assert.Equal(t, "", firstUserContent(nil))
}

func TestUserMessage(t *testing.T) {
	messages := interfaces.UserMessage("分析这家公司")
	require.Len(t, messages, 1)
	assert.Equal(t, interfaces.RoleUser, messages[0].Role)
	assert.Equal(t, "分析这家公司", messages[0].Content)
}
