// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package translate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/openai"
)

const testModelID = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"

func fullOptions() Options {
	return Options{EnableVision: true, EnableToolUse: true, EnableThinking: true}
}

func textMessage(role, text string) openai.ChatMessage {
	raw, _ := json.Marshal(text)
	return openai.ChatMessage{Role: role, Content: raw}
}

func floatPtr(f float64) *float64 { return &f }

func TestSystemMessagesHoisted(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{
			textMessage("system", "Be terse."),
			textMessage("user", "Hi"),
			textMessage("system", "Answer in French."),
		},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	require.Len(t, in.System, 2)
	first := in.System[0].(*bedrocktypes.SystemContentBlockMemberText)
	second := in.System[1].(*bedrocktypes.SystemContentBlockMemberText)
	assert.Equal(t, "Be terse.", first.Value)
	assert.Equal(t, "Answer in French.", second.Value)

	require.Len(t, in.Messages, 1)
	assert.Equal(t, bedrocktypes.ConversationRoleUser, in.Messages[0].Role)
}

func TestToolRoleBecomesToolResult(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{
			textMessage("user", "Weather in Tokyo?"),
			{
				Role: "assistant",
				ToolCalls: []openai.ToolCall{{
					ID:   "tu_1",
					Type: "function",
					Function: openai.FunctionCall{
						Name:      "get_weather",
						Arguments: `{"location":"Tokyo"}`,
					},
				}},
			},
			{Role: "tool", ToolCallID: "tu_1", Content: json.RawMessage(`"22C"`)},
		},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)
	require.Len(t, in.Messages, 3)

	assistant := in.Messages[1]
	assert.Equal(t, bedrocktypes.ConversationRoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 1)
	toolUse := assistant.Content[0].(*bedrocktypes.ContentBlockMemberToolUse)
	assert.Equal(t, "tu_1", *toolUse.Value.ToolUseId)
	assert.Equal(t, "get_weather", *toolUse.Value.Name)
	raw, err := toolUse.Value.Input.MarshalSmithyDocument()
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"Tokyo"}`, string(raw))

	result := in.Messages[2]
	assert.Equal(t, bedrocktypes.ConversationRoleUser, result.Role)
	require.Len(t, result.Content, 1)
	tr := result.Content[0].(*bedrocktypes.ContentBlockMemberToolResult)
	assert.Equal(t, "tu_1", *tr.Value.ToolUseId)
	require.Len(t, tr.Value.Content, 1)
	assert.Equal(t, "22C", tr.Value.Content[0].(*bedrocktypes.ToolResultContentBlockMemberText).Value)
}

func TestAssistantTextPrecedesToolUses(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{
			textMessage("user", "hi"),
			{
				Role:    "assistant",
				Content: json.RawMessage(`"Let me check."`),
				ToolCalls: []openai.ToolCall{
					{ID: "a", Type: "function", Function: openai.FunctionCall{Name: "f1", Arguments: `{}`}},
					{ID: "b", Type: "function", Function: openai.FunctionCall{Name: "f2", Arguments: `{"x":1}`}},
				},
			},
		},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	blocks := in.Messages[1].Content
	require.Len(t, blocks, 3)
	assert.Equal(t, "Let me check.", blocks[0].(*bedrocktypes.ContentBlockMemberText).Value)
	assert.Equal(t, "a", *blocks[1].(*bedrocktypes.ContentBlockMemberToolUse).Value.ToolUseId)
	assert.Equal(t, "b", *blocks[2].(*bedrocktypes.ContentBlockMemberToolUse).Value.ToolUseId)
}

func TestBadToolArgumentsRejected(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{
			{
				Role: "assistant",
				ToolCalls: []openai.ToolCall{{
					ID: "tu_1", Type: "function",
					Function: openai.FunctionCall{Name: "f", Arguments: `{not json`},
				}},
			},
		},
	}
	_, err := Request(context.Background(), req, testModelID, fullOptions())
	require.Error(t, err)
	ae := apierr.From(err)
	assert.Equal(t, apierr.KindInvalidRequest, ae.Kind)
	assert.Equal(t, "tool_calls.arguments", ae.Param)
}

func TestAdjacentSameRoleCoalesced(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{
			textMessage("user", "first"),
			textMessage("user", "second"),
			textMessage("assistant", "reply"),
			textMessage("user", "third"),
		},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	require.Len(t, in.Messages, 3)
	first := in.Messages[0]
	require.Len(t, first.Content, 2)
	assert.Equal(t, "first", first.Content[0].(*bedrocktypes.ContentBlockMemberText).Value)
	assert.Equal(t, "second", first.Content[1].(*bedrocktypes.ContentBlockMemberText).Value)
}

func TestSamplingValidation(t *testing.T) {
	base := func() *openai.ChatCompletionRequest {
		return &openai.ChatCompletionRequest{
			Model:    "claude-sonnet-4-5",
			Messages: []openai.ChatMessage{textMessage("user", "hi")},
		}
	}

	req := base()
	req.Temperature = floatPtr(2.5)
	_, err := Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, "temperature", apierr.From(err).Param)

	req = base()
	req.TopP = floatPtr(0)
	_, err = Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, "top_p", apierr.From(err).Param)

	req = base()
	req.MaxTokens = -1
	_, err = Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, "max_tokens", apierr.From(err).Param)

	req = base()
	req.Messages = nil
	_, err = Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, "messages", apierr.From(err).Param)
}

func TestInferenceConfig(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:       "claude-sonnet-4-5",
		Messages:    []openai.ChatMessage{textMessage("user", "hi")},
		Temperature: floatPtr(0.7),
		TopP:        floatPtr(0.9),
		MaxTokens:   256,
		Stop:        openai.StringList{"a", "b", "c", "d", "e"},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	cfg := in.InferenceConfig
	require.NotNil(t, cfg)
	assert.Equal(t, int32(256), *cfg.MaxTokens)
	assert.InDelta(t, 0.7, float64(*cfg.Temperature), 1e-6)
	assert.InDelta(t, 0.9, float64(*cfg.TopP), 1e-6)
	// Upstream accepts at most four stop sequences.
	assert.Equal(t, []string{"a", "b", "c", "d"}, cfg.StopSequences)
}

func TestDefaultMaxTokens(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{textMessage("user", "hi")},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)
	assert.Equal(t, int32(defaultMaxTokens), *in.InferenceConfig.MaxTokens)
	assert.Nil(t, in.InferenceConfig.Temperature)
	assert.Empty(t, in.InferenceConfig.StopSequences)
}

func TestDataURLImage(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	content, _ := json.Marshal([]openai.ContentPart{
		{Type: "text", Text: "What is this?"},
		{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}},
	})
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{{Role: "user", Content: content}},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	blocks := in.Messages[0].Content
	require.Len(t, blocks, 2)
	img := blocks[1].(*bedrocktypes.ContentBlockMemberImage)
	assert.Equal(t, bedrocktypes.ImageFormatPng, img.Value.Format)
	src := img.Value.Source.(*bedrocktypes.ImageSourceMemberBytes)
	assert.Equal(t, payload, src.Value)
}

func TestUnsupportedImageMime(t *testing.T) {
	content, _ := json.Marshal([]openai.ContentPart{
		{Type: "image_url", ImageURL: &openai.ImageURL{URL: "data:image/tiff;base64,AAAA"}},
	})
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{{Role: "user", Content: content}},
	}
	_, err := Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, apierr.KindInvalidRequest, apierr.From(err).Kind)
}

func TestVisionGate(t *testing.T) {
	content, _ := json.Marshal([]openai.ContentPart{
		{Type: "image_url", ImageURL: &openai.ImageURL{URL: "data:image/png;base64,AAAA"}},
	})
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{{Role: "user", Content: content}},
	}
	opts := fullOptions()
	opts.EnableVision = false
	_, err := Request(context.Background(), req, testModelID, opts)
	assert.Equal(t, apierr.KindInvalidRequest, apierr.From(err).Kind)
}

func weatherTool() openai.Tool {
	return openai.Tool{
		Type: "function",
		Function: openai.FunctionDef{
			Name:        "get_weather",
			Description: "Look up current weather",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"location"},
			},
		},
	}
}

func TestToolConfig(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{textMessage("user", "Weather in Tokyo?")},
		Tools:    []openai.Tool{weatherTool()},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	require.NotNil(t, in.ToolConfig)
	require.Len(t, in.ToolConfig.Tools, 1)
	spec := in.ToolConfig.Tools[0].(*bedrocktypes.ToolMemberToolSpec)
	assert.Equal(t, "get_weather", *spec.Value.Name)
	assert.Equal(t, "Look up current weather", *spec.Value.Description)
	assert.Nil(t, in.ToolConfig.ToolChoice)
}

func TestToolChoiceVariants(t *testing.T) {
	base := func(choice interface{}) *openai.ChatCompletionRequest {
		return &openai.ChatCompletionRequest{
			Model:      "claude-sonnet-4-5",
			Messages:   []openai.ChatMessage{textMessage("user", "hi")},
			Tools:      []openai.Tool{weatherTool()},
			ToolChoice: choice,
		}
	}

	in, err := Request(context.Background(), base("auto"), testModelID, fullOptions())
	require.NoError(t, err)
	assert.IsType(t, &bedrocktypes.ToolChoiceMemberAuto{}, in.ToolConfig.ToolChoice)

	in, err = Request(context.Background(), base("required"), testModelID, fullOptions())
	require.NoError(t, err)
	assert.IsType(t, &bedrocktypes.ToolChoiceMemberAny{}, in.ToolConfig.ToolChoice)

	in, err = Request(context.Background(), base("none"), testModelID, fullOptions())
	require.NoError(t, err)
	assert.Nil(t, in.ToolConfig)

	in, err = Request(context.Background(), base(map[string]interface{}{
		"type":     "function",
		"function": map[string]interface{}{"name": "get_weather"},
	}), testModelID, fullOptions())
	require.NoError(t, err)
	tc := in.ToolConfig.ToolChoice.(*bedrocktypes.ToolChoiceMemberTool)
	assert.Equal(t, "get_weather", *tc.Value.Name)

	_, err = Request(context.Background(), base("sometimes"), testModelID, fullOptions())
	assert.Equal(t, "tool_choice", apierr.From(err).Param)
}

func TestToolUseGate(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{textMessage("user", "hi")},
		Tools:    []openai.Tool{weatherTool()},
	}
	opts := fullOptions()
	opts.EnableToolUse = false
	_, err := Request(context.Background(), req, testModelID, opts)
	assert.Equal(t, "tools", apierr.From(err).Param)
}

func TestThinking(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{textMessage("user", "hi")},
		Thinking: &openai.Thinking{Type: "enabled", BudgetTokens: 1024},
	}
	in, err := Request(context.Background(), req, testModelID, fullOptions())
	require.NoError(t, err)

	require.NotNil(t, in.AdditionalModelRequestFields)
	raw, err := in.AdditionalModelRequestFields.MarshalSmithyDocument()
	require.NoError(t, err)
	assert.JSONEq(t, `{"thinking":{"type":"enabled","budget_tokens":1024}}`, string(raw))
}

func TestThinkingTemperatureConflict(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:       "claude-sonnet-4-5",
		Messages:    []openai.ChatMessage{textMessage("user", "hi")},
		Thinking:    &openai.Thinking{Type: "enabled", BudgetTokens: 1024},
		Temperature: floatPtr(0.5),
	}
	_, err := Request(context.Background(), req, testModelID, fullOptions())
	assert.Equal(t, "temperature", apierr.From(err).Param)
}

func TestThinkingGate(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []openai.ChatMessage{textMessage("user", "hi")},
		Thinking: &openai.Thinking{Type: "enabled", BudgetTokens: 1024},
	}
	opts := fullOptions()
	opts.EnableThinking = false
	_, err := Request(context.Background(), req, testModelID, opts)
	assert.Equal(t, "thinking", apierr.From(err).Param)
}
