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
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/openai"
)

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewCompletionID mints a chatcmpl- id with 24 base62 characters.
func NewCompletionID() string {
	var b strings.Builder
	b.WriteString("chatcmpl-")
	for i := 0; i < 24; i++ {
		b.WriteByte(base62[rand.IntN(len(base62))])
	}
	return b.String()
}

// mapStopReason normalizes upstream stop reasons to OpenAI finish reasons.
func mapStopReason(reason bedrocktypes.StopReason) string {
	switch reason {
	case bedrocktypes.StopReasonEndTurn, bedrocktypes.StopReasonStopSequence:
		return "stop"
	case bedrocktypes.StopReasonMaxTokens:
		return "length"
	case bedrocktypes.StopReasonToolUse:
		return "tool_calls"
	case bedrocktypes.StopReasonContentFiltered, bedrocktypes.StopReasonGuardrailIntervened:
		return "content_filter"
	default:
		return "stop"
	}
}

// Response converts a unary Converse result into an OpenAI completion.
// clientModelID is echoed back verbatim; the resolved upstream id stays
// internal.
func Response(out *bedrockruntime.ConverseOutput, clientModelID string) (*openai.ChatCompletionResponse, error) {
	msgOut, ok := out.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, apierr.New(apierr.KindUpstreamServer, "upstream returned no message output")
	}

	var content strings.Builder
	var thinking strings.Builder
	var toolCalls []openai.ToolCall

	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *bedrocktypes.ContentBlockMemberText:
			content.WriteString(b.Value)
		case *bedrocktypes.ContentBlockMemberToolUse:
			args := "{}"
			if b.Value.Input != nil {
				raw, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, apierr.Wrap(apierr.KindUpstreamServer, err, "upstream tool input is not serializable")
				}
				args = string(raw)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   deref(b.Value.ToolUseId),
				Type: "function",
				Function: openai.FunctionCall{
					Name:      deref(b.Value.Name),
					Arguments: args,
				},
			})
		case *bedrocktypes.ContentBlockMemberReasoningContent:
			if rt, ok := b.Value.(*bedrocktypes.ReasoningContentBlockMemberReasoningText); ok {
				thinking.WriteString(deref(rt.Value.Text))
			}
		}
	}

	msg := openai.AssistantMessage{
		Role:      "assistant",
		Thinking:  thinking.String(),
		ToolCalls: toolCalls,
	}
	// content is null (not "") when the reply is tool calls only.
	if content.Len() > 0 || len(toolCalls) == 0 {
		text := content.String()
		msg.Content = &text
	}

	resp := &openai.ChatCompletionResponse{
		ID:      NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   clientModelID,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: mapStopReason(out.StopReason),
		}},
	}
	if out.Usage != nil {
		resp.Usage = openai.ChatCompletionUsage{
			PromptTokens:     int(derefInt32(out.Usage.InputTokens)),
			CompletionTokens: int(derefInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(derefInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
