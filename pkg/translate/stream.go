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
	"time"

	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/relay/pkg/openai"
)

type blockKind int

const (
	blockText blockKind = iota
	blockToolUse
	blockThinking
)

type blockState struct {
	kind      blockKind
	toolIndex int
}

// StreamTranslator re-chunks one ConverseStream into OpenAI stream chunks.
// Chunks are emitted in strict upstream event order. The terminal chunk is
// produced by Finish once the stream ends, because Converse delivers the
// stop reason in messageStop and usage in the trailing metadata event.
type StreamTranslator struct {
	id      string
	created int64
	model   string

	roleSent      bool
	blocks        map[int32]*blockState
	nextToolIndex int

	stopReason bedrocktypes.StopReason
	usage      *bedrocktypes.TokenUsage
}

// NewStreamTranslator creates a translator for one stream. clientModelID
// is echoed on every chunk.
func NewStreamTranslator(clientModelID string) *StreamTranslator {
	return &StreamTranslator{
		id:      NewCompletionID(),
		created: time.Now().Unix(),
		model:   clientModelID,
		blocks:  make(map[int32]*blockState),
	}
}

func (t *StreamTranslator) chunk(delta openai.ChatMessageDelta) openai.ChatCompletionStreamChunk {
	return openai.ChatCompletionStreamChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []openai.ChatCompletionStreamChoice{{Index: 0, Delta: delta}},
	}
}

// Translate consumes one upstream event and returns zero or more chunks.
func (t *StreamTranslator) Translate(ev bedrocktypes.ConverseStreamOutput) []openai.ChatCompletionStreamChunk {
	switch e := ev.(type) {
	case *bedrocktypes.ConverseStreamOutputMemberMessageStart:
		t.roleSent = true
		return []openai.ChatCompletionStreamChunk{t.chunk(openai.ChatMessageDelta{Role: "assistant"})}

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
		idx := derefInt32(e.Value.ContentBlockIndex)
		if start, ok := e.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse); ok {
			state := &blockState{kind: blockToolUse, toolIndex: t.nextToolIndex}
			t.nextToolIndex++
			t.blocks[idx] = state
			return []openai.ChatCompletionStreamChunk{t.chunk(openai.ChatMessageDelta{
				ToolCalls: []openai.ToolCallDelta{{
					Index: state.toolIndex,
					ID:    deref(start.Value.ToolUseId),
					Type:  "function",
					Function: &openai.FunctionCallDelta{
						Name:      deref(start.Value.Name),
						Arguments: "",
					},
				}},
			})}
		}
		t.blocks[idx] = &blockState{kind: blockText}
		return nil

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
		return t.translateDelta(&e.Value)

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
		delete(t.blocks, derefInt32(e.Value.ContentBlockIndex))
		return nil

	case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
		t.stopReason = e.Value.StopReason
		return nil

	case *bedrocktypes.ConverseStreamOutputMemberMetadata:
		t.usage = e.Value.Usage
		return nil
	}
	return nil
}

func (t *StreamTranslator) translateDelta(ev *bedrocktypes.ContentBlockDeltaEvent) []openai.ChatCompletionStreamChunk {
	idx := derefInt32(ev.ContentBlockIndex)

	switch d := ev.Delta.(type) {
	case *bedrocktypes.ContentBlockDeltaMemberText:
		if _, ok := t.blocks[idx]; !ok {
			// Text blocks may start without a contentBlockStart event.
			t.blocks[idx] = &blockState{kind: blockText}
		}
		return []openai.ChatCompletionStreamChunk{t.chunk(openai.ChatMessageDelta{Content: d.Value})}

	case *bedrocktypes.ContentBlockDeltaMemberToolUse:
		state, ok := t.blocks[idx]
		if !ok || state.kind != blockToolUse {
			return nil
		}
		return []openai.ChatCompletionStreamChunk{t.chunk(openai.ChatMessageDelta{
			ToolCalls: []openai.ToolCallDelta{{
				Index:    state.toolIndex,
				Function: &openai.FunctionCallDelta{Arguments: deref(d.Value.Input)},
			}},
		})}

	case *bedrocktypes.ContentBlockDeltaMemberReasoningContent:
		if _, ok := t.blocks[idx]; !ok {
			t.blocks[idx] = &blockState{kind: blockThinking}
		}
		if text, ok := d.Value.(*bedrocktypes.ReasoningContentBlockDeltaMemberText); ok {
			return []openai.ChatCompletionStreamChunk{t.chunk(openai.ChatMessageDelta{Thinking: text.Value})}
		}
		return nil
	}
	return nil
}

// RoleSent reports whether the assistant-role chunk went out, which also
// means stream bytes reached the client.
func (t *StreamTranslator) RoleSent() bool {
	return t.roleSent
}

// Usage returns the captured usage, nil before the metadata event.
func (t *StreamTranslator) Usage() *openai.ChatCompletionUsage {
	if t.usage == nil {
		return nil
	}
	return &openai.ChatCompletionUsage{
		PromptTokens:     int(derefInt32(t.usage.InputTokens)),
		CompletionTokens: int(derefInt32(t.usage.OutputTokens)),
		TotalTokens:      int(derefInt32(t.usage.TotalTokens)),
	}
}

// Finish produces the terminal chunk carrying finish_reason and, when the
// metadata event arrived, usage. The caller emits [DONE] afterwards.
func (t *StreamTranslator) Finish() openai.ChatCompletionStreamChunk {
	c := openai.ChatCompletionStreamChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			FinishReason: mapStopReason(t.stopReason),
		}},
		Usage: t.Usage(),
	}
	return c
}

// Fail produces the synthetic chunk for an abnormal upstream termination.
// The caller also emits the out-of-band error event and [DONE].
func (t *StreamTranslator) Fail() openai.ChatCompletionStreamChunk {
	return openai.ChatCompletionStreamChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			FinishReason: "error",
		}},
	}
}
