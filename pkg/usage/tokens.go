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
package usage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teradata-labs/relay/pkg/openai"
)

// Token estimation for failure-path usage rows, where the upstream never
// reported usage. cl100k_base is close enough for accounting.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// EstimateTokens approximates the token count of text. Falls back to the
// rough chars/4 heuristic if the encoder is unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := getEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// EstimatePromptTokens approximates the prompt size of a request from its
// message text content.
func EstimatePromptTokens(req *openai.ChatCompletionRequest) int {
	total := 0
	for i := range req.Messages {
		if text, ok := req.Messages[i].Text(); ok {
			total += EstimateTokens(text)
		}
		for _, tc := range req.Messages[i].ToolCalls {
			total += EstimateTokens(tc.Function.Arguments)
		}
	}
	return total
}
