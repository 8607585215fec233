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

// Package translate converts between the OpenAI chat-completions wire shape
// and the Bedrock Converse shape, in both directions.
package translate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/openai"
)

// Upstream caps.
const (
	maxStopSequences  = 4
	defaultMaxTokens  = 4096
	maxImageBytes     = 10 << 20
	imageFetchTimeout = 10 * time.Second
)

// ImageFetcher resolves http(s) image URLs to raw bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Options gates optional request features and supplies collaborators.
type Options struct {
	EnableVision   bool
	EnableToolUse  bool
	EnableThinking bool
	// Fetcher resolves remote image URLs. Nil disables remote fetching;
	// data URLs still work.
	Fetcher ImageFetcher
}

// Request builds a Bedrock ConverseInput from a validated OpenAI request
// and a resolved upstream model id. Pure except for remote image fetches.
func Request(ctx context.Context, req *openai.ChatCompletionRequest, upstreamModelID string, opts Options) (*bedrockruntime.ConverseInput, error) {
	if err := validateSampling(req); err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, apierr.New(apierr.KindInvalidRequest, "messages must not be empty").WithParam("messages")
	}
	if len(req.Tools) > 0 && !opts.EnableToolUse {
		return nil, apierr.New(apierr.KindInvalidRequest, "tool use is disabled on this gateway").WithParam("tools")
	}
	if req.Thinking != nil && !opts.EnableThinking {
		return nil, apierr.New(apierr.KindInvalidRequest, "extended thinking is disabled on this gateway").WithParam("thinking")
	}
	if req.Thinking.Enabled() {
		if req.Thinking.BudgetTokens <= 0 {
			return nil, apierr.New(apierr.KindInvalidRequest, "thinking.budget_tokens must be a positive integer").WithParam("thinking.budget_tokens")
		}
		if req.Temperature != nil {
			return nil, apierr.New(apierr.KindInvalidRequest, "temperature cannot be set when thinking is enabled").WithParam("temperature")
		}
	}

	system, messages, err := convertMessages(ctx, req.Messages, opts)
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(upstreamModelID),
		Messages:        messages,
		System:          system,
		InferenceConfig: buildInferenceConfig(req),
	}

	toolConfig, err := buildToolConfig(req)
	if err != nil {
		return nil, err
	}
	in.ToolConfig = toolConfig

	if req.Thinking.Enabled() {
		in.AdditionalModelRequestFields = document.NewLazyDocument(map[string]interface{}{
			"thinking": map[string]interface{}{
				"type":          "enabled",
				"budget_tokens": req.Thinking.BudgetTokens,
			},
		})
	}

	return in, nil
}

func validateSampling(req *openai.ChatCompletionRequest) error {
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return apierr.New(apierr.KindInvalidRequest, "temperature must be between 0 and 2").WithParam("temperature")
	}
	if req.TopP != nil && (*req.TopP <= 0 || *req.TopP > 1) {
		return apierr.New(apierr.KindInvalidRequest, "top_p must be in (0, 1]").WithParam("top_p")
	}
	if req.MaxTokens < 0 {
		return apierr.New(apierr.KindInvalidRequest, "max_tokens must be at least 1").WithParam("max_tokens")
	}
	return nil
}

func buildInferenceConfig(req *openai.ChatCompletionRequest) *bedrocktypes.InferenceConfiguration {
	cfg := &bedrocktypes.InferenceConfiguration{}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	cfg.MaxTokens = aws.Int32(int32(maxTokens))

	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = aws.Float32(float32(*req.TopP))
	}
	if len(req.Stop) > 0 {
		stops := req.Stop
		if len(stops) > maxStopSequences {
			stops = stops[:maxStopSequences]
		}
		cfg.StopSequences = stops
	}
	return cfg
}

// convertMessages partitions system messages into Converse system blocks
// and rewrites the rest into Converse messages, coalescing adjacent
// same-role messages.
func convertMessages(ctx context.Context, msgs []openai.ChatMessage, opts Options) ([]bedrocktypes.SystemContentBlock, []bedrocktypes.Message, error) {
	var system []bedrocktypes.SystemContentBlock
	var out []bedrocktypes.Message

	appendBlocks := func(role bedrocktypes.ConversationRole, blocks []bedrocktypes.ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, bedrocktypes.Message{Role: role, Content: blocks})
	}

	for i, msg := range msgs {
		switch msg.Role {
		case "system":
			text, ok := msg.Text()
			if !ok {
				return nil, nil, apierr.New(apierr.KindInvalidRequest,
					"system message content must be a string").WithParam(fmt.Sprintf("messages[%d].content", i))
			}
			system = append(system, &bedrocktypes.SystemContentBlockMemberText{Value: text})

		case "tool":
			text, _ := msg.Text()
			if msg.ToolCallID == "" {
				return nil, nil, apierr.New(apierr.KindInvalidRequest,
					"tool message requires tool_call_id").WithParam(fmt.Sprintf("messages[%d].tool_call_id", i))
			}
			block := &bedrocktypes.ContentBlockMemberToolResult{
				Value: bedrocktypes.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content: []bedrocktypes.ToolResultContentBlock{
						&bedrocktypes.ToolResultContentBlockMemberText{Value: text},
					},
					Status: bedrocktypes.ToolResultStatusSuccess,
				},
			}
			appendBlocks(bedrocktypes.ConversationRoleUser, []bedrocktypes.ContentBlock{block})

		case "assistant":
			blocks, err := convertAssistantMessage(&msg, i)
			if err != nil {
				return nil, nil, err
			}
			appendBlocks(bedrocktypes.ConversationRoleAssistant, blocks)

		case "user":
			blocks, err := convertUserMessage(ctx, &msg, i, opts)
			if err != nil {
				return nil, nil, err
			}
			appendBlocks(bedrocktypes.ConversationRoleUser, blocks)

		default:
			return nil, nil, apierr.New(apierr.KindInvalidRequest,
				"unsupported message role %q", msg.Role).WithParam(fmt.Sprintf("messages[%d].role", i))
		}
	}

	return system, out, nil
}

// convertAssistantMessage emits the text block (if any) followed by one
// toolUse block per tool call, in order.
func convertAssistantMessage(msg *openai.ChatMessage, idx int) ([]bedrocktypes.ContentBlock, error) {
	var blocks []bedrocktypes.ContentBlock
	if text, ok := msg.Text(); ok && text != "" {
		blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: text})
	}
	for _, tc := range msg.ToolCalls {
		var input map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, apierr.New(apierr.KindInvalidRequest,
					"tool call %q has non-JSON arguments", tc.ID).WithParam("tool_calls.arguments")
			}
		} else {
			input = map[string]interface{}{}
		}
		blocks = append(blocks, &bedrocktypes.ContentBlockMemberToolUse{
			Value: bedrocktypes.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Function.Name),
				Input:     document.NewLazyDocument(input),
			},
		})
	}
	if len(blocks) == 0 {
		return nil, apierr.New(apierr.KindInvalidRequest,
			"assistant message must carry content or tool_calls").WithParam(fmt.Sprintf("messages[%d]", idx))
	}
	return blocks, nil
}

func convertUserMessage(ctx context.Context, msg *openai.ChatMessage, idx int, opts Options) ([]bedrocktypes.ContentBlock, error) {
	if text, ok := msg.Text(); ok {
		return []bedrocktypes.ContentBlock{&bedrocktypes.ContentBlockMemberText{Value: text}}, nil
	}

	parts, err := msg.Parts()
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest,
			"message content must be a string or an array of content parts").WithParam(fmt.Sprintf("messages[%d].content", idx))
	}

	var blocks []bedrocktypes.ContentBlock
	for j, part := range parts {
		param := fmt.Sprintf("messages[%d].content[%d]", idx, j)
		switch part.Type {
		case "text":
			blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: part.Text})
		case "image_url":
			if !opts.EnableVision {
				return nil, apierr.New(apierr.KindInvalidRequest, "vision input is disabled on this gateway").WithParam(param)
			}
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				return nil, apierr.New(apierr.KindInvalidRequest, "image_url part requires a url").WithParam(param)
			}
			block, err := convertImage(ctx, part.ImageURL.URL, param, opts.Fetcher)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		default:
			return nil, apierr.New(apierr.KindInvalidRequest,
				"unsupported content part type %q", part.Type).WithParam(param)
		}
	}
	return blocks, nil
}

var imageFormats = map[string]bedrocktypes.ImageFormat{
	"image/jpeg": bedrocktypes.ImageFormatJpeg,
	"image/png":  bedrocktypes.ImageFormatPng,
	"image/gif":  bedrocktypes.ImageFormatGif,
	"image/webp": bedrocktypes.ImageFormatWebp,
}

func convertImage(ctx context.Context, url, param string, fetcher ImageFetcher) (bedrocktypes.ContentBlock, error) {
	if strings.HasPrefix(url, "data:") {
		return convertDataURL(url, param)
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if fetcher == nil {
			return nil, apierr.New(apierr.KindInvalidRequest, "remote image URLs are not supported, use a data URL").WithParam(param)
		}
		data, contentType, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, apierr.New(apierr.KindInvalidRequest,
				"failed to fetch image: %v", err).WithParam(param)
		}
		format, ok := imageFormats[contentType]
		if !ok {
			return nil, apierr.New(apierr.KindInvalidRequest,
				"unsupported image content type %q", contentType).WithParam(param)
		}
		return imageBlock(format, data), nil
	}
	return nil, apierr.New(apierr.KindInvalidRequest, "image url must be a data: or http(s): URL").WithParam(param)
}

func convertDataURL(url, param string) (bedrocktypes.ContentBlock, error) {
	// data:<mime>;base64,<payload>
	rest := strings.TrimPrefix(url, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return nil, apierr.New(apierr.KindInvalidRequest, "image data URL must be base64-encoded").WithParam(param)
	}
	mime := strings.TrimSuffix(meta, ";base64")
	format, ok := imageFormats[mime]
	if !ok {
		return nil, apierr.New(apierr.KindInvalidRequest,
			"unsupported image mime type %q", mime).WithParam(param)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "image payload is not valid base64").WithParam(param)
	}
	if len(data) > maxImageBytes {
		return nil, apierr.New(apierr.KindInvalidRequest, "image exceeds the 10 MiB limit").WithParam(param)
	}
	return imageBlock(format, data), nil
}

func imageBlock(format bedrocktypes.ImageFormat, data []byte) bedrocktypes.ContentBlock {
	return &bedrocktypes.ContentBlockMemberImage{
		Value: bedrocktypes.ImageBlock{
			Format: format,
			Source: &bedrocktypes.ImageSourceMemberBytes{Value: data},
		},
	}
}

// buildToolConfig converts tools and tool_choice. tool_choice "none" drops
// the tool configuration entirely.
func buildToolConfig(req *openai.ChatCompletionRequest) (*bedrocktypes.ToolConfiguration, error) {
	if len(req.Tools) == 0 {
		return nil, nil
	}
	if choice, ok := req.ToolChoice.(string); ok && choice == "none" {
		return nil, nil
	}

	cfg := &bedrocktypes.ToolConfiguration{}
	for i, tool := range req.Tools {
		if tool.Type != "function" {
			return nil, apierr.New(apierr.KindInvalidRequest,
				"unsupported tool type %q", tool.Type).WithParam(fmt.Sprintf("tools[%d].type", i))
		}
		if tool.Function.Name == "" {
			return nil, apierr.New(apierr.KindInvalidRequest, "tool function requires a name").WithParam(fmt.Sprintf("tools[%d].function.name", i))
		}
		params := tool.Function.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params)); err != nil {
			return nil, apierr.New(apierr.KindInvalidRequest,
				"tool %q parameters are not a valid JSON Schema", tool.Function.Name).
				WithParam(fmt.Sprintf("tools[%d].function.parameters", i))
		}

		spec := bedrocktypes.ToolSpecification{
			Name:        aws.String(tool.Function.Name),
			InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
		}
		if tool.Function.Description != "" {
			spec.Description = aws.String(tool.Function.Description)
		}
		cfg.Tools = append(cfg.Tools, &bedrocktypes.ToolMemberToolSpec{Value: spec})
	}

	switch choice := req.ToolChoice.(type) {
	case nil:
		// Upstream default (auto).
	case string:
		switch choice {
		case "auto":
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAuto{Value: bedrocktypes.AutoToolChoice{}}
		case "required":
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAny{Value: bedrocktypes.AnyToolChoice{}}
		default:
			return nil, apierr.New(apierr.KindInvalidRequest,
				"unsupported tool_choice %q", choice).WithParam("tool_choice")
		}
	case map[string]interface{}:
		name := specificToolName(choice)
		if name == "" {
			return nil, apierr.New(apierr.KindInvalidRequest,
				`tool_choice object must look like {"type":"function","function":{"name":...}}`).WithParam("tool_choice")
		}
		cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberTool{
			Value: bedrocktypes.SpecificToolChoice{Name: aws.String(name)},
		}
	default:
		return nil, apierr.New(apierr.KindInvalidRequest, "tool_choice must be a string or an object").WithParam("tool_choice")
	}

	return cfg, nil
}

func specificToolName(choice map[string]interface{}) string {
	if t, _ := choice["type"].(string); t != "function" {
		return ""
	}
	fn, _ := choice["function"].(map[string]interface{})
	name, _ := fn["name"].(string)
	return name
}

// HTTPImageFetcher fetches remote images with size and time bounds.
type HTTPImageFetcher struct {
	Client *http.Client
}

// NewHTTPImageFetcher builds a fetcher with the stock 10 s timeout.
func NewHTTPImageFetcher() *HTTPImageFetcher {
	return &HTTPImageFetcher{Client: &http.Client{Timeout: imageFetchTimeout}}
}

// Fetch implements ImageFetcher.
func (f *HTTPImageFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds the 10 MiB limit")
	}
	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, strings.TrimSpace(contentType), nil
}
