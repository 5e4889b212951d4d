// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/httpclient"
	"github.com/kadirpekel/codequery/pkg/observability"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs.
type OpenAIProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
	Error   *openAIError         `json:"error,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content string `json:"content,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewProviderError("openai", "NewOpenAIProvider", "API key is required", nil)
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
	)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

// Chat performs a non-streaming model turn. Tool calls are returned
// normalized: native API tool calls when present, otherwise the first
// balanced inline-JSON call matching the catalogue.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*ChatResult, error) {
	tracer := observability.GetTracer("codequery.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrLLMModel, p.config.Model)))
	defer span.End()

	request := p.buildRequest(messages, false, tools)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat request failed")
		return nil, err
	}

	if len(response.Choices) == 0 {
		err := NewProviderError("openai", "Chat", "response contained no choices", nil)
		span.RecordError(err)
		return nil, err
	}

	choice := response.Choices[0]
	result := &ChatResult{
		Content: choice.Message.Content,
		Tokens:  response.Usage.TotalTokens,
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	// Some OpenAI-compatible providers emit tool calls as JSON inside the
	// assistant content instead of using the tools API, even when the
	// request carried native tool definitions. Scan whenever the native
	// path produced nothing; non-matching content passes through unchanged.
	if len(result.ToolCalls) == 0 {
		if call, ok := ExtractInlineToolCall(result.Content, tools); ok {
			result.ToolCalls = []ToolCall{*call}
			result.Content = ""
		}
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.total", result.Tokens),
		attribute.Int("llm.tool_calls", len(result.ToolCalls)),
	)

	return result, nil
}

// ChatStream streams the assistant content. Tool definitions are not passed;
// streaming is used only for final answers.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, nil)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)
		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			select {
			case outputCh <- StreamChunk{Type: "error", Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return outputCh, nil
}

func (p *OpenAIProvider) GetModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) openAIRequest {
	apiMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		apiMsg := openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		if msg.Role == RoleTool {
			apiMsg.ToolCallID = msg.ToolCallID
		}

		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		apiMessages = append(apiMessages, apiMsg)
	}

	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    apiMessages,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}

	if p.config.MaxTokens > 0 {
		maxTokens := p.config.MaxTokens
		request.MaxTokens = &maxTokens
	}

	if len(tools) > 0 {
		if p.config.NativeToolCallsEnabled() {
			request.Tools = make([]openAITool, 0, len(tools))
			for _, tool := range tools {
				request.Tools = append(request.Tools, openAITool{
					Type: "function",
					Function: openAIToolFunction{
						Name:        tool.Name,
						Description: tool.Description,
						Parameters:  tool.Parameters,
					},
				})
			}
			request.ToolChoice = "auto"
		} else {
			// Providers without a tools API learn the catalogue from the
			// prompt and answer with inline JSON, which Chat normalizes.
			request.Messages = append([]openAIMessage{{
				Role:    RoleSystem,
				Content: renderToolCatalogue(tools),
			}}, request.Messages...)
		}
	}

	return request
}

// renderToolCatalogue describes the tools as prompt text for providers
// that cannot accept native tool definitions.
func renderToolCatalogue(tools []ToolDefinition) string {
	var sb bytes.Buffer
	sb.WriteString("You can call the following tools. To call one, reply with only a JSON object of the form " +
		`{"name": "<tool>", "arguments": {...}}` + " and nothing else.\n\nAvailable tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&sb, "\n- %s: %s\n", tool.Name, tool.Description)
		if params, err := json.Marshal(tool.Parameters); err == nil {
			fmt.Fprintf(&sb, "  Parameters schema: %s\n", params)
		}
	}
	return sb.String()
}

func (p *OpenAIProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.config.Host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	return req, nil
}

func parseErrorResponse(body []byte) *openAIError {
	var errResp struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil
	}
	return errResp.Error
}

func (p *OpenAIProvider) checkResponse(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if apiErr := parseErrorResponse(body); apiErr != nil {
			return NewProviderError("openai", "request",
				fmt.Sprintf("API request failed with status %d: %s (type: %s, code: %s)",
					resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code), err)
		}
		return NewProviderError("openai", "request",
			fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(body)), err)
	}

	if err != nil {
		return NewProviderError("openai", "request", "HTTP request failed", err)
	}

	if resp == nil {
		return NewProviderError("openai", "request", "no response received", nil)
	}

	return nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := p.newRequest(ctx, requestBody)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if checkErr := p.checkResponse(resp, err); checkErr != nil {
		return nil, checkErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if response.Error != nil {
		return nil, NewProviderError("openai", "Chat", response.Error.Message, nil)
	}

	return &response, nil
}

func (p *OpenAIProvider) makeStreamingRequest(ctx context.Context, request openAIRequest, outputCh chan<- StreamChunk) error {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := p.newRequest(ctx, requestBody)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if checkErr := p.checkResponse(resp, err); checkErr != nil {
		return checkErr
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp openAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}

		if streamResp.Error != nil {
			return NewProviderError("openai", "ChatStream", streamResp.Error.Message, nil)
		}

		if len(streamResp.Choices) == 0 {
			continue
		}

		choice := streamResp.Choices[0]

		if choice.Delta.Content != "" {
			select {
			case outputCh <- StreamChunk{Type: "text", Text: choice.Delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if choice.FinishReason == "stop" {
			break
		}
	}

	select {
	case outputCh <- StreamChunk{Type: "done"}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
