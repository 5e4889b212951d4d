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

// Package llms provides the language-model adapter: a uniform chat and
// streaming contract over an OpenAI-compatible provider, including
// normalization of inline-JSON tool calls for providers without native
// tool calling.
package llms

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// ToolCallID and ToolName are set on tool-result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// ToolCalls are set on assistant messages requesting tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured request from the model to invoke a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool in the catalogue handed to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatResult is the outcome of a non-streaming chat call. When ToolCalls is
// non-empty, Content may be empty and the caller must execute the tools
// before producing a final answer.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
	Tokens    int
}

// StreamChunk is one fragment of a streaming response. The stream is finite,
// single-consumer and terminated by a chunk of type "done" (or "error").
type StreamChunk struct {
	Type string // "text", "done", "error"
	Text string
	Err  error
}

// Provider is the chat adapter contract.
type Provider interface {
	// Chat performs a model turn. tools may be nil for plain completion.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*ChatResult, error)

	// ChatStream streams the assistant content as ordered text fragments.
	// The returned channel is closed after the terminal chunk.
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	GetModelName() string

	Close() error
}
