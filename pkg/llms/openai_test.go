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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/codequery/pkg/config"
)

// fakeChatServer returns the given assistant content and captures the raw
// request body of the last call.
func fakeChatServer(t *testing.T, content string) (*httptest.Server, *map[string]any) {
	t.Helper()

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"choices": [{"message": {"role": "assistant", "content": %s}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`, mustJSON(content))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func mustJSON(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func newTestProvider(t *testing.T, host string, native *bool) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProvider(&config.LLMConfig{
		Host:            host,
		APIKey:          "test-key",
		Model:           "gpt-4o",
		NativeToolCalls: native,
	})
	require.NoError(t, err)
	return provider
}

func TestChat_InlineToolCallNormalizedUnderNativeConfig(t *testing.T) {
	// A provider that ignores the tools API and answers with inline JSON
	// must still come back as a tool call, not as content.
	server, _ := fakeChatServer(t, `{"name": "code_search", "arguments": {"query": "login"}}`)
	provider := newTestProvider(t, server.URL, nil)

	result, err := provider.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "How does login work?"}}, catalogue)
	require.NoError(t, err)

	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "code_search", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query": "login"}`, result.ToolCalls[0].Arguments)
	assert.Empty(t, result.Content)
}

func TestChat_PlainContentPassesThrough(t *testing.T) {
	server, _ := fakeChatServer(t, "Login lives in auth.cs.")
	provider := newTestProvider(t, server.URL, nil)

	result, err := provider.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "q"}}, catalogue)
	require.NoError(t, err)

	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, "Login lives in auth.cs.", result.Content)
	assert.Equal(t, 5, result.Tokens)
}

func TestChat_NativeModeSendsToolsField(t *testing.T) {
	server, captured := fakeChatServer(t, "ok")
	provider := newTestProvider(t, server.URL, nil)

	_, err := provider.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "q"}}, catalogue)
	require.NoError(t, err)

	tools, ok := (*captured)["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, len(catalogue))
	assert.Equal(t, "auto", (*captured)["tool_choice"])
}

func TestChat_NonNativeModeRendersCatalogueIntoPrompt(t *testing.T) {
	server, captured := fakeChatServer(t, `{"name": "read_file", "arguments": {"file_path": "a.go"}}`)
	provider := newTestProvider(t, server.URL, config.BoolPtr(false))

	result, err := provider.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "q"}}, catalogue)
	require.NoError(t, err)

	// No native tools field; the catalogue travels as a system message.
	_, hasTools := (*captured)["tools"]
	assert.False(t, hasTools)

	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, messages)
	first, ok := messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RoleSystem, first["role"])
	assert.Contains(t, first["content"], "code_search")
	assert.Contains(t, first["content"], "read_file")

	// The inline answer is normalized on this path too.
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "read_file", result.ToolCalls[0].Name)
}

func TestChat_NoToolsOmitsCatalogue(t *testing.T) {
	server, captured := fakeChatServer(t, "ok")
	provider := newTestProvider(t, server.URL, config.BoolPtr(false))

	_, err := provider.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "q"}}, nil)
	require.NoError(t, err)

	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, RoleUser, first["role"])
}
