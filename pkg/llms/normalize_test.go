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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogue = []ToolDefinition{
	{Name: "code_search"},
	{Name: "read_file"},
}

func TestExtractInlineToolCall(t *testing.T) {
	content := `I will search the code.
{"name": "code_search", "arguments": {"query": "login handler"}}`

	call, ok := ExtractInlineToolCall(content, catalogue)
	require.True(t, ok)
	assert.Equal(t, "code_search", call.Name)
	assert.JSONEq(t, `{"query": "login handler"}`, call.Arguments)
	assert.NotEmpty(t, call.ID)
}

func TestExtractInlineToolCall_NameNormalization(t *testing.T) {
	content := `{"name": "Code-Search", "arguments": {"query": "x"}}`

	call, ok := ExtractInlineToolCall(content, catalogue)
	require.True(t, ok)
	// The canonical catalogue name wins.
	assert.Equal(t, "code_search", call.Name)
}

func TestExtractInlineToolCall_StringArguments(t *testing.T) {
	content := `{"name": "read_file", "arguments": "{\"file_path\": \"a.go\"}"}`

	call, ok := ExtractInlineToolCall(content, catalogue)
	require.True(t, ok)
	assert.JSONEq(t, `{"file_path": "a.go"}`, call.Arguments)
}

func TestExtractInlineToolCall_MissingArguments(t *testing.T) {
	call, ok := ExtractInlineToolCall(`{"name": "read_file"}`, catalogue)
	require.True(t, ok)
	assert.Equal(t, "{}", call.Arguments)
}

func TestExtractInlineToolCall_Negative(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json", "just an ordinary answer"},
		{"unknown tool", `{"name": "launch_rockets", "arguments": {}}`},
		{"no name field", `{"query": "login"}`},
		{"unbalanced", `{"name": "code_search"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ExtractInlineToolCall(tt.content, catalogue)
			assert.False(t, ok)
		})
	}
}

func TestExtractInlineToolCall_EmptyCatalogue(t *testing.T) {
	_, ok := ExtractInlineToolCall(`{"name": "code_search"}`, nil)
	assert.False(t, ok)
}

func TestFirstBalancedObject(t *testing.T) {
	obj, ok := firstBalancedObject(`prefix {"a": {"b": 1}} suffix {"c": 2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, obj)
}

func TestFirstBalancedObject_BracesInsideStrings(t *testing.T) {
	obj, ok := firstBalancedObject(`{"text": "has } and { inside"}`)
	require.True(t, ok)
	assert.Equal(t, `{"text": "has } and { inside"}`, obj)
}

func TestFirstBalancedObject_None(t *testing.T) {
	_, ok := firstBalancedObject("no objects here")
	assert.False(t, ok)
}

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "codesearch", normalizeToolName("Code_Search"))
	assert.Equal(t, "readfile", normalizeToolName("read-file"))
	assert.Equal(t, "explaincode", normalizeToolName("explain code"))
}
