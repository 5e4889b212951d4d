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
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ExtractInlineToolCall scans assistant content for the first balanced JSON
// object and, when it matches a catalogued tool by name, returns it as a
// synthetic tool call. Providers without native tool calling emit calls this
// way; downstream code must never see the difference.
func ExtractInlineToolCall(content string, tools []ToolDefinition) (*ToolCall, bool) {
	if len(tools) == 0 {
		return nil, false
	}

	candidate, ok := firstBalancedObject(content)
	if !ok {
		return nil, false
	}

	var parsed struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil || parsed.Name == "" {
		return nil, false
	}

	toolName, ok := matchToolName(parsed.Name, tools)
	if !ok {
		return nil, false
	}

	arguments := "{}"
	if len(parsed.Arguments) > 0 {
		// Arguments may arrive as an object or as a JSON-encoded string.
		var asString string
		if err := json.Unmarshal(parsed.Arguments, &asString); err == nil {
			arguments = asString
		} else {
			arguments = string(parsed.Arguments)
		}
	}

	return &ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      toolName,
		Arguments: arguments,
	}, true
}

// firstBalancedObject returns the first top-level {...} span in s, tracking
// string literals and escapes so braces inside strings are ignored.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// matchToolName matches a reported name against the catalogue, ignoring case
// and separator characters. Returns the canonical catalogue name.
func matchToolName(name string, tools []ToolDefinition) (string, bool) {
	normalized := normalizeToolName(name)
	for _, tool := range tools {
		if normalizeToolName(tool.Name) == normalized {
			return tool.Name, true
		}
	}
	return "", false
}

func normalizeToolName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case '-', '_', '.', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
