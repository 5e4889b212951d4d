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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/codequery/pkg/llms"
)

type explainCodeArgs struct {
	Code        string `json:"code" jsonschema:"required,description=The code snippet to explain"`
	DetailLevel string `json:"detail_level,omitempty" jsonschema:"description=Explanation depth: brief, detailed or comprehensive"`
}

var detailInstructions = map[string]string{
	"brief":         "Explain in two or three sentences what this code does.",
	"detailed":      "Explain what this code does, how it works and what its inputs and outputs are.",
	"comprehensive": "Explain this code thoroughly: purpose, control flow, inputs and outputs, side effects, error handling and anything a maintainer should know.",
}

// ExplainCodeTool asks the model to explain a code snippet.
type ExplainCodeTool struct {
	provider llms.Provider
}

// NewExplainCodeTool creates the explain_code tool.
func NewExplainCodeTool(provider llms.Provider) *ExplainCodeTool {
	return &ExplainCodeTool{provider: provider}
}

func (t *ExplainCodeTool) Name() string { return "explain_code" }

func (t *ExplainCodeTool) Description() string {
	return "Explain what a code snippet does, at a chosen level of detail."
}

func (t *ExplainCodeTool) Schema() map[string]any {
	return generateSchema[explainCodeArgs]()
}

func (t *ExplainCodeTool) Execute(ctx context.Context, argumentsJSON, repositoryID string) string {
	var args explainCodeArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Code) == "" {
		return errorResult("code is required")
	}

	level := strings.ToLower(strings.TrimSpace(args.DetailLevel))
	if level == "" {
		level = "detailed"
	}
	instruction, ok := detailInstructions[level]
	if !ok {
		return errorResult("unknown detail_level: %s", level)
	}

	messages := []llms.Message{
		{
			Role:    llms.RoleSystem,
			Content: "You are a senior engineer explaining code to a colleague. Be precise and concrete.",
		},
		{
			Role:    llms.RoleUser,
			Content: fmt.Sprintf("%s\n\n```\n%s\n```", instruction, args.Code),
		},
	}

	result, err := t.provider.Chat(ctx, messages, nil)
	if err != nil {
		return errorResult("explanation failed: %v", err)
	}

	return result.Content
}
