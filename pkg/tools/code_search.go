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

	"github.com/kadirpekel/codequery/pkg/retriever"
)

const codeSearchLimit = 5

type codeSearchArgs struct {
	Query     string `json:"query" jsonschema:"required,description=Natural language or keyword query over the repository's code"`
	Language  string `json:"language,omitempty" jsonschema:"description=Restrict results to one language (e.g. csharp, go, python)"`
	ChunkType string `json:"chunk_type,omitempty" jsonschema:"description=Restrict results to one chunk type: code, class, method, function or comment"`
}

// CodeSearchTool runs hybrid retrieval and formats hits with citation
// headers the citation service can re-extract.
type CodeSearchTool struct {
	retriever *retriever.Retriever
}

// NewCodeSearchTool creates the code_search tool.
func NewCodeSearchTool(r *retriever.Retriever) *CodeSearchTool {
	return &CodeSearchTool{retriever: r}
}

func (t *CodeSearchTool) Name() string { return "code_search" }

func (t *CodeSearchTool) Description() string {
	return "Search the repository's code by meaning and keywords. Returns the most relevant code snippets with file paths and line numbers."
}

func (t *CodeSearchTool) Schema() map[string]any {
	return generateSchema[codeSearchArgs]()
}

func (t *CodeSearchTool) Execute(ctx context.Context, argumentsJSON, repositoryID string) string {
	var args codeSearchArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("query is required")
	}

	filter := &retriever.Filter{
		Language:  args.Language,
		ChunkType: args.ChunkType,
	}

	results, err := t.retriever.HybridSearch(ctx, repositoryID, args.Query, filter, codeSearchLimit)
	if err != nil {
		return errorResult("search failed: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", args.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q:\n\n", len(results), args.Query)

	for _, result := range results {
		chunk := result.Chunk

		fmt.Fprintf(&sb, "--- [%s:%d-%d]", chunk.FilePath, chunk.StartLine, chunk.EndLine)
		if chunk.SymbolName != "" {
			fmt.Fprintf(&sb, " (%s: %s)", chunk.ChunkType, chunk.SymbolName)
		}
		fmt.Fprintf(&sb, " [Score: %.2f] ---\n", result.Score)
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", chunk.Language, strings.TrimRight(chunk.Content, "\n"))
	}

	return strings.TrimRight(sb.String(), "\n")
}
