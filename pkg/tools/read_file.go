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
	"sort"
	"strings"

	"github.com/kadirpekel/codequery/pkg/store"
)

type readFileArgs struct {
	FilePath  string `json:"file_path" jsonschema:"required,description=Path of the file within the repository"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=First line to read (1-based)"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"description=Last line to read (inclusive)"`
}

// ReadFileTool reconstructs a file from its indexed chunks and returns a
// numbered line listing.
type ReadFileTool struct {
	chunks store.ChunkStore
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(chunks store.ChunkStore) *ReadFileTool {
	return &ReadFileTool{chunks: chunks}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the repository by path, optionally limited to a line range. Use after code_search to see full context."
}

func (t *ReadFileTool) Schema() map[string]any {
	return generateSchema[readFileArgs]()
}

func (t *ReadFileTool) Execute(ctx context.Context, argumentsJSON, repositoryID string) string {
	var args readFileArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.FilePath) == "" {
		return errorResult("file_path is required")
	}

	chunks, err := t.chunks.ListByRepository(ctx, repositoryID)
	if err != nil {
		return errorResult("failed to list repository files: %v", err)
	}
	if len(chunks) == 0 {
		return errorResult("repository has no indexed files")
	}

	path, candidates := resolvePath(chunks, args.FilePath)
	if path == "" {
		if len(candidates) > 1 {
			return fmt.Sprintf("Multiple files match %q:\n%s\nSpecify the full path.",
				args.FilePath, strings.Join(candidates, "\n"))
		}
		return errorResult("file not found: %s", args.FilePath)
	}

	var fileChunks []store.CodeChunk
	language := ""
	for _, chunk := range chunks {
		if chunk.FilePath == path {
			fileChunks = append(fileChunks, chunk)
			language = chunk.Language
		}
	}

	lines := reconstructLines(fileChunks)

	start, end := clampWindow(args.StartLine, args.EndLine, len(lines))

	width := len(fmt.Sprintf("%d", end))
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- [%s:%d-%d] ---\n", path, start, end)
	fmt.Fprintf(&sb, "```%s\n", language)
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%*d | %s\n", width, i, lines[i-1])
	}
	sb.WriteString("```")

	return sb.String()
}

// reconstructLines rebuilds the file by absolute position: each chunk's
// lines land at its StartLine, so overlapping semantic chunks (a class and
// its members) write the same content twice and line numbers stay true to
// the source file. Lines no chunk covers are left empty.
func reconstructLines(fileChunks []store.CodeChunk) []string {
	byLine := make(map[int]string)
	maxLine := 0
	for _, chunk := range fileChunks {
		for i, line := range strings.Split(chunk.Content, "\n") {
			n := chunk.StartLine + i
			byLine[n] = line
			if n > maxLine {
				maxLine = n
			}
		}
	}

	lines := make([]string, maxLine)
	for n, line := range byLine {
		if n >= 1 {
			lines[n-1] = line
		}
	}
	return lines
}

// resolvePath matches the requested path against the repository's files:
// case-insensitive exact match first, then substring. Returns the resolved
// path, or "" plus the candidate list when the match is ambiguous.
func resolvePath(chunks []store.CodeChunk, requested string) (string, []string) {
	paths := make(map[string]bool)
	for _, chunk := range chunks {
		paths[chunk.FilePath] = true
	}

	lowered := strings.ToLower(strings.ReplaceAll(requested, "\\", "/"))

	for path := range paths {
		if strings.ToLower(path) == lowered {
			return path, nil
		}
	}

	var candidates []string
	for path := range paths {
		if strings.Contains(strings.ToLower(path), lowered) {
			candidates = append(candidates, path)
		}
	}
	sort.Strings(candidates)

	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", candidates
}

// clampWindow clamps the requested [start, end] line window to [1, total].
// A start past the end of the file clamps to the last line.
func clampWindow(start, end, total int) (int, int) {
	if start <= 0 {
		start = 1
	}
	if start > total {
		start = total
	}
	if end <= 0 || end > total {
		end = total
	}
	if end < start {
		end = start
	}
	return start, end
}
