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
	"regexp"
	"sort"
	"strings"

	"github.com/kadirpekel/codequery/pkg/store"
)

// referenceGroupLimit caps each hit group; the overflow is reported as a
// count.
const referenceGroupLimit = 20

type findReferencesArgs struct {
	Symbol        string `json:"symbol" jsonschema:"required,description=The symbol to find references for"`
	ReferenceType string `json:"reference_type,omitempty" jsonschema:"description=Kind of symbol: function, class, variable or any"`
}

type referenceHit struct {
	path string
	line int // absolute 1-based line in the file
	text string
}

// FindReferencesTool scans the repository's chunks line-by-line for
// definitions, usages and calls of a symbol.
type FindReferencesTool struct {
	chunks store.ChunkStore
}

// NewFindReferencesTool creates the find_references tool.
func NewFindReferencesTool(chunks store.ChunkStore) *FindReferencesTool {
	return &FindReferencesTool{chunks: chunks}
}

func (t *FindReferencesTool) Name() string { return "find_references" }

func (t *FindReferencesTool) Description() string {
	return "Find where a symbol is defined, used and called across the repository."
}

func (t *FindReferencesTool) Schema() map[string]any {
	return generateSchema[findReferencesArgs]()
}

func (t *FindReferencesTool) Execute(ctx context.Context, argumentsJSON, repositoryID string) string {
	var args findReferencesArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}

	symbol := strings.TrimSpace(args.Symbol)
	if symbol == "" {
		return errorResult("symbol is required")
	}

	kind := strings.ToLower(strings.TrimSpace(args.ReferenceType))
	if kind == "" {
		kind = "any"
	}
	switch kind {
	case "function", "class", "variable", "any":
	default:
		return errorResult("unknown reference_type: %s", kind)
	}

	chunks, err := t.chunks.ListByRepository(ctx, repositoryID)
	if err != nil {
		return errorResult("failed to scan repository: %v", err)
	}

	matcher := newReferenceMatcher(symbol, kind)

	var definitions, usages, calls []referenceHit
	seen := make(map[string]bool)

	for _, chunk := range chunks {
		for offset, line := range strings.Split(chunk.Content, "\n") {
			if !matcher.word.MatchString(line) {
				continue
			}

			absoluteLine := chunk.StartLine + offset
			key := fmt.Sprintf("%s:%d", chunk.FilePath, absoluteLine)
			if seen[key] {
				// Overlapping chunks cover the same lines.
				continue
			}
			seen[key] = true

			hit := referenceHit{
				path: chunk.FilePath,
				line: absoluteLine,
				text: strings.TrimSpace(line),
			}

			switch {
			case matcher.isDefinition(line):
				definitions = append(definitions, hit)
			case matcher.isCall(line):
				calls = append(calls, hit)
			default:
				usages = append(usages, hit)
			}
		}
	}

	total := len(definitions) + len(usages) + len(calls)
	if total == 0 {
		return fmt.Sprintf("No references to %q found.", symbol)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "References to %q (%s): %d total\n", symbol, kind, total)
	writeReferenceGroup(&sb, "Definitions", definitions)
	writeReferenceGroup(&sb, "Usages", usages)
	writeReferenceGroup(&sb, "Calls", calls)

	return strings.TrimRight(sb.String(), "\n")
}

func writeReferenceGroup(sb *strings.Builder, title string, hits []referenceHit) {
	if len(hits) == 0 {
		return
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].path != hits[j].path {
			return hits[i].path < hits[j].path
		}
		return hits[i].line < hits[j].line
	})

	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(hits))

	shown := hits
	if len(shown) > referenceGroupLimit {
		shown = shown[:referenceGroupLimit]
	}
	for _, hit := range shown {
		fmt.Fprintf(sb, "[%s:%d] %s\n", hit.path, hit.line, hit.text)
	}
	if overflow := len(hits) - len(shown); overflow > 0 {
		fmt.Fprintf(sb, "... and %d more\n", overflow)
	}
}

// referenceMatcher holds the kind-appropriate line classifiers for one
// symbol.
type referenceMatcher struct {
	word       *regexp.Regexp
	definition *regexp.Regexp
	call       *regexp.Regexp
}

func newReferenceMatcher(symbol, kind string) *referenceMatcher {
	quoted := regexp.QuoteMeta(symbol)

	var definitionPatterns []string
	if kind == "class" || kind == "any" {
		definitionPatterns = append(definitionPatterns,
			`(?:class|struct|interface|enum)\s+`+quoted+`\b`)
	}
	if kind == "function" || kind == "any" {
		definitionPatterns = append(definitionPatterns,
			`(?:function|func|fn|def)\s+(?:\([^)]*\)\s*)?`+quoted+`\b`,
			`(?:public|private|protected|internal)[\w\s<>\[\],?.]*\b`+quoted+`\s*\(`)
	}
	if kind == "variable" || kind == "any" {
		definitionPatterns = append(definitionPatterns,
			`(?:const|let|var|val)\s+`+quoted+`\b`)
	}

	return &referenceMatcher{
		word:       regexp.MustCompile(`\b` + quoted + `\b`),
		definition: regexp.MustCompile(strings.Join(definitionPatterns, "|")),
		call:       regexp.MustCompile(`\b` + quoted + `\s*\(`),
	}
}

func (m *referenceMatcher) isDefinition(line string) bool {
	return m.definition.MatchString(line)
}

func (m *referenceMatcher) isCall(line string) bool {
	return m.call.MatchString(line)
}
