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

// Package citations grounds assistant answers in source locations. It
// re-extracts [path:line-line] markers from tool results and answer text,
// deduplicates them and renumbers the answer's references to [N].
package citations

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Citation source types.
const (
	SourceCodeSearch = "code_search"
	SourceFileRead   = "file_read"
	SourceReference  = "reference"
)

// Citation is one grounded source location. (FilePath, StartLine, EndLine)
// is the deduplication key within a response.
type Citation struct {
	ID             string  `json:"id"`
	FilePath       string  `json:"filePath"`
	StartLine      int     `json:"startLine"`
	EndLine        int     `json:"endLine"`
	Content        string  `json:"content,omitempty"`
	SymbolName     string  `json:"symbolName,omitempty"`
	RelevanceScore float64 `json:"relevanceScore"`
	SourceType     string  `json:"sourceType"`
}

// GroundedContent is an answer with its citation set. CitationMap maps the
// original path:line reference to the 1-based citation index.
type GroundedContent struct {
	Content     string         `json:"content"`
	Citations   []Citation     `json:"citations"`
	CitationMap map[string]int `json:"citationMap"`
}

var (
	// headerBlockRe matches the tool-result block format:
	// --- [path:start-end] (type: symbol) [Score: s] --- followed by a
	// fenced code block.
	headerBlockRe = regexp.MustCompile("(?s)--- \\[([^\\]\\s:]+):(\\d+)-(\\d+)\\](?: \\(([^)]*)\\))?(?: \\[Score: ([0-9.]+)\\])? ---\\s*```[^\n]*\n(.*?)```")

	// inlineRefRe matches [path:line] and [path:start-end] in prose.
	inlineRefRe = regexp.MustCompile(`\[([^\]\s:]+):(\d+)(?:-(\d+))?\]`)
)

// Service extracts and renumbers citations.
type Service struct{}

// NewService creates the citation service.
func NewService() *Service {
	return &Service{}
}

// ExtractFromToolResults parses citation blocks out of tool result strings,
// deduplicates them by location and returns them sorted by relevance score,
// descending.
func (s *Service) ExtractFromToolResults(toolResults []string) []Citation {
	var citations []Citation

	for _, result := range toolResults {
		for _, m := range headerBlockRe.FindAllStringSubmatch(result, -1) {
			startLine, _ := strconv.Atoi(m[2])
			endLine, _ := strconv.Atoi(m[3])

			citation := Citation{
				ID:         uuid.NewString(),
				FilePath:   m[1],
				StartLine:  startLine,
				EndLine:    endLine,
				Content:    strings.TrimRight(m[6], "\n"),
				SourceType: SourceFileRead,
			}

			if m[4] != "" {
				// "(type: symbol)" annotation.
				if _, symbol, ok := strings.Cut(m[4], ":"); ok {
					citation.SymbolName = strings.TrimSpace(symbol)
				} else {
					citation.SymbolName = strings.TrimSpace(m[4])
				}
			}
			if m[5] != "" {
				if score, err := strconv.ParseFloat(m[5], 64); err == nil {
					citation.RelevanceScore = score
					citation.SourceType = SourceCodeSearch
				}
			}

			citations = append(citations, citation)
		}
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].RelevanceScore > citations[j].RelevanceScore
	})

	return dedupe(citations)
}

// ExtractFromContent parses [path:line] and [path:start-end] references out
// of assistant text, in order of appearance, deduplicated.
func (s *Service) ExtractFromContent(content string) []Citation {
	var citations []Citation

	for _, m := range inlineRefRe.FindAllStringSubmatch(content, -1) {
		startLine, _ := strconv.Atoi(m[2])
		endLine := startLine
		if m[3] != "" {
			endLine, _ = strconv.Atoi(m[3])
		}

		citations = append(citations, Citation{
			ID:         uuid.NewString(),
			FilePath:   m[1],
			StartLine:  startLine,
			EndLine:    endLine,
			SourceType: SourceReference,
		})
	}

	return dedupe(citations)
}

// Ground combines tool-result and content citations, deduplicates them,
// renumbers the content's references to [N] and returns the grounded
// answer. Tool-result citations come first, sorted by score.
func (s *Service) Ground(content string, toolResults []string) *GroundedContent {
	citations := s.ExtractFromToolResults(toolResults)

	index := make(map[string]int, len(citations))
	for i, citation := range citations {
		index[locationKey(citation.FilePath, citation.StartLine, citation.EndLine)] = i
	}

	for _, citation := range s.ExtractFromContent(content) {
		key := locationKey(citation.FilePath, citation.StartLine, citation.EndLine)
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(citations)
		citations = append(citations, citation)
	}

	rewritten := inlineRefRe.ReplaceAllStringFunc(content, func(ref string) string {
		m := inlineRefRe.FindStringSubmatch(ref)
		startLine, _ := strconv.Atoi(m[2])
		endLine := startLine
		if m[3] != "" {
			endLine, _ = strconv.Atoi(m[3])
		}
		if i, ok := index[locationKey(m[1], startLine, endLine)]; ok {
			return fmt.Sprintf("[%d]", i+1)
		}
		return ref
	})

	citationMap := make(map[string]int, len(citations))
	for i, citation := range citations {
		citationMap[refKey(citation)] = i + 1
	}

	return &GroundedContent{
		Content:     rewritten,
		Citations:   citations,
		CitationMap: citationMap,
	}
}

func dedupe(citations []Citation) []Citation {
	seen := make(map[string]bool, len(citations))
	out := citations[:0]
	for _, citation := range citations {
		key := locationKey(citation.FilePath, citation.StartLine, citation.EndLine)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, citation)
	}
	return out
}

func locationKey(path string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d-%d", path, startLine, endLine)
}

// refKey renders the citation the way it appears in prose.
func refKey(citation Citation) string {
	if citation.StartLine == citation.EndLine {
		return fmt.Sprintf("%s:%d", citation.FilePath, citation.StartLine)
	}
	return fmt.Sprintf("%s:%d-%d", citation.FilePath, citation.StartLine, citation.EndLine)
}
