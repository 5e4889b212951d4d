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

package chunker

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/codequery/pkg/store"
)

// Regex probes for top-level declarations. This is a deliberate
// approximation of a parser; when a probe misfires the balanced-brace scan
// fails and the declaration is simply not chunked semantically.
var (
	namespaceRe = regexp.MustCompile(`(?m)^[ \t]*namespace\s+([\w.]+)`)

	classRe = regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|export|default|abstract|final|sealed|static|partial)[ \t]+)*(?:class|interface|struct|enum)[ \t]+(\w+)`)

	functionRe = regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|export|default|static|async)[ \t]+)*(?:function|func|fn|def)[ \t]+(?:\([^)]*\)[ \t]*)?(\w+)`)

	memberRe = regexp.MustCompile(`(?m)^[ \t]*(?:public|private|protected|internal)[ \t]+(?:(?:static|virtual|override|async|abstract|sealed|readonly|final|[\w<>\[\],?.]+)[ \t]+)*(\w+)[ \t]*\(`)
)

// chunkBraces extracts class, method and function chunks from a
// brace-delimited language. Returns nil when nothing semantic is found.
func chunkBraces(content string) []store.CodeChunk {
	var chunks []store.CodeChunk

	namespace := ""
	if m := namespaceRe.FindStringSubmatch(content); m != nil {
		namespace = m[1]
	}

	type span struct{ start, end int }
	var classSpans []span
	seen := make(map[int]bool)

	for _, loc := range classRe.FindAllStringSubmatchIndex(content, -1) {
		className := content[loc[2]:loc[3]]
		open, bodyEnd, ok := findBalanced(content, loc[1])
		if !ok {
			continue
		}

		classStart := lineStart(content, loc[0])
		if seen[classStart] {
			continue
		}
		seen[classStart] = true
		classSpans = append(classSpans, span{classStart, bodyEnd})

		chunks = append(chunks, newSpanChunk(content, classStart, bodyEnd,
			store.ChunkTypeClass, className, namespace, ""))

		body := content[open+1 : bodyEnd]
		for _, mloc := range memberRe.FindAllStringSubmatchIndex(body, -1) {
			memberName := body[mloc[2]:mloc[3]]
			mopen, mend, ok := findBalanced(body, mloc[1])
			if !ok {
				continue
			}
			// An intervening semicolon means the declaration has no body
			// (abstract or expression-bodied member); the brace we found
			// belongs to something else.
			if strings.ContainsRune(body[mloc[1]:mopen], ';') {
				continue
			}

			memberStart := lineStart(content, open+1+mloc[0])
			if seen[memberStart] {
				continue
			}
			seen[memberStart] = true

			chunks = append(chunks, newSpanChunk(content, memberStart, open+1+mend,
				store.ChunkTypeMethod, memberName, namespace, className))
		}
	}

	for _, loc := range functionRe.FindAllStringSubmatchIndex(content, -1) {
		inClass := false
		for _, s := range classSpans {
			if loc[0] >= s.start && loc[0] <= s.end {
				inClass = true
				break
			}
		}
		if inClass {
			continue
		}

		functionName := content[loc[2]:loc[3]]
		_, end, ok := findBalanced(content, loc[1])
		if !ok {
			continue
		}

		start := lineStart(content, loc[0])
		if seen[start] {
			continue
		}
		seen[start] = true

		chunks = append(chunks, newSpanChunk(content, start, end,
			store.ChunkTypeFunction, functionName, namespace, ""))
	}

	return chunks
}

func newSpanChunk(content string, startOffset, endOffset int, chunkType, symbolName, namespace, parentClass string) store.CodeChunk {
	return store.CodeChunk{
		Content:    content[startOffset : endOffset+1],
		StartLine:  lineAt(content, startOffset),
		EndLine:    lineAt(content, endOffset),
		ChunkType:  chunkType,
		SymbolName: symbolName,
		Metadata: store.ChunkMetadata{
			Namespace:   namespace,
			ParentClass: parentClass,
		},
	}
}

// findBalanced locates the first '{' at or after from and scans to its
// matching '}' with a depth counter, ignoring braces inside string
// literals. Returns the offsets of both braces.
func findBalanced(s string, from int) (open, end int, ok bool) {
	open = strings.IndexByte(s[from:], '{')
	if open < 0 {
		return 0, 0, false
	}
	open += from

	depth := 0
	var quote byte
	escaped := false

	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			case ch == '\n' && quote != '`':
				// Only backtick strings span lines. An unterminated quote
				// (an apostrophe in a comment) must not poison the rest of
				// the scan.
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return open, i, true
			}
		}
	}

	return 0, 0, false
}
