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

var indentHeaderRe = regexp.MustCompile(`^([ \t]*)(class|def|module)\s+(\w+)`)

type indentHeader struct {
	line    int // 0-based
	indent  int
	keyword string
	name    string
}

// chunkIndent chunks indentation-structured source: each chunk spans from a
// class/def header to the next header (or EOF). A def nested under a class
// becomes a method chunk with the class as parent. Returns nil when no
// headers are found.
func chunkIndent(content string) []store.CodeChunk {
	lines := strings.Split(content, "\n")

	var headers []indentHeader
	for i, line := range lines {
		m := indentHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		headers = append(headers, indentHeader{
			line:    i,
			indent:  len(m[1]),
			keyword: m[2],
			name:    m[3],
		})
	}
	if len(headers) == 0 {
		return nil
	}

	chunks := make([]store.CodeChunk, 0, len(headers))
	for i, header := range headers {
		endLine := len(lines) - 1
		if i+1 < len(headers) {
			endLine = headers[i+1].line - 1
		}

		chunkType := store.ChunkTypeFunction
		parentClass := ""
		switch header.keyword {
		case "class", "module":
			chunkType = store.ChunkTypeClass
		default:
			if parent := enclosingClass(headers[:i], header.indent); parent != "" {
				chunkType = store.ChunkTypeMethod
				parentClass = parent
			}
		}

		chunks = append(chunks, store.CodeChunk{
			Content:    strings.Join(lines[header.line:endLine+1], "\n"),
			StartLine:  header.line + 1,
			EndLine:    endLine + 1,
			ChunkType:  chunkType,
			SymbolName: header.name,
			Metadata: store.ChunkMetadata{
				ParentClass: parentClass,
			},
		})
	}

	return chunks
}

// enclosingClass finds the nearest preceding class header at a shallower
// indentation.
func enclosingClass(preceding []indentHeader, indent int) string {
	for i := len(preceding) - 1; i >= 0; i-- {
		h := preceding[i]
		if h.indent >= indent {
			continue
		}
		if h.keyword == "class" || h.keyword == "module" {
			return h.name
		}
		// A shallower def means we left the class scope.
		return ""
	}
	return ""
}
