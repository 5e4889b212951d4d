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
	"strings"

	"github.com/kadirpekel/codequery/pkg/store"
)

// chunkBySize produces fixed-size chunks: lines accumulate until the chunk
// reaches maxChunkSize characters, and consecutive chunks overlap by
// overlapLines to preserve local context across boundaries.
func (c *Chunker) chunkBySize(content string) []store.CodeChunk {
	lines := strings.Split(content, "\n")

	var chunks []store.CodeChunk
	start := 0
	for start < len(lines) {
		end := start
		size := len(lines[start])
		for end+1 < len(lines) && size < c.maxChunkSize {
			end++
			size += len(lines[end]) + 1
		}

		chunks = append(chunks, store.CodeChunk{
			Content:   strings.Join(lines[start:end+1], "\n"),
			StartLine: start + 1,
			EndLine:   end + 1,
			ChunkType: store.ChunkTypeCode,
		})

		if end == len(lines)-1 {
			break
		}

		next := end + 1 - c.overlapLines
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
