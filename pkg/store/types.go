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

// Package store persists code chunks, repositories and conversations.
// Chunks live in a vector store partitioned by repository; repositories and
// conversations live in sqlite.
package store

import (
	"time"

	"github.com/kadirpekel/codequery/pkg/llms"
)

// Chunk types.
const (
	ChunkTypeCode     = "code"
	ChunkTypeClass    = "class"
	ChunkTypeMethod   = "method"
	ChunkTypeFunction = "function"
	ChunkTypeComment  = "comment"
)

// Repository is an indexed source tree.
type Repository struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Description string     `json:"description,omitempty"`
	IndexedAt   *time.Time `json:"indexedAt,omitempty"`
	ChunkCount  int        `json:"chunkCount"`
	Languages   []string   `json:"languages"`
}

// ChunkMetadata carries symbolic context extracted during chunking.
type ChunkMetadata struct {
	ParentClass string   `json:"parentClass,omitempty"`
	Namespace   string   `json:"namespace,omitempty"`
	Imports     []string `json:"imports,omitempty"`
	References  []string `json:"references,omitempty"`
	Complexity  int      `json:"complexity,omitempty"`
}

// CodeChunk is a contiguous span of source code, the unit of indexing and
// retrieval. Chunks are created during ingestion, wholesale replaced on
// re-index and never mutated in place.
type CodeChunk struct {
	ID           string        `json:"id"`
	RepositoryID string        `json:"repositoryId"`
	FilePath     string        `json:"filePath"`
	FileName     string        `json:"fileName"`
	Language     string        `json:"language"`
	Content      string        `json:"content"`
	StartLine    int           `json:"startLine"`
	EndLine      int           `json:"endLine"`
	ChunkType    string        `json:"chunkType"`
	SymbolName   string        `json:"symbolName,omitempty"`
	Embedding    []float32     `json:"-"`
	Metadata     ChunkMetadata `json:"metadata"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ChunkMatch is a chunk annotated with its vector distance (cosine,
// ascending is better).
type ChunkMatch struct {
	Chunk    CodeChunk
	Distance float32
}

// ConversationContext is the stored message history for one conversation.
// It grows by append; the tail delivered to the model may be truncated but
// the stored history is preserved.
type ConversationContext struct {
	ID           string         `json:"id"`
	RepositoryID string         `json:"repositoryId"`
	Messages     []llms.Message `json:"messages"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
