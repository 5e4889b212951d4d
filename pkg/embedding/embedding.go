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

// Package embedding prepares chunk text and batch-embeds it through an
// embedding provider.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/codequery/pkg/embedders"
	"github.com/kadirpekel/codequery/pkg/store"
)

const defaultMaxTextLength = 8000

// Service turns code chunks into embedding vectors. The embedded text
// carries structured context (path, symbol, language) ahead of the code so
// the vector captures more than the raw content.
type Service struct {
	provider      embedders.Provider
	maxTextLength int
}

// NewService creates the embedding service. maxTextLength caps the prepared
// text; zero selects the default.
func NewService(provider embedders.Provider, maxTextLength int) *Service {
	if maxTextLength <= 0 {
		maxTextLength = defaultMaxTextLength
	}
	return &Service{
		provider:      provider,
		maxTextLength: maxTextLength,
	}
}

// Dimension returns the provider's vector dimensionality.
func (s *Service) Dimension() int {
	return s.provider.GetDimension()
}

// PrepareText assembles the text that gets embedded for a chunk.
func (s *Service) PrepareText(chunk *store.CodeChunk) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "File: %s\n", chunk.FilePath)
	if chunk.SymbolName != "" {
		fmt.Fprintf(&sb, "%s: %s\n", titleCase(chunk.ChunkType), chunk.SymbolName)
	}
	fmt.Fprintf(&sb, "Language: %s\n", chunk.Language)
	if chunk.Metadata.Namespace != "" {
		fmt.Fprintf(&sb, "Namespace: %s\n", chunk.Metadata.Namespace)
	}
	if chunk.Metadata.ParentClass != "" {
		fmt.Fprintf(&sb, "Class: %s\n", chunk.Metadata.ParentClass)
	}
	fmt.Fprintf(&sb, "Code:\n%s", chunk.Content)

	text := sb.String()
	if len(text) > s.maxTextLength {
		text = text[:s.maxTextLength]
	}
	return text
}

// EmbedChunks embeds the chunks in place. Embeddings are requested in input
// order and assigned back positionally.
func (s *Service) EmbedChunks(ctx context.Context, chunks []*store.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = s.PrepareText(chunk)
	}

	embeddings, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
	}

	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	return nil
}

// EmbedQuery embeds a free-text query.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	text := query
	if len(text) > s.maxTextLength {
		text = text[:s.maxTextLength]
	}
	return s.provider.Embed(ctx, text)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
