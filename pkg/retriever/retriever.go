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

// Package retriever ranks code chunks for a query by combining vector
// similarity with keyword matching.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/codequery/pkg/embedding"
	"github.com/kadirpekel/codequery/pkg/observability"
	"github.com/kadirpekel/codequery/pkg/store"
)

const (
	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// SearchResult is a chunk with its relevance score (higher is better).
type SearchResult struct {
	Chunk store.CodeChunk `json:"chunk"`
	Score float64         `json:"score"`
}

// Filter narrows hybrid search results. All predicates are conjunctive and
// case-insensitive; zero values match everything.
type Filter struct {
	// Language must equal the chunk's language.
	Language string
	// ChunkType must equal the chunk's type.
	ChunkType string
	// FileName is a substring match against the chunk's file name.
	FileName string
	// FilePaths are substring matches against the chunk's file path; any
	// one of them must match.
	FilePaths []string
}

// Retriever executes vector and hybrid searches over a repository's chunks.
type Retriever struct {
	embedder *embedding.Service
	chunks   store.ChunkStore
}

// New creates a Retriever.
func New(embedder *embedding.Service, chunks store.ChunkStore) *Retriever {
	return &Retriever{
		embedder: embedder,
		chunks:   chunks,
	}
}

// Search embeds the query and returns the topK nearest chunks, scored by
// cosine similarity, descending.
func (r *Retriever) Search(ctx context.Context, repositoryID, query string, topK int) ([]SearchResult, error) {
	tracer := observability.GetTracer("retriever")
	ctx, span := tracer.Start(ctx, observability.SpanVectorSearch, trace.WithAttributes(
		attribute.String(observability.AttrRepositoryID, repositoryID),
	))
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	matches, err := r.vectorSearch(ctx, repositoryID, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, SearchResult{
			Chunk: match.Chunk,
			Score: float64(1 - match.Distance),
		})
	}

	return results, nil
}

// HybridSearch combines vector search (weight 0.7) with keyword matching
// (weight 0.3) and returns the topK chunks by combined score, descending.
// Ties break by original vector rank, then chunk id.
func (r *Retriever) HybridSearch(ctx context.Context, repositoryID, query string, filter *Filter, topK int) ([]SearchResult, error) {
	tracer := observability.GetTracer("retriever")
	ctx, span := tracer.Start(ctx, observability.SpanHybridSearch, trace.WithAttributes(
		attribute.String(observability.AttrRepositoryID, repositoryID),
	))
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		return nil, nil
	}

	vectorMatches, err := r.vectorSearch(ctx, repositoryID, query, 2*topK)
	if err != nil {
		return nil, err
	}

	keywordScores, err := r.keywordSearch(ctx, repositoryID, query, topK)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		chunk store.CodeChunk
		score float64
		rank  int // original vector rank; keyword-only candidates sort after
	}

	candidates := make(map[string]*candidate)
	order := make([]string, 0, len(vectorMatches))

	for i, match := range vectorMatches {
		candidates[match.Chunk.ID] = &candidate{
			chunk: match.Chunk,
			score: vectorWeight * float64(1-match.Distance),
			rank:  i,
		}
		order = append(order, match.Chunk.ID)
	}

	keywordOnly := make([]string, 0, len(keywordScores))
	for id := range keywordScores {
		if _, ok := candidates[id]; !ok {
			keywordOnly = append(keywordOnly, id)
		}
	}
	sort.Strings(keywordOnly)

	for _, kw := range keywordScores {
		if existing, ok := candidates[kw.chunk.ID]; ok {
			existing.score += keywordWeight * kw.score
			continue
		}
		candidates[kw.chunk.ID] = &candidate{
			chunk: kw.chunk,
			score: keywordWeight * kw.score,
			rank:  len(vectorMatches),
		}
	}
	for i, id := range keywordOnly {
		candidates[id].rank = len(vectorMatches) + i
		order = append(order, id)
	}

	merged := make([]*candidate, 0, len(candidates))
	for _, id := range order {
		c := candidates[id]
		if filter.matches(&c.chunk) {
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		if merged[i].rank != merged[j].rank {
			return merged[i].rank < merged[j].rank
		}
		return merged[i].chunk.ID < merged[j].chunk.ID
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}

	results := make([]SearchResult, 0, len(merged))
	for _, c := range merged {
		results = append(results, SearchResult{Chunk: c.chunk, Score: c.score})
	}

	return results, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, repositoryID, query string, topK int) ([]store.ChunkMatch, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.chunks.SearchVector(ctx, repositoryID, queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return matches, nil
}

type keywordMatch struct {
	chunk store.CodeChunk
	score float64
}

// keywordSearch scores every chunk of the repository by the fraction of
// query tokens occurring in its content or symbol name, and keeps the topK
// with score > 0.
func (r *Retriever) keywordSearch(ctx context.Context, repositoryID, query string, topK int) (map[string]keywordMatch, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	chunks, err := r.chunks.ListByRepository(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("keyword scan failed: %w", err)
	}

	var scored []keywordMatch
	for _, chunk := range chunks {
		content := strings.ToLower(chunk.Content)
		symbol := strings.ToLower(chunk.SymbolName)

		matches := 0
		for _, token := range tokens {
			if strings.Contains(content, token) || strings.Contains(symbol, token) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}

		scored = append(scored, keywordMatch{
			chunk: chunk,
			score: float64(matches) / float64(len(tokens)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunk.ID < scored[j].chunk.ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	result := make(map[string]keywordMatch, len(scored))
	for _, match := range scored {
		result[match.chunk.ID] = match
	}

	return result, nil
}

func (f *Filter) matches(chunk *store.CodeChunk) bool {
	if f == nil {
		return true
	}

	if f.Language != "" && !strings.EqualFold(f.Language, chunk.Language) {
		return false
	}
	if f.ChunkType != "" && !strings.EqualFold(f.ChunkType, chunk.ChunkType) {
		return false
	}
	if f.FileName != "" && !strings.Contains(strings.ToLower(chunk.FileName), strings.ToLower(f.FileName)) {
		return false
	}
	if len(f.FilePaths) > 0 {
		path := strings.ToLower(chunk.FilePath)
		found := false
		for _, p := range f.FilePaths {
			if strings.Contains(path, strings.ToLower(p)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
