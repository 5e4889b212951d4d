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

package store

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemChunkStore implements ChunkStore on chromem-go for zero-config
// deployments: pure Go, in-memory, optional file persistence. One chromem
// collection per repository; a side index keeps full chunk records because
// chromem has no enumeration API.
//
// Single-process only. For production at scale use QdrantChunkStore.
type ChromemChunkStore struct {
	db          *chromem.DB
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	chunks      map[string]map[string]CodeChunk // repositoryID -> chunk id -> chunk
}

// NewChromemChunkStore creates the embedded store. persistPath may be empty
// for memory-only operation.
func NewChromemChunkStore(persistPath string) (*ChromemChunkStore, error) {
	var db *chromem.DB

	if persistPath != "" {
		if err := os.MkdirAll(persistPath, 0o755); err != nil {
			return nil, NewStoreError("ChromemChunkStore", "NewChromemChunkStore", "failed to create persist directory", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, NewStoreError("ChromemChunkStore", "NewChromemChunkStore", "failed to open persistent database", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemChunkStore{
		db:          db,
		persistPath: persistPath,
		collections: make(map[string]*chromem.Collection),
		chunks:      make(map[string]map[string]CodeChunk),
	}, nil
}

func collectionName(repositoryID string) string {
	return "chunks_" + repositoryID
}

func (s *ChromemChunkStore) getCollection(repositoryID string) (*chromem.Collection, error) {
	name := collectionName(repositoryID)

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Pre-computed vectors only; the embedding function must never run.
	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}

	col, err := s.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, NewStoreError("ChromemChunkStore", "getCollection",
			fmt.Sprintf("failed to get/create collection %q", name), err)
	}

	s.collections[name] = col
	return col, nil
}

func (s *ChromemChunkStore) Upsert(ctx context.Context, chunk *CodeChunk) error {
	return s.UpsertBatch(ctx, []*CodeChunk{chunk})
}

func (s *ChromemChunkStore) UpsertBatch(ctx context.Context, chunks []*CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byRepo := make(map[string][]chromem.Document)
	for _, chunk := range chunks {
		byRepo[chunk.RepositoryID] = append(byRepo[chunk.RepositoryID], chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Metadata:  map[string]string{"repository_id": chunk.RepositoryID},
			Embedding: chunk.Embedding,
		})

		if s.chunks[chunk.RepositoryID] == nil {
			s.chunks[chunk.RepositoryID] = make(map[string]CodeChunk)
		}
		s.chunks[chunk.RepositoryID][chunk.ID] = *chunk
	}

	for repositoryID, docs := range byRepo {
		col, err := s.getCollection(repositoryID)
		if err != nil {
			return err
		}
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return NewStoreError("ChromemChunkStore", "UpsertBatch", "failed to add documents", err)
		}
	}

	return nil
}

func (s *ChromemChunkStore) DeleteByRepository(ctx context.Context, repositoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := collectionName(repositoryID)
	if err := s.db.DeleteCollection(name); err != nil {
		return NewStoreError("ChromemChunkStore", "DeleteByRepository",
			fmt.Sprintf("failed to delete collection %q", name), err)
	}

	delete(s.collections, name)
	delete(s.chunks, repositoryID)

	return nil
}

func (s *ChromemChunkStore) ListByRepository(ctx context.Context, repositoryID string) ([]CodeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.chunks[repositoryID]
	chunks := make([]CodeChunk, 0, len(partition))
	for _, chunk := range partition {
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func (s *ChromemChunkStore) SearchVector(ctx context.Context, repositoryID string, queryEmbedding []float32, topK int) ([]ChunkMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName(repositoryID)]
	if !ok {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, queryEmbedding, topK, nil, nil)
	if err != nil {
		return nil, NewStoreError("ChromemChunkStore", "SearchVector", "query failed", err)
	}

	partition := s.chunks[repositoryID]
	matches := make([]ChunkMatch, 0, len(results))
	for _, result := range results {
		chunk, ok := partition[result.ID]
		if !ok {
			// Concurrent re-index may leave the side index behind; skip.
			continue
		}
		matches = append(matches, ChunkMatch{
			Chunk:    chunk,
			Distance: 1 - result.Similarity,
		})
	}

	return matches, nil
}

func (s *ChromemChunkStore) Close() error {
	return nil
}
