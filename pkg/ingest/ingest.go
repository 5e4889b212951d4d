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

// Package ingest turns a source tree into indexed, embedded chunks: walk,
// chunk, embed, store, then write the repository record.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/codequery/pkg/chunker"
	"github.com/kadirpekel/codequery/pkg/embedding"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/observability"
	"github.com/kadirpekel/codequery/pkg/store"
)

// upsertBatchSize is the chunk count per parallel store upsert.
const upsertBatchSize = 64

// IndexRequest describes a repository to (re-)index.
type IndexRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Stats aggregates an indexed repository's chunk set.
type Stats struct {
	RepositoryID string         `json:"repositoryId"`
	ChunkCount   int            `json:"chunkCount"`
	FileCount    int            `json:"fileCount"`
	TotalLines   int            `json:"totalLines"`
	Languages    map[string]int `json:"languages"`
	ChunkTypes   map[string]int `json:"chunkTypes"`
}

// Service drives ingestion and owns repository records.
type Service struct {
	chunker  *chunker.Chunker
	embedder *embedding.Service
	chunks   store.ChunkStore
	repos    store.RepositoryStore
}

// NewService creates the ingestion service.
func NewService(c *chunker.Chunker, embedder *embedding.Service, chunks store.ChunkStore, repos store.RepositoryStore) *Service {
	return &Service{
		chunker:  c,
		embedder: embedder,
		chunks:   chunks,
		repos:    repos,
	}
}

// IndexRepository walks, chunks, embeds and stores the tree at req.Path.
// Re-indexing an existing repository deletes its chunk partition first;
// readers may observe a mixed view while indexing runs.
func (s *Service) IndexRepository(ctx context.Context, req IndexRequest) (*store.Repository, error) {
	tracer := observability.GetTracer("ingest")
	ctx, span := tracer.Start(ctx, observability.SpanIngestion)
	defer span.End()

	log := logger.GetLogger()

	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, fmt.Errorf("repository path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path is not a directory: %s", req.Path)
	}

	repo := s.resolveRepository(ctx, req)
	span.SetAttributes(attribute.String(observability.AttrRepositoryID, repo.ID))

	chunks, err := s.chunkTree(ctx, repo.ID, req.Path)
	if err != nil {
		return nil, err
	}

	log.Info("Chunked repository", "repository_id", repo.ID, "chunks", len(chunks))

	if err := s.embedder.EmbedChunks(ctx, chunks); err != nil {
		return nil, err
	}

	// Delete-then-insert; re-indexing is not transactional across chunks.
	if err := s.chunks.DeleteByRepository(ctx, repo.ID); err != nil {
		return nil, err
	}

	if err := s.upsertAll(ctx, chunks); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	repo.IndexedAt = &now
	repo.ChunkCount = len(chunks)
	repo.Languages = distinctLanguages(chunks)

	if err := s.repos.Upsert(ctx, repo); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int(observability.AttrChunkCount, len(chunks)))
	log.Info("Indexed repository", "repository_id", repo.ID, "path", req.Path, "chunks", len(chunks))

	return repo, nil
}

// chunkTree chunks all files of the tree in parallel, preserving the
// walker's file order in the output. Unreadable files are logged and
// skipped.
func (s *Service) chunkTree(ctx context.Context, repositoryID, root string) ([]*store.CodeChunk, error) {
	files, err := chunker.WalkRepository(root)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()

	perFile := make([][]store.CodeChunk, len(files))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for i, file := range files {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunks, err := s.chunker.ChunkSourceFile(file)
			if err != nil {
				log.Warn("Skipping unreadable file", "path", file.Path, "error", err)
				return nil
			}
			perFile[i] = chunks
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var all []*store.CodeChunk
	for _, fileChunks := range perFile {
		for j := range fileChunks {
			chunk := fileChunks[j]
			chunk.ID = uuid.NewString()
			chunk.RepositoryID = repositoryID
			chunk.CreatedAt = now
			all = append(all, &chunk)
		}
	}

	return all, nil
}

// upsertAll fans the chunk batches out in parallel and awaits completion
// before the caller writes the repository record.
func (s *Service) upsertAll(ctx context.Context, chunks []*store.CodeChunk) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		group.Go(func() error {
			return s.chunks.UpsertBatch(ctx, batch)
		})
	}

	return group.Wait()
}

// resolveRepository reuses the stored record when re-indexing, otherwise
// builds a fresh one.
func (s *Service) resolveRepository(ctx context.Context, req IndexRequest) *store.Repository {
	if req.ID != "" {
		if existing, err := s.repos.Get(ctx, req.ID); err == nil && existing != nil {
			existing.Path = req.Path
			if req.Name != "" {
				existing.Name = req.Name
			}
			if req.Description != "" {
				existing.Description = req.Description
			}
			return existing
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	name := req.Name
	if name == "" {
		name = baseName(req.Path)
	}

	return &store.Repository{
		ID:          id,
		Name:        name,
		Path:        req.Path,
		Description: req.Description,
	}
}

// GetRepository returns the repository record, or nil when unknown.
func (s *Service) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	return s.repos.Get(ctx, id)
}

// ListRepositories returns all repository records.
func (s *Service) ListRepositories(ctx context.Context) ([]store.Repository, error) {
	return s.repos.List(ctx)
}

// DeleteRepository removes the repository record and its chunk partition.
func (s *Service) DeleteRepository(ctx context.Context, id string) error {
	if err := s.chunks.DeleteByRepository(ctx, id); err != nil {
		return err
	}
	return s.repos.Delete(ctx, id)
}

// Stats aggregates the repository's chunks by file, language and type.
func (s *Service) Stats(ctx context.Context, repositoryID string) (*Stats, error) {
	chunks, err := s.chunks.ListByRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		RepositoryID: repositoryID,
		ChunkCount:   len(chunks),
		Languages:    make(map[string]int),
		ChunkTypes:   make(map[string]int),
	}

	files := make(map[string]bool)
	for _, chunk := range chunks {
		files[chunk.FilePath] = true
		stats.Languages[chunk.Language]++
		stats.ChunkTypes[chunk.ChunkType]++
		stats.TotalLines += chunk.EndLine - chunk.StartLine + 1
	}
	stats.FileCount = len(files)

	return stats, nil
}

func distinctLanguages(chunks []*store.CodeChunk) []string {
	set := make(map[string]bool)
	for _, chunk := range chunks {
		if chunk.Language != "" {
			set[chunk.Language] = true
		}
	}
	languages := make([]string, 0, len(set))
	for language := range set {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	return languages
}

func baseName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if base == "." || base == string(filepath.Separator) {
		return "repository"
	}
	return base
}
