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
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/codequery/pkg/config"
)

const (
	chunkCollection = "code_chunks"

	// scrollPageSize is the page size for partition enumeration; pages are
	// followed via the returned offset until the partition is exhausted.
	scrollPageSize = 1024
)

// QdrantChunkStore implements ChunkStore on a qdrant collection. All chunks
// share one collection; the repository id lives in the payload and every
// query filters on it.
type QdrantChunkStore struct {
	client    *qdrant.Client
	dimension int
}

// NewQdrantChunkStore connects to qdrant and ensures the chunk collection
// exists with the deployment's fixed dimensionality and cosine distance.
func NewQdrantChunkStore(ctx context.Context, cfg *config.QdrantConfig, dimension int) (*QdrantChunkStore, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, NewStoreError("QdrantChunkStore", "NewQdrantChunkStore", "failed to create client", err)
	}

	s := &QdrantChunkStore{
		client:    client,
		dimension: dimension,
	}

	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *QdrantChunkStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, chunkCollection)
	if err != nil {
		return NewStoreError("QdrantChunkStore", "ensureCollection", "failed to check collection", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: chunkCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return NewStoreError("QdrantChunkStore", "ensureCollection", "failed to create collection", err)
	}

	return nil
}

func (s *QdrantChunkStore) Upsert(ctx context.Context, chunk *CodeChunk) error {
	return s.UpsertBatch(ctx, []*CodeChunk{chunk})
}

func (s *QdrantChunkStore) UpsertBatch(ctx context.Context, chunks []*CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		payload, err := chunkToPayload(chunk)
		if err != nil {
			return err
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: chunkCollection,
		Points:         points,
	})
	if err != nil {
		return NewStoreError("QdrantChunkStore", "UpsertBatch", "failed to upsert points", err)
	}

	return nil
}

func (s *QdrantChunkStore) DeleteByRepository(ctx context.Context, repositoryID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: chunkCollection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: repositoryFilter(repositoryID),
			},
		},
	})
	if err != nil {
		return NewStoreError("QdrantChunkStore", "DeleteByRepository",
			fmt.Sprintf("failed to delete chunks for repository %s", repositoryID), err)
	}
	return nil
}

func (s *QdrantChunkStore) ListByRepository(ctx context.Context, repositoryID string) ([]CodeChunk, error) {
	points, err := scrollAll(func(offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: chunkCollection,
			Filter:         repositoryFilter(repositoryID),
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		})
		if err != nil {
			return nil, nil, err
		}
		return resp.Result, resp.NextPageOffset, nil
	})
	if err != nil {
		return nil, NewStoreError("QdrantChunkStore", "ListByRepository", "scroll failed", err)
	}

	chunks := make([]CodeChunk, 0, len(points))
	for _, point := range points {
		chunk := payloadToChunk(pointID(point.Id), point.Payload)
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// scrollAll drains a paginated scroll, following NextPageOffset until the
// server reports no further page.
func scrollAll(fetch func(offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)) ([]*qdrant.RetrievedPoint, error) {
	var all []*qdrant.RetrievedPoint
	var offset *qdrant.PointId

	for {
		points, next, err := fetch(offset)
		if err != nil {
			return nil, err
		}
		all = append(all, points...)
		if next == nil {
			return all, nil
		}
		offset = next
	}
}

func (s *QdrantChunkStore) SearchVector(ctx context.Context, repositoryID string, queryEmbedding []float32, topK int) ([]ChunkMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: chunkCollection,
		Vector:         queryEmbedding,
		Limit:          uint64(topK),
		Filter:         repositoryFilter(repositoryID),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	searchResult, err := s.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, NewStoreError("QdrantChunkStore", "SearchVector", "search failed", err)
	}

	matches := make([]ChunkMatch, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		chunk := payloadToChunk(pointID(point.Id), point.Payload)
		matches = append(matches, ChunkMatch{
			Chunk: chunk,
			// qdrant reports cosine similarity; callers expect distance.
			Distance: 1 - point.Score,
		})
	}

	return matches, nil
}

func (s *QdrantChunkStore) Close() error {
	return s.client.Close()
}

func repositoryFilter(repositoryID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "repository_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: repositoryID},
						},
					},
				},
			},
		},
	}
}

func chunkToPayload(chunk *CodeChunk) (map[string]*qdrant.Value, error) {
	fields := map[string]any{
		"repository_id": chunk.RepositoryID,
		"file_path":     chunk.FilePath,
		"file_name":     chunk.FileName,
		"language":      chunk.Language,
		"content":       chunk.Content,
		"start_line":    int64(chunk.StartLine),
		"end_line":      int64(chunk.EndLine),
		"chunk_type":    chunk.ChunkType,
		"symbol_name":   chunk.SymbolName,
		"parent_class":  chunk.Metadata.ParentClass,
		"namespace":     chunk.Metadata.Namespace,
		"imports":       toAnySlice(chunk.Metadata.Imports),
		"references":    toAnySlice(chunk.Metadata.References),
		"complexity":    int64(chunk.Metadata.Complexity),
		"created_at":    chunk.CreatedAt.Format(time.RFC3339Nano),
	}

	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, NewStoreError("QdrantChunkStore", "chunkToPayload",
				fmt.Sprintf("failed to convert payload value for key %s", key), err)
		}
		payload[key] = val
	}

	return payload, nil
}

func payloadToChunk(id string, payload map[string]*qdrant.Value) CodeChunk {
	chunk := CodeChunk{
		ID:           id,
		RepositoryID: payloadString(payload, "repository_id"),
		FilePath:     payloadString(payload, "file_path"),
		FileName:     payloadString(payload, "file_name"),
		Language:     payloadString(payload, "language"),
		Content:      payloadString(payload, "content"),
		StartLine:    int(payloadInt(payload, "start_line")),
		EndLine:      int(payloadInt(payload, "end_line")),
		ChunkType:    payloadString(payload, "chunk_type"),
		SymbolName:   payloadString(payload, "symbol_name"),
		Metadata: ChunkMetadata{
			ParentClass: payloadString(payload, "parent_class"),
			Namespace:   payloadString(payload, "namespace"),
			Imports:     payloadStrings(payload, "imports"),
			References:  payloadStrings(payload, "references"),
			Complexity:  int(payloadInt(payload, "complexity")),
		},
	}

	if raw := payloadString(payload, "created_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			chunk.CreatedAt = t
		}
	}

	return chunk
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	}
	return ""
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if value, ok := payload[key]; ok {
		return value.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if value, ok := payload[key]; ok {
		return value.GetIntegerValue()
	}
	return 0
}

func payloadStrings(payload map[string]*qdrant.Value, key string) []string {
	value, ok := payload[key]
	if !ok {
		return nil
	}
	list := value.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
