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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(id, repositoryID string, embedding []float32) *CodeChunk {
	return &CodeChunk{
		ID:           id,
		RepositoryID: repositoryID,
		FilePath:     fmt.Sprintf("src/%s.go", id),
		FileName:     id + ".go",
		Language:     "go",
		Content:      "func " + id + "() {}",
		StartLine:    1,
		EndLine:      1,
		ChunkType:    ChunkTypeFunction,
		Embedding:    embedding,
	}
}

func TestChromemUpsertAndList(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*CodeChunk{
		testChunk("a", "repo-1", []float32{1, 0}),
		testChunk("b", "repo-1", []float32{0, 1}),
		testChunk("c", "repo-2", []float32{1, 0}),
	}))

	chunks, err := store.ListByRepository(ctx, "repo-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	chunks, err = store.ListByRepository(ctx, "repo-2")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	chunks, err = store.ListByRepository(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChromemSearchVector(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*CodeChunk{
		testChunk("near", "repo-1", []float32{1, 0}),
		testChunk("far", "repo-1", []float32{0, 1}),
	}))

	matches, err := store.SearchVector(ctx, "repo-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "near", matches[0].Chunk.ID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestChromemSearchVector_TopKAboveCollectionSize(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testChunk("only", "repo-1", []float32{1, 0})))

	matches, err := store.SearchVector(ctx, "repo-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChromemSearchVector_UnknownRepository(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)

	matches, err := store.SearchVector(context.Background(), "unknown", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemDeleteByRepository(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*CodeChunk{
		testChunk("a", "repo-1", []float32{1, 0}),
		testChunk("b", "repo-2", []float32{0, 1}),
	}))

	require.NoError(t, store.DeleteByRepository(ctx, "repo-1"))

	chunks, err := store.ListByRepository(ctx, "repo-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Other partitions are untouched.
	chunks, err = store.ListByRepository(ctx, "repo-2")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestChromemDeleteByRepository_Missing(t *testing.T) {
	store, err := NewChromemChunkStore("")
	require.NoError(t, err)

	assert.NoError(t, store.DeleteByRepository(context.Background(), "never-indexed"))
}
