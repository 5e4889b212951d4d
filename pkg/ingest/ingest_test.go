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

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/codequery/pkg/chunker"
	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/embedding"
	"github.com/kadirpekel/codequery/pkg/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) GetDimension() int    { return 2 }
func (fakeEmbedder) GetModelName() string { return "fake" }
func (fakeEmbedder) Close() error         { return nil }

type memoryRepos struct {
	repos map[string]*store.Repository
}

func newMemoryRepos() *memoryRepos {
	return &memoryRepos{repos: make(map[string]*store.Repository)}
}

func (m *memoryRepos) Upsert(ctx context.Context, repo *store.Repository) error {
	copied := *repo
	m.repos[repo.ID] = &copied
	return nil
}

func (m *memoryRepos) Get(ctx context.Context, id string) (*store.Repository, error) {
	repo, ok := m.repos[id]
	if !ok {
		return nil, nil
	}
	copied := *repo
	return &copied, nil
}

func (m *memoryRepos) List(ctx context.Context) ([]store.Repository, error) {
	var out []store.Repository
	for _, repo := range m.repos {
		out = append(out, *repo)
	}
	return out, nil
}

func (m *memoryRepos) Delete(ctx context.Context, id string) error {
	delete(m.repos, id)
	return nil
}

func (m *memoryRepos) Close() error { return nil }

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	files := map[string]string{
		"src/main.go":  "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n",
		"src/util.go":  "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n",
		"src/model.py": "class Model:\n    def predict(self):\n        return 0\n",
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, path), []byte(content), 0o644))
	}
	return root
}

func newTestService(t *testing.T) (*Service, *memoryRepos, store.ChunkStore) {
	t.Helper()

	chunks, err := store.NewChromemChunkStore("")
	require.NoError(t, err)

	repos := newMemoryRepos()
	service := NewService(
		chunker.New(&config.ChunkingConfig{MaxChunkSize: 1500, OverlapSize: 100}),
		embedding.NewService(fakeEmbedder{}, 0),
		chunks,
		repos,
	)
	return service, repos, chunks
}

func TestIndexRepository(t *testing.T) {
	service, repos, chunks := newTestService(t)
	root := writeTree(t)

	repo, err := service.IndexRepository(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	assert.NotEmpty(t, repo.ID)
	assert.Equal(t, filepath.Base(root), repo.Name)
	assert.NotNil(t, repo.IndexedAt)
	assert.Equal(t, []string{"go", "python"}, repo.Languages)
	assert.Greater(t, repo.ChunkCount, 0)

	stored, err := repos.Get(context.Background(), repo.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, repo.ChunkCount, stored.ChunkCount)

	indexed, err := chunks.ListByRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Len(t, indexed, repo.ChunkCount)
	for _, chunk := range indexed {
		assert.Equal(t, repo.ID, chunk.RepositoryID)
		assert.NotEmpty(t, chunk.ID)
	}
}

func TestIndexRepository_ReindexIsStable(t *testing.T) {
	service, _, _ := newTestService(t)
	root := writeTree(t)

	first, err := service.IndexRepository(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	second, err := service.IndexRepository(context.Background(),
		IndexRequest{ID: first.ID, Path: root})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, first.Languages, second.Languages)
}

func TestIndexRepository_BadPath(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.IndexRepository(context.Background(), IndexRequest{Path: "/does/not/exist"})
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	service, _, _ := newTestService(t)
	root := writeTree(t)

	repo, err := service.IndexRepository(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	stats, err := service.Stats(context.Background(), repo.ID)
	require.NoError(t, err)

	assert.Equal(t, repo.ID, stats.RepositoryID)
	assert.Equal(t, repo.ChunkCount, stats.ChunkCount)
	assert.Equal(t, 3, stats.FileCount)
	assert.Greater(t, stats.TotalLines, 0)
	assert.Greater(t, stats.Languages["go"], 0)
	assert.Greater(t, stats.ChunkTypes[store.ChunkTypeFunction], 0)
}

func TestDeleteRepository(t *testing.T) {
	service, repos, chunks := newTestService(t)
	root := writeTree(t)

	repo, err := service.IndexRepository(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	require.NoError(t, service.DeleteRepository(context.Background(), repo.ID))

	stored, err := repos.Get(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	remaining, err := chunks.ListByRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
