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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/codequery/pkg/llms"
)

func newSQLiteStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRepositories(t *testing.T) {
	store := newSQLiteStore(t, 0)
	ctx := context.Background()

	indexed := time.Now().UTC().Truncate(time.Second)
	repo := &Repository{
		ID:         "repo-1",
		Name:       "demo",
		Path:       "/src/demo",
		IndexedAt:  &indexed,
		ChunkCount: 42,
		Languages:  []string{"csharp", "go"},
	}
	require.NoError(t, store.Upsert(ctx, repo))

	loaded, err := store.Get(ctx, "repo-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "demo", loaded.Name)
	assert.Equal(t, 42, loaded.ChunkCount)
	assert.Equal(t, []string{"csharp", "go"}, loaded.Languages)
	require.NotNil(t, loaded.IndexedAt)
	assert.True(t, loaded.IndexedAt.Equal(indexed))

	// Upsert replaces the record.
	repo.ChunkCount = 7
	require.NoError(t, store.Upsert(ctx, repo))
	loaded, err = store.Get(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.ChunkCount)

	repos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 1)

	require.NoError(t, store.Delete(ctx, "repo-1"))
	loaded, err = store.Get(ctx, "repo-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteGet_Missing(t *testing.T) {
	store := newSQLiteStore(t, 0)

	repo, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestSQLiteList_SortedByName(t *testing.T) {
	store := newSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Repository{ID: "b", Name: "zeta", Path: "/z"}))
	require.NoError(t, store.Upsert(ctx, &Repository{ID: "a", Name: "alpha", Path: "/a"}))

	repos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "alpha", repos[0].Name)
	assert.Equal(t, "zeta", repos[1].Name)
}

func TestSQLiteConversations(t *testing.T) {
	store := newSQLiteStore(t, 0)
	conversations := store.Conversations()
	ctx := context.Background()

	conv := &ConversationContext{
		ID:           "conv-1",
		RepositoryID: "repo-1",
		Messages: []llms.Message{
			{Role: llms.RoleUser, Content: "How does login work?"},
			{Role: llms.RoleAssistant, Content: "Login lives in [1]."},
		},
	}
	require.NoError(t, conversations.Upsert(ctx, conv))
	assert.False(t, conv.UpdatedAt.IsZero())

	loaded, err := conversations.Get(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, llms.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, "Login lives in [1].", loaded.Messages[1].Content)

	require.NoError(t, conversations.Delete(ctx, "conv-1"))
	loaded, err = conversations.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteConversations_TTLEnforcedOnRead(t *testing.T) {
	store := newSQLiteStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.UpsertConversation(ctx, &ConversationContext{
		ID:           "conv-1",
		RepositoryID: "repo-1",
	}))

	// Backdate the row past the TTL.
	_, err := store.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*time.Hour), "conv-1")
	require.NoError(t, err)

	loaded, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteConversations_UpsertPurgesExpired(t *testing.T) {
	store := newSQLiteStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.UpsertConversation(ctx, &ConversationContext{ID: "old"}))
	_, err := store.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*time.Hour), "old")
	require.NoError(t, err)

	require.NoError(t, store.UpsertConversation(ctx, &ConversationContext{ID: "fresh"}))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations`).Scan(&count))
	assert.Equal(t, 1, count)
}
