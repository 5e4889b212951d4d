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
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/codequery/pkg/llms"
)

// SQLiteStore implements RepositoryStore and ConversationStore on sqlite.
type SQLiteStore struct {
	db              *sql.DB
	conversationTTL time.Duration
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	path        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	indexed_at  TIMESTAMP,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	languages   TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL,
	messages      TEXT NOT NULL DEFAULT '[]',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
`

// NewSQLiteStore opens (or creates) the database and applies the schema.
// conversationTTL of zero disables expiry.
func NewSQLiteStore(path string, conversationTTL time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, NewStoreError("SQLiteStore", "NewSQLiteStore", "failed to open database", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewStoreError("SQLiteStore", "NewSQLiteStore", "failed to apply schema", err)
	}

	return &SQLiteStore{
		db:              db,
		conversationTTL: conversationTTL,
	}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, repo *Repository) error {
	languages, err := json.Marshal(repo.Languages)
	if err != nil {
		return NewStoreError("SQLiteStore", "Upsert", "failed to marshal languages", err)
	}

	var indexedAt any
	if repo.IndexedAt != nil {
		indexedAt = repo.IndexedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, name, path, description, indexed_at, chunk_count, languages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			description = excluded.description,
			indexed_at = excluded.indexed_at,
			chunk_count = excluded.chunk_count,
			languages = excluded.languages`,
		repo.ID, repo.Name, repo.Path, repo.Description, indexedAt, repo.ChunkCount, string(languages))
	if err != nil {
		return NewStoreError("SQLiteStore", "Upsert", "failed to upsert repository", err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, description, indexed_at, chunk_count, languages
		FROM repositories WHERE id = ?`, id)

	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("SQLiteStore", "Get", "failed to read repository", err)
	}

	return repo, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, description, indexed_at, chunk_count, languages
		FROM repositories ORDER BY name`)
	if err != nil {
		return nil, NewStoreError("SQLiteStore", "List", "failed to list repositories", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, NewStoreError("SQLiteStore", "List", "failed to scan repository", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("SQLiteStore", "List", "row iteration failed", err)
	}

	return repos, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
		return NewStoreError("SQLiteStore", "Delete", "failed to delete repository", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*Repository, error) {
	var repo Repository
	var indexedAt sql.NullTime
	var languages string

	if err := row.Scan(&repo.ID, &repo.Name, &repo.Path, &repo.Description,
		&indexedAt, &repo.ChunkCount, &languages); err != nil {
		return nil, err
	}

	if indexedAt.Valid {
		t := indexedAt.Time
		repo.IndexedAt = &t
	}

	if err := json.Unmarshal([]byte(languages), &repo.Languages); err != nil {
		repo.Languages = nil
	}

	return &repo, nil
}

// UpsertConversation writes the conversation, bumps UpdatedAt and
// opportunistically purges expired conversations.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *ConversationContext) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return NewStoreError("SQLiteStore", "UpsertConversation", "failed to marshal messages", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, repository_id, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repository_id = excluded.repository_id,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		conv.ID, conv.RepositoryID, string(messages), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return NewStoreError("SQLiteStore", "UpsertConversation", "failed to upsert conversation", err)
	}

	s.purgeExpired(ctx)

	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*ConversationContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repository_id, messages, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	var conv ConversationContext
	var messages string
	err := row.Scan(&conv.ID, &conv.RepositoryID, &messages, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("SQLiteStore", "GetConversation", "failed to read conversation", err)
	}

	if s.conversationTTL > 0 && time.Since(conv.UpdatedAt) > s.conversationTTL {
		return nil, nil
	}

	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		conv.Messages = []llms.Message{}
	}

	return &conv, nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return NewStoreError("SQLiteStore", "DeleteConversation", "failed to delete conversation", err)
	}
	return nil
}

func (s *SQLiteStore) purgeExpired(ctx context.Context) {
	if s.conversationTTL <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.conversationTTL)
	// Best-effort; expiry is also enforced on read.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, cutoff)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Conversations returns a ConversationStore view of the sqlite store.
func (s *SQLiteStore) Conversations() ConversationStore {
	return &sqliteConversations{s}
}

type sqliteConversations struct {
	store *SQLiteStore
}

func (c *sqliteConversations) Upsert(ctx context.Context, conv *ConversationContext) error {
	return c.store.UpsertConversation(ctx, conv)
}

func (c *sqliteConversations) Get(ctx context.Context, id string) (*ConversationContext, error) {
	return c.store.GetConversation(ctx, id)
}

func (c *sqliteConversations) Delete(ctx context.Context, id string) error {
	return c.store.DeleteConversation(ctx, id)
}

func (c *sqliteConversations) Close() error {
	return nil
}
