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
)

// StoreError wraps a persistence failure with its origin.
type StoreError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(component, operation, message string, err error) *StoreError {
	return &StoreError{
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ChunkStore persists code chunks, partitioned by repository id.
// Not-found is a nil/empty result, not an error.
type ChunkStore interface {
	Upsert(ctx context.Context, chunk *CodeChunk) error

	UpsertBatch(ctx context.Context, chunks []*CodeChunk) error

	// DeleteByRepository removes the repository partition. Best-effort:
	// it may be partial on failure, and callers must tolerate leftover
	// chunks on retry.
	DeleteByRepository(ctx context.Context, repositoryID string) error

	ListByRepository(ctx context.Context, repositoryID string) ([]CodeChunk, error)

	// SearchVector returns the topK chunks of the repository minimizing
	// cosine distance to the query embedding, ascending by distance.
	SearchVector(ctx context.Context, repositoryID string, queryEmbedding []float32, topK int) ([]ChunkMatch, error)

	Close() error
}

// RepositoryStore persists repository records keyed by id.
type RepositoryStore interface {
	Upsert(ctx context.Context, repo *Repository) error

	// Get returns nil without error when the repository does not exist.
	Get(ctx context.Context, id string) (*Repository, error)

	List(ctx context.Context) ([]Repository, error)

	Delete(ctx context.Context, id string) error

	Close() error
}

// ConversationStore persists conversation histories keyed by id.
type ConversationStore interface {
	// Upsert writes the conversation and bumps UpdatedAt.
	Upsert(ctx context.Context, conv *ConversationContext) error

	// Get returns nil without error when the conversation does not exist.
	Get(ctx context.Context, id string) (*ConversationContext, error)

	Delete(ctx context.Context, id string) error

	Close() error
}
