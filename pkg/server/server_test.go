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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/codequery/pkg/agent"
	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/ingest"
	"github.com/kadirpekel/codequery/pkg/store"
)

type stubAgent struct {
	response *agent.Response
	events   []agent.StreamEvent
	err      error
}

func (s *stubAgent) Execute(ctx context.Context, repositoryID, conversationID, message string) (*agent.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubAgent) ExecuteStream(ctx context.Context, repositoryID, conversationID, message string) (<-chan agent.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan agent.StreamEvent, len(s.events))
	for _, event := range s.events {
		ch <- event
	}
	close(ch)
	return ch, nil
}

type stubIngestion struct {
	repos map[string]*store.Repository
	stats *ingest.Stats
}

func newStubIngestion() *stubIngestion {
	return &stubIngestion{repos: make(map[string]*store.Repository)}
}

func (s *stubIngestion) IndexRepository(ctx context.Context, req ingest.IndexRequest) (*store.Repository, error) {
	repo := &store.Repository{ID: "repo-1", Name: "demo", Path: req.Path, ChunkCount: 3}
	s.repos[repo.ID] = repo
	return repo, nil
}

func (s *stubIngestion) GetRepository(ctx context.Context, id string) (*store.Repository, error) {
	return s.repos[id], nil
}

func (s *stubIngestion) ListRepositories(ctx context.Context) ([]store.Repository, error) {
	var out []store.Repository
	for _, repo := range s.repos {
		out = append(out, *repo)
	}
	return out, nil
}

func (s *stubIngestion) DeleteRepository(ctx context.Context, id string) error {
	delete(s.repos, id)
	return nil
}

func (s *stubIngestion) Stats(ctx context.Context, repositoryID string) (*ingest.Stats, error) {
	return s.stats, nil
}

type memoryConversations struct {
	convs map[string]*store.ConversationContext
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{convs: make(map[string]*store.ConversationContext)}
}

func (m *memoryConversations) Upsert(ctx context.Context, conv *store.ConversationContext) error {
	m.convs[conv.ID] = conv
	return nil
}

func (m *memoryConversations) Get(ctx context.Context, id string) (*store.ConversationContext, error) {
	return m.convs[id], nil
}

func (m *memoryConversations) Delete(ctx context.Context, id string) error {
	delete(m.convs, id)
	return nil
}

func (m *memoryConversations) Close() error { return nil }

func newTestServer(a *stubAgent, ingestion *stubIngestion, conversations *memoryConversations) http.Handler {
	if a == nil {
		a = &stubAgent{response: &agent.Response{Answer: "ok", IsComplete: true}}
	}
	if ingestion == nil {
		ingestion = newStubIngestion()
	}
	if conversations == nil {
		conversations = newMemoryConversations()
	}
	return New(a, ingestion, conversations, config.ServerConfig{}).Router()
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	a := &stubAgent{response: &agent.Response{
		Answer:         "Login lives in [1].",
		IsComplete:     true,
		ConversationID: "conv-1",
	}}
	handler := newTestServer(a, nil, nil)

	rec := postJSON(t, handler, "/api/agent/chat",
		`{"message": "How does login work?", "repositoryId": "repo-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Login lives in [1].", response.Answer)
	assert.Equal(t, "conv-1", response.ConversationID)
}

func TestChat_Validation(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"repositoryId": "repo-1"}`},
		{"blank message", `{"message": "  ", "repositoryId": "repo-1"}`},
		{"missing repository", `{"message": "hi"}`},
		{"malformed body", `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/agent/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestChatStream(t *testing.T) {
	a := &stubAgent{events: []agent.StreamEvent{
		{Type: agent.EventAction, Content: `{"tool":"code_search","input":{"query":"login"}}`},
		{Type: agent.EventObservation, Content: "Found 1 results"},
		{Type: agent.EventAnswer, Content: "Login lives "},
		{Type: agent.EventAnswer, Content: "in auth.cs."},
		{Type: agent.EventDone, ConversationID: "conv-1"},
	}}
	handler := newTestServer(a, nil, nil)

	rec := postJSON(t, handler, "/api/agent/chat/stream",
		`{"message": "q", "repositoryId": "repo-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 5)

	var types []string
	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "))
		var event agent.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{
		agent.EventAction, agent.EventObservation,
		agent.EventAnswer, agent.EventAnswer, agent.EventDone,
	}, types)
}

func TestChatStream_Validation(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	rec := postJSON(t, handler, "/api/agent/chat/stream", `{"message": "q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGetConversation(t *testing.T) {
	conversations := newMemoryConversations()
	conversations.convs["conv-1"] = &store.ConversationContext{
		ID:           "conv-1",
		RepositoryID: "repo-1",
	}
	handler := newTestServer(nil, nil, conversations)

	req := httptest.NewRequest(http.MethodGet, "/api/agent/conversations/conv-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var conv store.ConversationContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "conv-1", conv.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/agent/conversations/missing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	conversations := newMemoryConversations()
	conversations.convs["conv-1"] = &store.ConversationContext{ID: "conv-1"}
	handler := newTestServer(nil, nil, conversations)

	req := httptest.NewRequest(http.MethodDelete, "/api/agent/conversations/conv-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, conversations.convs, "conv-1")
}

func TestIndexRepository(t *testing.T) {
	ingestion := newStubIngestion()
	handler := newTestServer(nil, ingestion, nil)

	rec := postJSON(t, handler, "/api/ingestion/repositories", `{"path": "/tmp/demo"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var repo store.Repository
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repo))
	assert.Equal(t, "repo-1", repo.ID)
	assert.Equal(t, "/tmp/demo", repo.Path)
}

func TestIndexRepository_MissingPath(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	rec := postJSON(t, handler, "/api/ingestion/repositories", `{"name": "demo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRepositories_EmptyIsArray(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ingestion/repositories", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetRepository_NotFound(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ingestion/repositories/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRepository(t *testing.T) {
	ingestion := newStubIngestion()
	ingestion.repos["repo-1"] = &store.Repository{ID: "repo-1"}
	handler := newTestServer(nil, ingestion, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/ingestion/repositories/repo-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, ingestion.repos, "repo-1")
}

func TestRepositoryStats(t *testing.T) {
	ingestion := newStubIngestion()
	ingestion.repos["repo-1"] = &store.Repository{ID: "repo-1"}
	ingestion.stats = &ingest.Stats{RepositoryID: "repo-1", ChunkCount: 7, FileCount: 2}
	handler := newTestServer(nil, ingestion, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ingestion/repositories/repo-1/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats ingest.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.ChunkCount)

	req = httptest.NewRequest(http.MethodGet, "/api/ingestion/repositories/missing/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/agent/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
