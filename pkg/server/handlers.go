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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/codequery/pkg/ingest"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/store"
)

type chatRequest struct {
	Message        string `json:"message"`
	RepositoryID   string `json:"repositoryId"`
	ConversationID string `json:"conversationId,omitempty"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	if strings.TrimSpace(req.RepositoryID) == "" {
		writeError(w, http.StatusBadRequest, "repositoryId is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	response, err := s.agent.Execute(r.Context(), req.RepositoryID, req.ConversationID, req.Message)
	if err != nil {
		logger.GetLogger().Error("Chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// handleChatStream answers over server-sent events. Each event is framed
// as "data: <json>\n\n"; the stream ends with a done event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := s.agent.ExecuteStream(r.Context(), req.RepositoryID, req.ConversationID, req.Message)
	if err != nil {
		logger.GetLogger().Error("Stream request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the agent stops on context cancellation.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.conversations.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation: %v", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found: %s", id)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.conversations.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete conversation: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.ingestion.ListRepositories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list repositories: %v", err)
		return
	}
	if repos == nil {
		repos = []store.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleIndexRepository(w http.ResponseWriter, r *http.Request) {
	var req ingest.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	repo, err := s.ingestion.IndexRepository(r.Context(), req)
	if err != nil {
		logger.GetLogger().Error("Indexing failed", "path", req.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "indexing failed: %v", err)
		return
	}

	writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	repo, err := s.ingestion.GetRepository(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load repository: %v", err)
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found: %s", id)
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.ingestion.DeleteRepository(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete repository: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRepositoryStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	repo, err := s.ingestion.GetRepository(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load repository: %v", err)
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found: %s", id)
		return
	}

	stats, err := s.ingestion.Stats(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
