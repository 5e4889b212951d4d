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

// Package server exposes the agent and ingestion services over HTTP,
// including the server-sent-event chat stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/codequery/pkg/agent"
	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/ingest"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/store"
)

// AgentService answers repository questions, buffered or streamed.
type AgentService interface {
	Execute(ctx context.Context, repositoryID, conversationID, message string) (*agent.Response, error)
	ExecuteStream(ctx context.Context, repositoryID, conversationID, message string) (<-chan agent.StreamEvent, error)
}

// IngestionService indexes repositories and owns their records.
type IngestionService interface {
	IndexRepository(ctx context.Context, req ingest.IndexRequest) (*store.Repository, error)
	GetRepository(ctx context.Context, id string) (*store.Repository, error)
	ListRepositories(ctx context.Context) ([]store.Repository, error)
	DeleteRepository(ctx context.Context, id string) error
	Stats(ctx context.Context, repositoryID string) (*ingest.Stats, error)
}

// Server is the HTTP surface.
type Server struct {
	agent         AgentService
	ingestion     IngestionService
	conversations store.ConversationStore
	cfg           config.ServerConfig

	httpServer *http.Server
}

// New creates the server.
func New(a AgentService, ingestion IngestionService, conversations store.ConversationStore, cfg config.ServerConfig) *Server {
	return &Server{
		agent:         a,
		ingestion:     ingestion,
		conversations: conversations,
		cfg:           cfg,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})

	r.Route("/api/ingestion", func(r chi.Router) {
		r.Get("/repositories", s.handleListRepositories)
		r.Post("/repositories", s.handleIndexRepository)
		r.Get("/repositories/{id}", s.handleGetRepository)
		r.Delete("/repositories/{id}", s.handleDeleteRepository)
		r.Get("/repositories/{id}/stats", s.handleRepositoryStats)
	})

	return r
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.GetLogger().Info("HTTP server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := s.cfg.FrontendOrigin
	if origin == "" {
		origin = "*"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
