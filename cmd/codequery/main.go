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

// Command codequery serves the repository question-answering API: index a
// source tree, then ask questions against it over HTTP or SSE.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kadirpekel/codequery/pkg/agent"
	"github.com/kadirpekel/codequery/pkg/chunker"
	"github.com/kadirpekel/codequery/pkg/citations"
	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/embedders"
	"github.com/kadirpekel/codequery/pkg/embedding"
	"github.com/kadirpekel/codequery/pkg/ingest"
	"github.com/kadirpekel/codequery/pkg/llms"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/retriever"
	"github.com/kadirpekel/codequery/pkg/server"
	"github.com/kadirpekel/codequery/pkg/store"
	"github.com/kadirpekel/codequery/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "codequery.yaml", "path to the configuration file")
	flag.Parse()

	// Missing .env is fine; the config loader reads the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stdout, cfg.Logging.Format)
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := llms.NewOpenAIProvider(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	defer provider.Close()

	embedder, err := embedders.NewOpenAIEmbedder(&cfg.Embedder)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer embedder.Close()

	embeddingService := embedding.NewService(embedder, cfg.Embedder.MaxTextLength)

	chunks, err := newChunkStore(ctx, cfg, embeddingService.Dimension())
	if err != nil {
		return fmt.Errorf("failed to create chunk store: %w", err)
	}
	defer chunks.Close()

	ttl := time.Duration(cfg.Store.ConversationTTLDays) * 24 * time.Hour
	sqlite, err := store.NewSQLiteStore(cfg.Store.SQLitePath, ttl)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	defer sqlite.Close()
	conversations := sqlite.Conversations()

	ingestion := ingest.NewService(chunker.New(&cfg.Chunking), embeddingService, chunks, sqlite)
	searcher := retriever.New(embeddingService, chunks)

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewCodeSearchTool(searcher),
		tools.NewReadFileTool(chunks),
		tools.NewFindReferencesTool(chunks),
		tools.NewExplainCodeTool(provider),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool: %w", err)
		}
	}

	agentService := agent.New(provider, registry, citations.NewService(), conversations, searcher, cfg.Agent)

	srv := server.New(agentService, ingestion, conversations, cfg.Server)

	log.Info("Starting codequery",
		"model", cfg.LLM.Model,
		"embedder", cfg.Embedder.Model,
		"store", cfg.Store.Type)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Shutdown complete")
	return nil
}

func newChunkStore(ctx context.Context, cfg *config.Config, dimension int) (store.ChunkStore, error) {
	switch cfg.Store.Type {
	case "chromem":
		return store.NewChromemChunkStore(cfg.Store.ChromemPath)
	default:
		return store.NewQdrantChunkStore(ctx, &cfg.Store.Qdrant, dimension)
	}
}
