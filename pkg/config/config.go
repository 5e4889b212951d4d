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

// Package config defines the service configuration with YAML loading,
// environment variable expansion, defaults and validation.
package config

import (
	"fmt"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	FrontendOrigin string `yaml:"frontend_origin"`
}

// LLMConfig configures the chat model provider (OpenAI-compatible API).
type LLMConfig struct {
	Host        string  `yaml:"host"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay"`

	// NativeToolCalls disables the inline-JSON tool call fallback when the
	// provider supports the tools API natively. Default: true.
	NativeToolCalls *bool `yaml:"native_tool_calls,omitempty"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"`

	// MaxTextLength caps the prepared chunk text before embedding.
	MaxTextLength int `yaml:"max_text_length"`
}

// StoreConfig configures persistence. The chunk collection lives in a vector
// store (qdrant or embedded chromem); repositories and conversations live in
// sqlite.
type StoreConfig struct {
	// Type selects the vector store backend: "qdrant" or "chromem".
	Type string `yaml:"type"`

	Qdrant QdrantConfig `yaml:"qdrant"`

	// ChromemPath enables file persistence for the embedded store.
	// Empty means in-memory only.
	ChromemPath string `yaml:"chromem_path"`

	// SQLitePath is the database file for repositories and conversations.
	// ":memory:" is accepted for tests.
	SQLitePath string `yaml:"sqlite_path"`

	// ConversationTTLDays purges conversations older than this. 0 disables.
	ConversationTTLDays int `yaml:"conversation_ttl_days"`
}

// QdrantConfig holds qdrant connection settings.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	EnableTLS *bool  `yaml:"enable_tls,omitempty"`
}

// ChunkingConfig controls the document chunker.
type ChunkingConfig struct {
	// MaxChunkSize is the character budget for size-based chunks.
	MaxChunkSize int `yaml:"max_chunk_size"`

	// OverlapSize is the character overlap budget; the chunker derives the
	// line overlap between consecutive size-based chunks from it.
	OverlapSize int `yaml:"overlap_size"`
}

// AgentConfig controls the reasoning loop.
type AgentConfig struct {
	MaxIterations   int `yaml:"max_iterations"`
	HistoryWindow   int `yaml:"history_window"`
	MaxHistoryToken int `yaml:"max_history_tokens"`

	// EnableToolLoop switches between the tool-using agent (true) and the
	// single-shot RAG answer path (false).
	EnableToolLoop *bool `yaml:"enable_tool_loop,omitempty"`

	// SearchTopK is the default result count for retrieval.
	SearchTopK int `yaml:"search_top_k"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LLM.Host == "" {
		c.LLM.Host = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay == 0 {
		c.LLM.RetryDelay = 2
	}
	if c.Embedder.Host == "" {
		c.Embedder.Host = c.LLM.Host
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = c.LLM.APIKey
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1536
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 100
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 30
	}
	if c.Embedder.MaxTextLength == 0 {
		c.Embedder.MaxTextLength = 8000
	}
	if c.Store.Type == "" {
		c.Store.Type = "qdrant"
	}
	if c.Store.Qdrant.Host == "" {
		c.Store.Qdrant.Host = "localhost"
	}
	if c.Store.Qdrant.Port == 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "codequery.db"
	}
	if c.Store.ConversationTTLDays == 0 {
		c.Store.ConversationTTLDays = 7
	}
	if c.Chunking.MaxChunkSize == 0 {
		c.Chunking.MaxChunkSize = 1500
	}
	if c.Chunking.OverlapSize == 0 {
		c.Chunking.OverlapSize = 100
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.HistoryWindow == 0 {
		c.Agent.HistoryWindow = 10
	}
	if c.Agent.MaxHistoryToken == 0 {
		c.Agent.MaxHistoryToken = 8000
	}
	if c.Agent.SearchTopK == 0 {
		c.Agent.SearchTopK = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks start-up requirements. A missing provider key or store
// connection is fatal.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set LLM_API_KEY)")
	}

	switch c.Store.Type {
	case "qdrant":
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("store.qdrant.host is required for store type %q", c.Store.Type)
		}
	case "chromem":
		// Embedded store needs no connection.
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}

	if c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required")
	}

	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	}

	if c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.overlap_size (%d) must be less than max_chunk_size (%d)",
			c.Chunking.OverlapSize, c.Chunking.MaxChunkSize)
	}

	return nil
}

// ToolLoopEnabled reports whether the tool-using agent loop is active.
func (c *AgentConfig) ToolLoopEnabled() bool {
	return c.EnableToolLoop == nil || *c.EnableToolLoop
}

// NativeToolCallsEnabled reports whether the provider's native tools API is
// trusted without the inline-JSON fallback scan.
func (c *LLMConfig) NativeToolCallsEnabled() bool {
	return c.NativeToolCalls == nil || *c.NativeToolCalls
}

// BoolPtr returns a pointer to the given bool, for optional config fields.
func BoolPtr(b bool) *bool {
	return &b
}
