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

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/codequery/pkg/citations"
	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/llms"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/observability"
	"github.com/kadirpekel/codequery/pkg/retriever"
	"github.com/kadirpekel/codequery/pkg/store"
	"github.com/kadirpekel/codequery/pkg/tools"
)

const systemPrompt = `You are a code assistant answering questions about one indexed repository.
Use the available tools to search and read the repository's code before answering; do not guess.
When you reference code in your answer, cite it as [path:startLine-endLine].
Answer concisely and ground every claim in code you have actually seen.`

const exhaustedAnswer = "I'm sorry, I could not complete the request within the allotted number of reasoning steps. Try asking a narrower question."

// Agent orchestrates the tool-calling loop for one service instance. Safe
// for concurrent use; all per-request state lives on the stack.
type Agent struct {
	provider      llms.Provider
	registry      *tools.Registry
	citations     *citations.Service
	conversations store.ConversationStore
	retriever     *retriever.Retriever
	tokens        *TokenCounter
	cfg           config.AgentConfig
}

// New creates an Agent.
func New(provider llms.Provider, registry *tools.Registry, citationService *citations.Service,
	conversations store.ConversationStore, ret *retriever.Retriever, cfg config.AgentConfig) *Agent {
	return &Agent{
		provider:      provider,
		registry:      registry,
		citations:     citationService,
		conversations: conversations,
		retriever:     ret,
		tokens:        NewTokenCounter(provider.GetModelName()),
		cfg:           cfg,
	}
}

// Execute answers a message about a repository and returns the grounded
// response.
func (a *Agent) Execute(ctx context.Context, repositoryID, conversationID, message string) (*Response, error) {
	tracer := observability.GetTracer("agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRequest, trace.WithAttributes(
		attribute.String(observability.AttrRepositoryID, repositoryID),
		attribute.String(observability.AttrLLMModel, a.provider.GetModelName()),
	))
	defer span.End()

	conv, err := a.loadConversation(ctx, repositoryID, conversationID)
	if err != nil {
		return nil, err
	}

	if !a.cfg.ToolLoopEnabled() {
		return a.executeRAG(ctx, conv, message)
	}

	messages := a.buildMessages(conv, message)
	definitions := a.registry.Definitions()

	var toolResults []string
	var steps []ReasoningStep

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		observability.GetMetrics().RecordAgentIteration(ctx, conv.RepositoryID)

		result, err := a.provider.Chat(ctx, messages, definitions)
		if err != nil {
			return nil, fmt.Errorf("model request failed: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			grounded := a.citations.Ground(result.Content, toolResults)
			if err := a.persist(ctx, conv, message, grounded.Content); err != nil {
				return nil, err
			}
			span.SetAttributes(attribute.Int(observability.AttrIterations, iteration+1))
			return &Response{
				Answer:         grounded.Content,
				Citations:      grounded.Citations,
				CitationMap:    grounded.CitationMap,
				ReasoningSteps: steps,
				IsComplete:     true,
				ConversationID: conv.ID,
			}, nil
		}

		messages = append(messages, llms.Message{
			ID:        uuid.NewString(),
			Role:      llms.RoleAssistant,
			Content:   result.Content,
			Timestamp: time.Now(),
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			observation := a.executeTool(ctx, conv.RepositoryID, call)
			toolResults = append(toolResults, observation)

			steps = append(steps, ReasoningStep{
				StepNumber:  len(steps) + 1,
				Thought:     result.Content,
				Action:      call.Name,
				ActionInput: call.Arguments,
				Observation: observation,
			})

			messages = append(messages, llms.Message{
				ID:         uuid.NewString(),
				Role:       llms.RoleTool,
				Content:    observation,
				Timestamp:  time.Now(),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	// Iteration budget exhausted.
	if err := a.persist(ctx, conv, message, exhaustedAnswer); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(observability.AttrIterations, a.cfg.MaxIterations))
	return &Response{
		Answer:         exhaustedAnswer,
		ReasoningSteps: steps,
		IsComplete:     false,
		ConversationID: conv.ID,
	}, nil
}

// executeRAG is the single-shot degradation: one hybrid search, one model
// call with the results as context, no tool loop.
func (a *Agent) executeRAG(ctx context.Context, conv *store.ConversationContext, message string) (*Response, error) {
	results, err := a.retriever.HybridSearch(ctx, conv.RepositoryID, message, nil, a.cfg.SearchTopK)
	if err != nil {
		return nil, err
	}

	contextBlock := formatSearchContext(results)

	messages := a.buildMessages(conv, message)
	// Splice the retrieved context ahead of the user question.
	messages[len(messages)-1].Content = fmt.Sprintf(
		"Relevant code from the repository:\n\n%s\n\nQuestion: %s", contextBlock, message)

	result, err := a.provider.Chat(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	grounded := a.citations.Ground(result.Content, []string{contextBlock})
	if err := a.persist(ctx, conv, message, grounded.Content); err != nil {
		return nil, err
	}

	return &Response{
		Answer:         grounded.Content,
		Citations:      grounded.Citations,
		CitationMap:    grounded.CitationMap,
		IsComplete:     true,
		ConversationID: conv.ID,
	}, nil
}

// executeTool runs one tool call. Failures come back as "Error:" strings;
// nothing is raised.
func (a *Agent) executeTool(ctx context.Context, repositoryID string, call llms.ToolCall) string {
	tracer := observability.GetTracer("agent")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution, trace.WithAttributes(
		attribute.String(observability.AttrToolName, call.Name),
	))
	defer span.End()

	tool, ok := a.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool: %s", call.Name)
	}

	started := time.Now()
	observation := tool.Execute(ctx, call.Arguments, repositoryID)

	var errAttr error
	if strings.HasPrefix(observation, "Error:") {
		errAttr = fmt.Errorf("%s", observation)
	}
	observability.GetMetrics().RecordToolExecution(ctx, call.Name, time.Since(started), errAttr)

	return observation
}

// loadConversation fetches the conversation or starts a fresh one when the
// id is empty or unknown.
func (a *Agent) loadConversation(ctx context.Context, repositoryID, conversationID string) (*store.ConversationContext, error) {
	if conversationID != "" {
		conv, err := a.conversations.Get(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if conv != nil {
			return conv, nil
		}
	}

	id := conversationID
	if id == "" {
		id = uuid.NewString()
	}
	return &store.ConversationContext{
		ID:           id,
		RepositoryID: repositoryID,
	}, nil
}

// buildMessages assembles system prompt, history tail and the new user
// message.
func (a *Agent) buildMessages(conv *store.ConversationContext, message string) []llms.Message {
	messages := []llms.Message{
		{Role: llms.RoleSystem, Content: systemPrompt},
	}
	messages = append(messages, a.historyTail(conv.Messages)...)
	messages = append(messages, llms.Message{
		ID:        uuid.NewString(),
		Role:      llms.RoleUser,
		Content:   message,
		Timestamp: time.Now(),
	})
	return messages
}

// historyTail keeps the last HistoryWindow user/assistant messages, then
// drops the oldest while the tail exceeds the token budget.
func (a *Agent) historyTail(history []llms.Message) []llms.Message {
	var tail []llms.Message
	for _, msg := range history {
		if msg.Role == llms.RoleUser || msg.Role == llms.RoleAssistant {
			tail = append(tail, msg)
		}
	}

	if window := a.cfg.HistoryWindow; window > 0 && len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	if budget := a.cfg.MaxHistoryToken; budget > 0 {
		total := 0
		for _, msg := range tail {
			total += a.tokens.Count(msg.Content)
		}
		for len(tail) > 0 && total > budget {
			total -= a.tokens.Count(tail[0].Content)
			tail = tail[1:]
		}
	}

	return tail
}

// persist appends the user/assistant turn to the stored conversation.
func (a *Agent) persist(ctx context.Context, conv *store.ConversationContext, userMessage, answer string) error {
	now := time.Now()
	conv.Messages = append(conv.Messages,
		llms.Message{ID: uuid.NewString(), Role: llms.RoleUser, Content: userMessage, Timestamp: now},
		llms.Message{ID: uuid.NewString(), Role: llms.RoleAssistant, Content: answer, Timestamp: now},
	)

	if err := a.conversations.Upsert(ctx, conv); err != nil {
		logger.GetLogger().Error("Failed to persist conversation", "conversation_id", conv.ID, "error", err)
		return fmt.Errorf("failed to persist conversation: %w", err)
	}
	return nil
}

// formatSearchContext renders hybrid search results in the same block
// format the tools use, so citations extract from it.
func formatSearchContext(results []retriever.SearchResult) string {
	if len(results) == 0 {
		return "No relevant code found."
	}

	var sb strings.Builder
	for _, result := range results {
		chunk := result.Chunk
		fmt.Fprintf(&sb, "--- [%s:%d-%d]", chunk.FilePath, chunk.StartLine, chunk.EndLine)
		if chunk.SymbolName != "" {
			fmt.Fprintf(&sb, " (%s: %s)", chunk.ChunkType, chunk.SymbolName)
		}
		fmt.Fprintf(&sb, " [Score: %.2f] ---\n", result.Score)
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", chunk.Language, strings.TrimRight(chunk.Content, "\n"))
	}
	return strings.TrimRight(sb.String(), "\n")
}
