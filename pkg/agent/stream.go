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
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kadirpekel/codequery/pkg/llms"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/observability"
	"github.com/kadirpekel/codequery/pkg/store"
)

const (
	// observationLimit truncates tool results in observation events.
	observationLimit = 500

	// maxCitationEvents caps citation events per streamed response.
	maxCitationEvents = 10
)

// ExecuteStream answers a message as a finite event stream terminated by a
// done event. On context cancellation the stream ends quietly. The channel
// is closed when the request finishes.
func (a *Agent) ExecuteStream(ctx context.Context, repositoryID, conversationID, message string) (<-chan StreamEvent, error) {
	conv, err := a.loadConversation(ctx, repositoryID, conversationID)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		a.runStream(ctx, conv, message, events)
	}()

	return events, nil
}

func (a *Agent) runStream(ctx context.Context, conv *store.ConversationContext, message string, events chan<- StreamEvent) {
	log := logger.GetLogger()

	emit := func(event StreamEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := a.buildMessages(conv, message)
	definitions := a.registry.Definitions()
	var toolResults []string

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		observability.GetMetrics().RecordAgentIteration(ctx, conv.RepositoryID)

		result, err := a.provider.Chat(ctx, messages, definitions)
		if err != nil {
			log.Error("Model request failed during stream", "error", err)
			return
		}

		if len(result.ToolCalls) == 0 {
			a.streamFinal(ctx, conv, message, messages, toolResults, emit)
			return
		}

		messages = append(messages, llms.Message{
			ID:        uuid.NewString(),
			Role:      llms.RoleAssistant,
			Content:   result.Content,
			Timestamp: time.Now(),
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			action, _ := json.Marshal(map[string]string{
				"tool":  call.Name,
				"input": call.Arguments,
			})
			if !emit(StreamEvent{Type: EventAction, Content: string(action)}) {
				return
			}

			observation := a.executeTool(ctx, conv.RepositoryID, call)
			toolResults = append(toolResults, observation)

			if !emit(StreamEvent{Type: EventObservation, Content: truncate(observation, observationLimit)}) {
				return
			}

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
	if !emit(StreamEvent{Type: EventAnswer, Content: exhaustedAnswer}) {
		return
	}
	if err := a.persist(ctx, conv, message, exhaustedAnswer); err != nil {
		return
	}
	emit(StreamEvent{Type: EventDone, ConversationID: conv.ID})
}

// streamFinal issues the follow-up streaming completion for the final
// answer, then emits citations and done.
func (a *Agent) streamFinal(ctx context.Context, conv *store.ConversationContext, message string,
	messages []llms.Message, toolResults []string, emit func(StreamEvent) bool) {
	log := logger.GetLogger()

	chunks, err := a.provider.ChatStream(ctx, messages)
	if err != nil {
		log.Error("Streaming completion failed", "error", err)
		return
	}

	var answer strings.Builder
	for chunk := range chunks {
		switch chunk.Type {
		case "text":
			if chunk.Text == "" {
				continue
			}
			answer.WriteString(chunk.Text)
			if !emit(StreamEvent{Type: EventAnswer, Content: chunk.Text}) {
				return
			}
		case "error":
			log.Error("Stream error from provider", "error", chunk.Err)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	if err := a.persist(ctx, conv, message, answer.String()); err != nil {
		return
	}

	extracted := a.citations.ExtractFromToolResults(toolResults)
	if len(extracted) > maxCitationEvents {
		extracted = extracted[:maxCitationEvents]
	}
	for i := range extracted {
		if !emit(StreamEvent{Type: EventCitation, Citation: &extracted[i]}) {
			return
		}
	}

	emit(StreamEvent{Type: EventDone, ConversationID: conv.ID})
}

// truncate cuts s after limit bytes, backing up so a multi-byte rune is
// never split.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
