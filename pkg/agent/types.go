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

// Package agent drives the bounded tool-calling loop that answers
// questions about an indexed repository.
package agent

import (
	"github.com/kadirpekel/codequery/pkg/citations"
)

// Streaming event types, emitted in the order
// action, observation, ..., answer*, citation*, done.
const (
	EventAction      = "action"
	EventObservation = "observation"
	EventAnswer      = "answer"
	EventCitation    = "citation"
	EventDone        = "done"
)

// StreamEvent is one record of the streaming response.
type StreamEvent struct {
	Type           string              `json:"type"`
	Content        string              `json:"content,omitempty"`
	Citation       *citations.Citation `json:"citation,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
}

// ReasoningStep records one tool invocation of the loop.
type ReasoningStep struct {
	StepNumber  int    `json:"stepNumber"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"actionInput"`
	Observation string `json:"observation"`
}

// Response is the non-streaming answer with its grounding.
type Response struct {
	Answer         string               `json:"answer"`
	Citations      []citations.Citation `json:"citations"`
	CitationMap    map[string]int       `json:"citationMap,omitempty"`
	ReasoningSteps []ReasoningStep      `json:"reasoningSteps,omitempty"`
	IsComplete     bool                 `json:"isComplete"`
	ConversationID string               `json:"conversationId"`
}
