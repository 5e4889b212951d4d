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

// Package tools implements the agent's tool catalogue. Every tool returns a
// human-readable string; failures are reported as strings beginning with
// "Error:" and never cross the boundary as errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/codequery/pkg/llms"
)

// Tool is one agent capability, addressable by name.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON schema of the tool's arguments object.
	Schema() map[string]any

	// Execute runs the tool against a repository. argumentsJSON must match
	// Schema. The result is always a string; errors are reported as
	// "Error: ..." strings.
	Execute(ctx context.Context, argumentsJSON, repositoryID string) string
}

// Registry holds the tool catalogue, looked up by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Definitions renders the catalogue in the shape the model adapter expects.
func (r *Registry) Definitions() []llms.ToolDefinition {
	tools := r.List()
	definitions := make([]llms.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, llms.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return definitions
}

// generateSchema reflects a JSON schema from an arguments struct.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

func errorResult(format string, args ...any) string {
	return "Error: " + fmt.Sprintf(format, args...)
}
