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

// Package embedders provides embedding providers. Vectors have a fixed
// dimensionality per deployment; batch requests are split transparently and
// results are returned in input order.
package embedders

import "context"

// Provider is the embedding adapter contract.
type Provider interface {
	// Embed produces the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch produces vectors for texts, preserving input order.
	// Provider batch limits are handled internally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimension returns the fixed vector dimensionality.
	GetDimension() int

	GetModelName() string

	Close() error
}
