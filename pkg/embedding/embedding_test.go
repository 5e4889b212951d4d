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

package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/codequery/pkg/store"
)

// fakeEmbedder returns a vector derived from the text's position in the
// batch so positional assignment is observable.
type fakeEmbedder struct {
	texts []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return []float32{1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimension() int    { return 1 }
func (f *fakeEmbedder) GetModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error         { return nil }

func TestPrepareText(t *testing.T) {
	service := NewService(&fakeEmbedder{}, 0)

	text := service.PrepareText(&store.CodeChunk{
		FilePath:   "src/services/auth.cs",
		Language:   "csharp",
		ChunkType:  store.ChunkTypeMethod,
		SymbolName: "Authenticate",
		Content:    "public bool Authenticate() { return true; }",
		Metadata: store.ChunkMetadata{
			Namespace:   "App.Services",
			ParentClass: "AuthService",
		},
	})

	assert.True(t, strings.HasPrefix(text, "File: src/services/auth.cs\n"))
	assert.Contains(t, text, "Method: Authenticate\n")
	assert.Contains(t, text, "Language: csharp\n")
	assert.Contains(t, text, "Namespace: App.Services\n")
	assert.Contains(t, text, "Class: AuthService\n")
	assert.Contains(t, text, "Code:\npublic bool Authenticate()")
}

func TestPrepareText_Truncates(t *testing.T) {
	service := NewService(&fakeEmbedder{}, 100)

	text := service.PrepareText(&store.CodeChunk{
		FilePath: "big.go",
		Language: "go",
		Content:  strings.Repeat("x", 500),
	})

	assert.Len(t, text, 100)
}

func TestEmbedChunks_PositionalAssignment(t *testing.T) {
	embedder := &fakeEmbedder{}
	service := NewService(embedder, 0)

	chunks := []*store.CodeChunk{
		{FilePath: "a.go", Content: "package a"},
		{FilePath: "b.go", Content: "package b"},
		{FilePath: "c.go", Content: "package c"},
	}

	require.NoError(t, service.EmbedChunks(context.Background(), chunks))

	for i, chunk := range chunks {
		assert.Equal(t, []float32{float32(i)}, chunk.Embedding)
	}
	// Texts were requested in insertion order.
	assert.Contains(t, embedder.texts[0], "a.go")
	assert.Contains(t, embedder.texts[2], "c.go")
}

func TestEmbedChunks_Empty(t *testing.T) {
	require.NoError(t, NewService(&fakeEmbedder{}, 0).EmbedChunks(context.Background(), nil))
}
