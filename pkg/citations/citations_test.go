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

package citations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchResult = "Found 2 results:\n\n" +
	"--- [src/auth/AuthService.cs:10-42] (method: Authenticate) [Score: 0.91] ---\n" +
	"```csharp\npublic bool Authenticate() { return true; }\n```\n\n" +
	"--- [src/auth/TokenStore.cs:5-20] (class: TokenStore) [Score: 0.84] ---\n" +
	"```csharp\npublic class TokenStore { }\n```\n"

func TestExtractFromToolResults(t *testing.T) {
	service := NewService()

	citations := service.ExtractFromToolResults([]string{searchResult})
	require.Len(t, citations, 2)

	first := citations[0]
	assert.Equal(t, "src/auth/AuthService.cs", first.FilePath)
	assert.Equal(t, 10, first.StartLine)
	assert.Equal(t, 42, first.EndLine)
	assert.Equal(t, "Authenticate", first.SymbolName)
	assert.InDelta(t, 0.91, first.RelevanceScore, 1e-9)
	assert.Equal(t, SourceCodeSearch, first.SourceType)
	assert.Equal(t, "public bool Authenticate() { return true; }", first.Content)

	assert.Equal(t, "TokenStore", citations[1].SymbolName)
}

func TestExtractFromToolResults_SortsByScore(t *testing.T) {
	low := "--- [a.go:1-2] [Score: 0.10] ---\n```go\nx\n```\n"
	high := "--- [b.go:1-2] [Score: 0.90] ---\n```go\ny\n```\n"

	citations := NewService().ExtractFromToolResults([]string{low, high})
	require.Len(t, citations, 2)
	assert.Equal(t, "b.go", citations[0].FilePath)
	assert.Equal(t, "a.go", citations[1].FilePath)
}

func TestExtractFromContent(t *testing.T) {
	citations := NewService().ExtractFromContent(
		"Defined at [src/a.cs:10-20], used at [src/b.cs:7]. See [src/a.cs:10-20] again.")

	require.Len(t, citations, 2)
	assert.Equal(t, "src/a.cs", citations[0].FilePath)
	assert.Equal(t, 10, citations[0].StartLine)
	assert.Equal(t, 20, citations[0].EndLine)
	assert.Equal(t, SourceReference, citations[0].SourceType)

	assert.Equal(t, "src/b.cs", citations[1].FilePath)
	assert.Equal(t, 7, citations[1].StartLine)
	assert.Equal(t, 7, citations[1].EndLine)
}

func TestGround_DeduplicatesAndRenumbers(t *testing.T) {
	grounded := NewService().Ground("See [src/a.cs:10-20] and [src/a.cs:10-20].", nil)

	require.Len(t, grounded.Citations, 1)
	assert.Equal(t, "See [1] and [1].", grounded.Content)
	assert.Equal(t, 1, grounded.CitationMap["src/a.cs:10-20"])
}

func TestGround_ToolCitationsComeFirst(t *testing.T) {
	grounded := NewService().Ground(
		"The token logic lives in [src/other.cs:3].", []string{searchResult})

	require.Len(t, grounded.Citations, 3)
	assert.Equal(t, "src/auth/AuthService.cs", grounded.Citations[0].FilePath)
	assert.Equal(t, "src/other.cs", grounded.Citations[2].FilePath)
	assert.Equal(t, "The token logic lives in [3].", grounded.Content)
}

func TestGround_ContentRefMatchingToolCitation(t *testing.T) {
	grounded := NewService().Ground(
		"Authentication happens in [src/auth/AuthService.cs:10-42].", []string{searchResult})

	// The inline reference resolves to the existing tool citation.
	require.Len(t, grounded.Citations, 2)
	assert.Equal(t, "Authentication happens in [1].", grounded.Content)
	assert.Equal(t, SourceCodeSearch, grounded.Citations[0].SourceType)
}

func TestGround_NoMarkers(t *testing.T) {
	grounded := NewService().Ground("No references here.", nil)

	assert.Empty(t, grounded.Citations)
	assert.Equal(t, "No references here.", grounded.Content)
}

func TestHeaderBlockIgnoresScoreBrackets(t *testing.T) {
	// The [Score: s] annotation must not be parsed as an inline reference.
	citations := NewService().ExtractFromContent(searchResult)
	for _, c := range citations {
		assert.False(t, strings.Contains(c.FilePath, "Score"))
	}
}
