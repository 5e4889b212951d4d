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

// Package chunker converts a repository tree into semantically typed code
// chunks. Brace languages get balanced-brace extraction of classes and
// methods, indent languages get header-to-header spans, and everything else
// falls back to fixed-size chunks with line overlap.
package chunker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/codequery/pkg/config"
	"github.com/kadirpekel/codequery/pkg/logger"
	"github.com/kadirpekel/codequery/pkg/store"
)

const defaultOverlapDivisor = 50

// Chunker chunks files and repository trees.
type Chunker struct {
	maxChunkSize int
	overlapLines int
}

// New creates a Chunker from chunking config.
func New(cfg *config.ChunkingConfig) *Chunker {
	maxChunkSize := cfg.MaxChunkSize
	if maxChunkSize <= 0 {
		maxChunkSize = 1500
	}
	overlapLines := cfg.OverlapSize / defaultOverlapDivisor
	if overlapLines < 0 {
		overlapLines = 0
	}
	return &Chunker{
		maxChunkSize: maxChunkSize,
		overlapLines: overlapLines,
	}
}

// SourceFile is a discovered indexable file. Path is relative to the
// repository root with forward slashes.
type SourceFile struct {
	Path     string
	AbsPath  string
	Language string
}

// WalkRepository lists the indexable files under root, sorted by path.
func WalkRepository(root string) ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcludedFile(d.Name()) {
			return nil
		}

		language := DetectLanguage(path)
		if language == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, SourceFile{
			Path:     filepath.ToSlash(rel),
			AbsPath:  path,
			Language: language,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ChunkRepository walks root and chunks every indexable file. Files that
// fail to read are logged and skipped.
func (c *Chunker) ChunkRepository(root string) ([]store.CodeChunk, error) {
	files, err := WalkRepository(root)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()

	var chunks []store.CodeChunk
	for _, file := range files {
		fileChunks, err := c.ChunkSourceFile(file)
		if err != nil {
			log.Warn("Skipping unreadable file", "path", file.Path, "error", err)
			continue
		}
		chunks = append(chunks, fileChunks...)
	}

	return chunks, nil
}

// ChunkSourceFile reads and chunks one discovered file.
func (c *Chunker) ChunkSourceFile(file SourceFile) ([]store.CodeChunk, error) {
	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8")
	}
	return c.ChunkContent(file.Path, file.Language, string(data)), nil
}

// ChunkContent chunks file content already in memory. Semantic modes that
// find nothing fall through to size-based chunking. The result is ordered
// ascending by start line and is deterministic for identical input.
func (c *Chunker) ChunkContent(path, language, content string) []store.CodeChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []store.CodeChunk
	switch {
	case braceLanguages[language]:
		chunks = chunkBraces(content)
	case indentLanguages[language]:
		chunks = chunkIndent(content)
	}

	if len(chunks) == 0 {
		chunks = c.chunkBySize(content)
	}

	imports := extractImports(content, language)
	fileName := filepath.Base(path)

	for i := range chunks {
		chunks[i].FilePath = path
		chunks[i].FileName = fileName
		chunks[i].Language = language
		chunks[i].Metadata.Imports = imports
		chunks[i].Metadata.Complexity = estimateComplexity(chunks[i].Content)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].StartLine < chunks[j].StartLine
	})

	return chunks
}

// importPrefixes per language family. Lines starting with one of these are
// collected as the file's import list.
var importPrefixes = []string{
	"import ", "from ", "using ", "#include", "require ", "require(", "use ",
}

func extractImports(content, language string) []string {
	var imports []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range importPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				imports = append(imports, trimmed)
				break
			}
		}
		if len(imports) >= 30 {
			break
		}
	}
	return imports
}

var complexityKeywords = []string{
	"if ", "if(", "for ", "for(", "while ", "while(", "case ", "catch ", "catch(", "&&", "||",
}

// estimateComplexity is a rough cyclomatic estimate from branching tokens.
func estimateComplexity(content string) int {
	complexity := 1
	for _, keyword := range complexityKeywords {
		complexity += strings.Count(content, keyword)
	}
	return complexity
}

// lineAt returns the 1-based line number of the byte offset.
func lineAt(content string, offset int) int {
	return 1 + strings.Count(content[:offset], "\n")
}

// lineStart returns the offset of the first byte of the line containing
// offset.
func lineStart(content string, offset int) int {
	if idx := strings.LastIndexByte(content[:offset], '\n'); idx >= 0 {
		return idx + 1
	}
	return 0
}
