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

package chunker

import (
	"path/filepath"
	"strings"
)

// extensionLanguages maps file extensions to language identifiers. Files
// with extensions outside this table are not indexed.
var extensionLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".rb":    "ruby",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cs":    "csharp",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".md":    "markdown",
	".txt":   "text",
}

// braceLanguages get semantic chunking via balanced-brace extraction.
var braceLanguages = map[string]bool{
	"csharp":     true,
	"java":       true,
	"javascript": true,
	"typescript": true,
	"go":         true,
	"c":          true,
	"cpp":        true,
	"rust":       true,
	"php":        true,
	"swift":      true,
	"kotlin":     true,
	"scala":      true,
}

// indentLanguages get header-to-header semantic chunking.
var indentLanguages = map[string]bool{
	"python": true,
	"ruby":   true,
}

// excludedDirs are never descended into during the repository walk.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"bin":          true,
	"obj":          true,
	".git":         true,
	".svn":         true,
	".hg":          true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
}

// excludedFiles are skipped by exact name.
var excludedFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.sum":            true,
	"Cargo.lock":        true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"poetry.lock":       true,
	".gitignore":        true,
	".gitattributes":    true,
	".dockerignore":     true,
	".editorconfig":     true,
	".DS_Store":         true,
}

// DetectLanguage returns the language for a file path, or "" when the file
// is not indexable.
func DetectLanguage(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

func isExcludedFile(name string) bool {
	if excludedFiles[name] {
		return true
	}
	lower := strings.ToLower(name)
	// Minified bundles carry no readable structure.
	return strings.HasSuffix(lower, ".min.js") || strings.HasSuffix(lower, ".min.css")
}
