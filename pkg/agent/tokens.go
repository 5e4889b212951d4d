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
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for history truncation. When no encoding is
// available (offline start-up), it estimates at four characters per token.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenCounter creates a counter for the given model.
func NewTokenCounter(model string) *TokenCounter {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if cached, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: cached}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &TokenCounter{}
		}
	}

	encodingCache[model] = encoding
	return &TokenCounter{encoding: encoding}
}

// Count returns the token count of the text.
func (c *TokenCounter) Count(text string) int {
	if c.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}
