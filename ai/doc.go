// Copyright 2025 Poiesic Systems
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

// Package ai provides abstractions for the embedding services used by vectorit.
//
// The core pipeline depends on these interfaces rather than on a concrete
// client, so providers can be swapped without touching the scheduler or the
// processors.
//
//   - Embedder: Generates a vector embedding for one text
//   - BatchEmbedder: Optional extension accepting several texts per call
//   - Provider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Errors
//
// Embedders report failures as *ProviderError values classified under one of
// the sentinel kinds (ErrEmptyInput, ErrInputTooLarge, ErrAuthentication,
// ErrRateLimited, ErrTimeout, ErrProviderUnavailable, ...). IsRetryable tells
// the embedding processor whether a failed chunk is worth another attempt.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("text-embedding-3-small"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
