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

// Package storage defines where vectorit keeps its durable state.
//
// Two things are persisted: processing tasks, which the queue backends in
// the badger and redis subpackages store through [queue.Provider], and
// embedded chunks, which are written through [VectorRepository]. Backends
// are interchangeable; constructors return the interface rather than the
// concrete type:
//
//	repo, err := badger.OpenVectorRepository(path) // returns storage.VectorRepository
//
// Records stored as bytes use the MUS encoding in this package. Every record
// starts with a format version so older data is rejected with
// [ErrUnsupportedVersion] instead of decoding into garbage.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
