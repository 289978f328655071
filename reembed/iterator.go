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

package reembed

import (
	"context"

	"github.com/poiesic/vectorit/storage"
)

const (
	// DefaultBatchSize is the default number of files handed to each callback.
	DefaultBatchSize = 10
)

// FileIterator iterates over the stored files of a repository in batches.
type FileIterator struct {
	repo      storage.VectorRepository
	batchSize int
}

// NewFileIterator creates a new file iterator.
// Non-positive batch sizes fall back to DefaultBatchSize.
func NewFileIterator(repo storage.VectorRepository, batchSize int) *FileIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &FileIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches of file keys.
// Iteration stops on the first error from fn. Context cancellation is
// checked between batches.
func (it *FileIterator) ForEach(ctx context.Context, fn func([]string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	files, err := it.repo.ListFiles(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < len(files); i += it.batchSize {
		end := min(i+it.batchSize, len(files))
		if err := fn(files[i:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
