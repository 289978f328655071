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

package core

import "fmt"

// ValidateTask validates a ProcessingTask according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Status and Priority must be known values
//   - Options must be valid
//   - Runnable tasks must carry at least one valid chunk
//
// NOT validated:
//   - Parent tasks' chunks (always empty once split)
//   - Progress (clamped by ApplyStatus)
func ValidateTask(task *ProcessingTask) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}

	if task.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTask, ErrEmptyTaskID)
	}

	if !task.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidTask, ErrInvalidStatus, task.Status)
	}

	if !task.Priority.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidTask, ErrInvalidPriority, task.Priority)
	}

	if err := ValidateOptions(task.Options); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	if task.IsParent() {
		return nil
	}

	if err := ValidateChunks(task.Chunks); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	return nil
}

// ValidateChunks checks that chunks are non-empty and have sane positions.
func ValidateChunks(chunks []TextChunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}
	for i, c := range chunks {
		if c.StartPosition < 0 || c.EndPosition < c.StartPosition {
			return fmt.Errorf("%w: chunk %d has range [%d,%d)", ErrInvalidChunk, i, c.StartPosition, c.EndPosition)
		}
		if c.TokenCount < 0 {
			return fmt.Errorf("%w: chunk %d has negative token count", ErrInvalidChunk, i)
		}
	}
	return nil
}

// ValidateOptions validates TaskOptions. A zero batch size or timeout means
// "use defaults"; zero retries disables retrying.
func ValidateOptions(opts TaskOptions) error {
	if opts.BatchSize < 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidOptions, opts.BatchSize)
	}
	if opts.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries %d", ErrInvalidOptions, opts.MaxRetries)
	}
	if opts.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s", ErrInvalidOptions, opts.Timeout)
	}
	return nil
}
