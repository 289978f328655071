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

import "errors"

// Domain validation errors
var (
	// ErrInvalidTask indicates a ProcessingTask failed validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidChunk indicates a TextChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidOptions indicates TaskOptions failed validation.
	ErrInvalidOptions = errors.New("invalid task options")

	// ErrEmptyChunks indicates a runnable task carries no chunks.
	ErrEmptyChunks = errors.New("task has no chunks")

	// ErrEmptyTaskID indicates the task ID is empty.
	ErrEmptyTaskID = errors.New("task id cannot be empty")

	// ErrInvalidStatus indicates an unknown TaskStatus value.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidPriority indicates an unknown Priority value.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidTransition indicates a status change the task lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)
