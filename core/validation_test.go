package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTask(t *testing.T) {
	chunks := []TextChunk{{Index: 0, Content: "hello", TokenCount: 1, StartPosition: 0, EndPosition: 5}}

	tests := []struct {
		name    string
		task    *ProcessingTask
		wantErr error
	}{
		{
			name:    "valid task",
			task:    &ProcessingTask{ID: "t1", Status: StatusPending, Priority: PriorityNormal, Chunks: chunks},
			wantErr: nil,
		},
		{
			name: "parent task without chunks",
			task: &ProcessingTask{ID: "p1", Status: StatusPending, Metadata: TaskMetadata{
				IsParentTask: true,
				SubTaskIDs:   []string{"c1"},
			}},
			wantErr: nil,
		},
		{
			name:    "nil task",
			task:    nil,
			wantErr: ErrInvalidTask,
		},
		{
			name:    "empty ID",
			task:    &ProcessingTask{Status: StatusPending, Chunks: chunks},
			wantErr: ErrEmptyTaskID,
		},
		{
			name:    "unknown status",
			task:    &ProcessingTask{ID: "t1", Status: "waiting", Chunks: chunks},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "unknown priority",
			task:    &ProcessingTask{ID: "t1", Status: StatusPending, Priority: Priority(9), Chunks: chunks},
			wantErr: ErrInvalidPriority,
		},
		{
			name:    "no chunks",
			task:    &ProcessingTask{ID: "t1", Status: StatusPending},
			wantErr: ErrEmptyChunks,
		},
		{
			name: "negative timeout",
			task: &ProcessingTask{ID: "t1", Status: StatusPending, Chunks: chunks, Options: TaskOptions{
				Timeout: -time.Second,
			}},
			wantErr: ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTask(tt.task)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateTask() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunks(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []TextChunk
		wantErr error
	}{
		{"empty", nil, ErrEmptyChunks},
		{"inverted range", []TextChunk{{StartPosition: 5, EndPosition: 2}}, ErrInvalidChunk},
		{"negative start", []TextChunk{{StartPosition: -1, EndPosition: 2}}, ErrInvalidChunk},
		{"negative tokens", []TextChunk{{EndPosition: 2, TokenCount: -1}}, ErrInvalidChunk},
		{"valid", []TextChunk{{EndPosition: 2, TokenCount: 1}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunks(tt.chunks)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Errorf("ValidateChunks() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
