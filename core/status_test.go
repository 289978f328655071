package core

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusPending, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestApplyStatus_Lifecycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	task := &ProcessingTask{ID: "t1", Status: StatusPending}

	if err := task.ApplyStatus(StatusUpdate{Status: StatusProcessing}, now); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if task.StartedAt == nil || !task.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", task.StartedAt, now)
	}

	if err := task.ApplyStatus(StatusUpdate{Status: StatusProcessing, Progress: 150}, now); err != nil {
		t.Fatalf("progress update: %v", err)
	}
	if task.Progress != 100 {
		t.Errorf("Progress = %d, want clamped 100", task.Progress)
	}

	done := now.Add(time.Second)
	if err := task.ApplyStatus(StatusUpdate{Status: StatusFailed, Error: "boom"}, done); err != nil {
		t.Fatalf("processing -> failed: %v", err)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", task.CompletedAt, done)
	}
	if task.Error != "boom" {
		t.Errorf("Error = %q, want boom", task.Error)
	}

	if err := task.ApplyStatus(StatusUpdate{Status: StatusPending}, done); err != nil {
		t.Fatalf("failed -> pending: %v", err)
	}
	if task.StartedAt != nil || task.CompletedAt != nil || task.Error != "" {
		t.Errorf("retry did not reset timestamps and error: %+v", task)
	}
}

func TestApplyStatus_Rejects(t *testing.T) {
	task := &ProcessingTask{ID: "t1", Status: StatusCompleted}

	err := task.ApplyStatus(StatusUpdate{Status: StatusPending}, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ApplyStatus() error = %v, want ErrInvalidTransition", err)
	}
	if task.Status != StatusCompleted {
		t.Errorf("status changed on rejected transition: %s", task.Status)
	}

	err = task.ApplyStatus(StatusUpdate{Status: "bogus"}, time.Now())
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ApplyStatus() error = %v, want ErrInvalidStatus", err)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"Normal", PriorityNormal, false},
		{" high ", PriorityHigh, false},
		{"URGENT", PriorityUrgent, false},
		{"critical", PriorityNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.want.String() {
				t.Errorf("String() round trip mismatch")
			}
		})
	}
}
