package core

import (
	"fmt"
	"strings"
	"time"
)

// transitions lists the statuses reachable from each status.
// Terminal states are immutable apart from the explicit failed -> pending retry.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled, StatusPending},
	StatusFailed:     {StatusPending},
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from one status to another.
// Staying in a non-terminal status is allowed so progress can be reported.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyStatus applies update to the task, enforcing the task lifecycle.
// Progress is clamped to 0..100.
func (t *ProcessingTask) ApplyStatus(update StatusUpdate, now time.Time) error {
	if !update.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}
	if !CanTransition(t.Status, update.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, update.Status)
	}

	prev := t.Status
	t.Status = update.Status
	t.Progress = min(max(update.Progress, 0), 100)
	t.Error = update.Error

	switch {
	case update.Status == StatusProcessing && prev != StatusProcessing:
		started := now
		t.StartedAt = &started
		t.CompletedAt = nil
	case update.Status == StatusPending && prev != StatusPending:
		t.StartedAt = nil
		t.CompletedAt = nil
	case update.Status.IsTerminal():
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= MaxPriority
}

// ParsePriority converts a priority name to a Priority.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}
