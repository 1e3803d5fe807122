// ABOUTME: Step model: one unit of the agent's visible execution plan
// ABOUTME: Encodes the monotonic pending -> running -> completed/error status order

package chat

import (
	"strconv"
	"time"
)

// StepStatus is the lifecycle state of a single Step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// Valid reports whether s is one of the known step statuses.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepRunning, StepCompleted, StepError:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// rank orders statuses along pending -> running -> {completed, error}.
func (s StepStatus) rank() int {
	switch s {
	case StepPending:
		return 0
	case StepRunning:
		return 1
	case StepCompleted, StepError:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the
// partial order. Staying in the same status is always allowed; the two
// terminal statuses never move into each other.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s == next {
		return true
	}
	if !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Step is one unit of agent work. Title is fixed at creation; the agent
// owns titles and resends them unchanged with every step list.
type Step struct {
	ID        string
	Title     string
	Status    StepStatus
	Details   string
	Progress  int
	Timestamp time.Time
	Duration  time.Duration // time spent running, set once the step finishes
}

// DefaultSteps returns the progress skeleton shown before the agent has
// reported a real plan. Every step starts pending.
func DefaultSteps(now time.Time) []Step {
	titles := []string{"Interpret request", "Plan", "Execute", "Verify"}
	steps := make([]Step, len(titles))
	for i, title := range titles {
		steps[i] = Step{
			ID:        strconv.Itoa(i + 1),
			Title:     title,
			Status:    StepPending,
			Timestamp: now,
		}
	}
	return steps
}

// mergeSteps replaces current with incoming. A step that keeps its id keeps
// its title and refuses backward status transitions. Every returned step
// carries at.
func mergeSteps(current, incoming []Step, at time.Time) []Step {
	prev := make(map[string]Step, len(current))
	for _, s := range current {
		prev[s.ID] = s
	}

	out := make([]Step, len(incoming))
	for i, s := range incoming {
		if old, ok := prev[s.ID]; ok {
			s.Title = old.Title
			if !old.Status.CanTransitionTo(s.Status) {
				s.Status = old.Status
			}
		}
		s.Timestamp = at
		out[i] = s
	}
	return out
}
