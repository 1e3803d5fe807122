// ABOUTME: Tests for keyword classification and plan construction
// ABOUTME: Verifies step skeletons, failure placement and answers per task kind

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskstream/internal/chat"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    TaskKind
	}{
		{"buy milk", KindShopping},
		{"Purchase a kids bike", KindShopping},
		{"@android open settings", KindDevice},
		{"take a screenshot on my phone and buy stuff", KindDevice},
		{"search for Go conferences", KindSearch},
		{"Find the nearest cafe", KindSearch},
		{"hello there", KindGeneral},
		{"", KindGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}

func TestNewPlan_Skeleton(t *testing.T) {
	now := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	plan := NewPlan("buy milk")

	assert.Equal(t, KindShopping, plan.Kind)
	assert.Equal(t, "buy milk", plan.Request)

	steps := plan.Skeleton(now)
	require.Len(t, steps, len(plan.Steps))
	for i, s := range steps {
		assert.Equal(t, plan.Steps[i].Title, s.Title)
		assert.Equal(t, chat.StepPending, s.Status)
		assert.Equal(t, now, s.Timestamp)
		assert.NotEmpty(t, plan.Steps[i].Phases, "step %d has no phases", i)
		assert.NotEmpty(t, plan.Steps[i].Done)
		assert.False(t, plan.Steps[i].Fails)
	}
	assert.Equal(t, "1", steps[0].ID)
	assert.Equal(t, "7", steps[6].ID)
}

func TestNewPlan_PhasesIncrease(t *testing.T) {
	for _, kind := range []string{"buy milk", "@android tap", "search go", "hi"} {
		plan := NewPlan(kind)
		for _, s := range plan.Steps {
			last := 0
			for _, ph := range s.Phases {
				assert.Greater(t, ph.Progress, last, "%s: %s", kind, s.Title)
				assert.Less(t, ph.Progress, 100)
				last = ph.Progress
			}
		}
	}
}

func TestNewPlan_FailMarker(t *testing.T) {
	plan := NewPlan("search for cats #FAIL")

	failing := -1
	for i, s := range plan.Steps {
		if s.Fails {
			require.Equal(t, -1, failing, "only one step fails")
			failing = i
		}
	}
	assert.Equal(t, executeStepIndex[KindSearch], failing)
}

func TestPlan_Answer(t *testing.T) {
	assert.Contains(t, NewPlan("buy milk").Answer(), "**buy milk**")
	assert.Contains(t, NewPlan("search cats").Answer(), "Search summary")
	assert.Contains(t, NewPlan("@android home").Answer(), "Device task finished")
	assert.Contains(t, NewPlan("  hello  ").Answer(), `"hello"`)
}
