// ABOUTME: Tests for markdown flattening and incremental message rendering
// ABOUTME: Renders without colour so output can be compared as plain strings

package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/conversation"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"emphasis", "**bold** and _it_", "bold and it"},
		{"heading and body", "# Title\n\nBody text", "Title\n\nBody text"},
		{"bullets", "- a\n- b", "- a\n- b"},
		{"ordered", "1. x\n2. y", "1. x\n2. y"},
		{"fenced code", "```go\nfmt.Println(1)\n```", "fmt.Println(1)"},
		{"link", "see [the docs](http://example.com)", "see the docs"},
		{"soft break", "line one\nline two", "line one\nline two"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestRenderer_AgentMessage(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{NoColor: true})

	m := chat.NewAgentMessage("s1", "on it", chat.StatusThinking, nil, time.Time{})
	r.Message(m)

	out := buf.String()
	assert.Contains(t, out, "agent> [thinking]")
	assert.Contains(t, out, "  on it\n")
	assert.Contains(t, out, "· 1/4 Interpret request")
	assert.Contains(t, out, "· 4/4 Verify")
}

func TestRenderer_ChangePrintsOnlyDifferences(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{NoColor: true})

	m := chat.NewAgentMessage("s1", "on it", chat.StatusThinking, nil, time.Time{})
	r.Change(conversation.Change{Kind: conversation.ChangeAppended, Message: m})
	buf.Reset()

	next := m.Clone()
	next.Steps[0].Status = chat.StepCompleted
	next.Status = chat.StatusExecuting
	r.Change(conversation.Change{Kind: conversation.ChangePatched, Message: next})

	out := buf.String()
	assert.Contains(t, out, "✓ 1/4 Interpret request")
	assert.NotContains(t, out, "Verify", "unchanged steps are not reprinted")
	assert.NotContains(t, out, "on it", "unchanged content is not reprinted")
	assert.Contains(t, out, "[executing]")
}

func TestRenderer_UserEcho(t *testing.T) {
	var quiet, loud bytes.Buffer
	user := chat.NewUserMessage("buy milk", time.Time{})

	New(&quiet, Options{NoColor: true}).Message(user)
	New(&loud, Options{NoColor: true, EchoUser: true}).Message(user)

	assert.Empty(t, quiet.String())
	assert.Equal(t, "you> buy milk\n", loud.String())
}

func TestRenderer_ErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{NoColor: true}).Message(chat.NewErrorMessage("", time.Time{}))

	assert.Contains(t, buf.String(), "[error]")
	assert.Contains(t, buf.String(), chat.SeedFailedContent)
}

func TestRenderer_SyncCatchesUp(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{NoColor: true})

	m := chat.NewAgentMessage("s1", "on it", chat.StatusThinking, nil, time.Time{})
	r.Message(m)
	buf.Reset()

	r.Sync([]chat.Message{m})
	assert.Empty(t, buf.String(), "nothing changed since the last render")

	done := m.Clone()
	done.Status = chat.StatusCompleted
	done.Content = "all done"
	r.Sync([]chat.Message{done})

	out := buf.String()
	assert.Contains(t, out, "all done")
	assert.Contains(t, out, "[completed]")
}

func TestRenderer_FinishedStepShowsDuration(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{NoColor: true})

	m := chat.NewAgentMessage("s1", "done", chat.StatusCompleted, []chat.Step{
		{ID: "1", Title: "Search", Status: chat.StepCompleted, Duration: 1230 * time.Millisecond},
		{ID: "2", Title: "Compare", Status: chat.StepRunning, Duration: time.Second},
	}, time.Time{})
	r.Message(m)

	assert.Contains(t, buf.String(), "✓ 1/2 Search (1.2s)")
	assert.NotContains(t, buf.String(), "Compare (", "running steps show progress, not duration")
}
