// ABOUTME: Terminal renderer for conversation messages and their execution steps
// ABOUTME: Prints whole messages once, then only what changed as store patches arrive

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/conversation"
)

// Options tune a Renderer.
type Options struct {
	// NoColor disables ANSI colours regardless of the terminal.
	NoColor bool

	// EchoUser prints user messages; interactive sessions already show them.
	EchoUser bool
}

type palette struct {
	user, agent, system *color.Color
	muted               *color.Color
	pending, running    *color.Color
	completed, failed   *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		user:      color.New(color.FgCyan, color.Bold),
		agent:     color.New(color.FgMagenta, color.Bold),
		system:    color.New(color.FgYellow),
		muted:     color.New(color.FgHiBlack),
		pending:   color.New(color.FgHiBlack),
		running:   color.New(color.FgYellow),
		completed: color.New(color.FgGreen),
		failed:    color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.user, p.agent, p.system, p.muted, p.pending, p.running, p.completed, p.failed} {
			c.DisableColor()
		}
	}
	return p
}

// Renderer writes messages to a terminal. It is safe for concurrent use.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	colors palette
	echo   bool
	seen   map[string]chat.Message // last rendered state per message id
}

// New creates a renderer writing to w.
func New(w io.Writer, opts Options) *Renderer {
	return &Renderer{
		w:      w,
		colors: newPalette(opts.NoColor),
		echo:   opts.EchoUser,
		seen:   make(map[string]chat.Message),
	}
}

// Message prints m in full.
func (r *Renderer) Message(m chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full(m)
}

// Change prints the part of a store change the user has not seen yet.
func (r *Renderer) Change(ch conversation.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.seen[ch.Message.ID]
	if !ok || ch.Kind == conversation.ChangeAppended {
		r.full(ch.Message)
		return
	}
	r.diff(prev, ch.Message)
}

// Sync prints whatever in msgs differs from what was last rendered. It
// catches up after the change feed dropped updates for a slow reader.
func (r *Renderer) Sync(msgs []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		prev, ok := r.seen[m.ID]
		if !ok {
			r.full(m)
			continue
		}
		r.diff(prev, m)
	}
}

func (r *Renderer) full(m chat.Message) {
	r.seen[m.ID] = m.Clone()

	switch m.Role {
	case chat.RoleUser:
		if r.echo {
			fmt.Fprintf(r.w, "%s %s\n", r.colors.user.Sprint("you>"), m.Content)
		}
		return
	case chat.RoleSystem:
		fmt.Fprintf(r.w, "%s\n", r.colors.system.Sprint("* "+m.Content))
		return
	}

	fmt.Fprintf(r.w, "%s %s\n", r.colors.agent.Sprint("agent>"), r.status(m.Status))
	r.content(m.Content, m.Status)
	for i, s := range m.Steps {
		r.step(i, len(m.Steps), s)
	}
}

func (r *Renderer) diff(prev, next chat.Message) {
	r.seen[next.ID] = next.Clone()

	prevSteps := make(map[string]chat.Step, len(prev.Steps))
	for _, s := range prev.Steps {
		prevSteps[s.ID] = s
	}
	for i, s := range next.Steps {
		old, ok := prevSteps[s.ID]
		if ok && old.Status == s.Status && old.Details == s.Details && old.Title == s.Title {
			continue
		}
		r.step(i, len(next.Steps), s)
	}

	if next.Content != prev.Content {
		r.content(next.Content, next.Status)
	}
	if next.Status != prev.Status {
		fmt.Fprintf(r.w, "%s %s\n", r.colors.agent.Sprint("agent>"), r.status(next.Status))
	}
}

func (r *Renderer) content(s string, status chat.MessageStatus) {
	body := PlainText(s)
	if body == "" {
		return
	}
	if status == chat.StatusError {
		body = r.colors.failed.Sprint(body)
	}
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintf(r.w, "  %s\n", line)
	}
}

func (r *Renderer) status(s chat.MessageStatus) string {
	label := "[" + string(s) + "]"
	switch s {
	case chat.StatusCompleted:
		return r.colors.completed.Sprint(label)
	case chat.StatusError:
		return r.colors.failed.Sprint(label)
	case chat.StatusNone:
		return ""
	default:
		return r.colors.running.Sprint(label)
	}
}

func (r *Renderer) step(i, total int, s chat.Step) {
	var icon string
	c := r.colors.pending
	switch s.Status {
	case chat.StepRunning:
		icon, c = "~", r.colors.running
	case chat.StepCompleted:
		icon, c = "✓", r.colors.completed
	case chat.StepError:
		icon, c = "✗", r.colors.failed
	default:
		icon = "·"
	}

	line := fmt.Sprintf("  %s %d/%d %s", c.Sprint(icon), i+1, total, s.Title)
	if s.Status == chat.StepRunning && s.Progress > 0 {
		line += r.colors.muted.Sprintf(" %d%%", s.Progress)
	}
	if s.Details != "" {
		line += r.colors.muted.Sprint(" - " + Truncate(s.Details, 60))
	}
	if s.Status.Terminal() && s.Duration > 0 {
		line += r.colors.muted.Sprintf(" (%s)", s.Duration.Round(100*time.Millisecond))
	}
	fmt.Fprintln(r.w, line)
}
