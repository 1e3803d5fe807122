// ABOUTME: Keyword task classification and step plans for the reference agent
// ABOUTME: Each plan step carries the progress phases the runner walks through

package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2389/taskstream/internal/chat"
)

// TaskKind is the category a request is classified into.
type TaskKind string

const (
	KindDevice   TaskKind = "device"
	KindShopping TaskKind = "shopping"
	KindSearch   TaskKind = "search"
	KindGeneral  TaskKind = "general"
)

// FailMarker in a request makes the plan fail at its execution step.
// Used to exercise the error path end to end.
const FailMarker = "#fail"

var (
	deviceKeywords   = []string{"@android", "android", "mobile", "phone", "tap ", "swipe", "screenshot", "install"}
	shoppingKeywords = []string{"buy", "shop", "purchase", "order", "price"}
	searchKeywords   = []string{"search", "find", "look up", "lookup"}
)

// Classify picks a TaskKind by keyword. Device keywords win over shopping,
// shopping over search.
func Classify(message string) TaskKind {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, deviceKeywords):
		return KindDevice
	case containsAny(msg, shoppingKeywords):
		return KindShopping
	case containsAny(msg, searchKeywords):
		return KindSearch
	default:
		return KindGeneral
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Phase is one intermediate progress report inside a running step.
type Phase struct {
	Details  string
	Progress int
}

// PlannedStep is a step template with its progress script.
type PlannedStep struct {
	Title  string
	Phases []Phase
	Done   string // details once completed
	Fails  bool
}

// Plan is the full script for one request.
type Plan struct {
	Kind    TaskKind
	Request string
	Steps   []PlannedStep
}

type work int

const (
	workDefault work = iota
	workAnalyze
	workScreen
	workLocate
	workSearch
	workLaunch
	workCompare
	workReport
)

type template struct {
	title string
	work  work
}

var templates = map[TaskKind][]template{
	KindDevice: {
		{"Connect to device", workLaunch},
		{"Analyze request", workAnalyze},
		{"Capture screen state", workScreen},
		{"Locate target element", workLocate},
		{"Perform device action", workDefault},
		{"Verify result", workDefault},
		{"Write task report", workReport},
	},
	KindShopping: {
		{"Understand shopping need", workAnalyze},
		{"Analyze key requirements", workAnalyze},
		{"Open shopping apps", workLaunch},
		{"Search products", workSearch},
		{"Analyze user reviews", workCompare},
		{"Compare options", workCompare},
		{"Recommend a purchase", workReport},
	},
	KindSearch: {
		{"Understand search intent", workAnalyze},
		{"Plan search strategy", workDefault},
		{"Run search", workSearch},
		{"Filter results", workDefault},
		{"Compose answer", workReport},
	},
	KindGeneral: {
		{"Understand request", workAnalyze},
		{"Analyze task type", workAnalyze},
		{"Draft execution plan", workDefault},
		{"Execute core task", workDefault},
		{"Verify result quality", workDefault},
		{"Compose reply", workReport},
	},
}

// executeStepIndex is where FailMarker plans break.
var executeStepIndex = map[TaskKind]int{
	KindDevice:   4,
	KindShopping: 3,
	KindSearch:   2,
	KindGeneral:  3,
}

// NewPlan classifies message and builds its plan.
func NewPlan(message string) Plan {
	kind := Classify(message)
	fail := strings.Contains(strings.ToLower(message), FailMarker)

	tmpls := templates[kind]
	steps := make([]PlannedStep, len(tmpls))
	for i, t := range tmpls {
		phases, done := script(t.work, i)
		steps[i] = PlannedStep{
			Title:  t.title,
			Phases: phases,
			Done:   done,
			Fails:  fail && i == executeStepIndex[kind],
		}
	}
	return Plan{Kind: kind, Request: message, Steps: steps}
}

func script(w work, index int) ([]Phase, string) {
	switch w {
	case workAnalyze:
		return []Phase{
			{"Reading the request...", 25},
			{"Extracting key points...", 50},
			{"Summarizing analysis...", 75},
		}, "Intent and key points identified"
	case workScreen:
		return []Phase{
			{"Capturing screen...", 40},
			{"Reading screen content...", 80},
		}, "Current screen captured"
	case workLocate:
		return []Phase{
			{"Scanning interface elements...", 35},
			{"Locating target element...", 75},
		}, "Actionable element found"
	case workSearch:
		return []Phase{
			{"Querying sources...", 30},
			{"Collecting results...", 70},
		}, "Relevant data collected"
	case workLaunch:
		return []Phase{
			{"Starting services...", 50},
		}, "Services ready"
	case workCompare:
		return []Phase{
			{"Weighing options...", 35},
			{"Scoring candidates...", 70},
		}, "Comparison complete"
	case workReport:
		return []Phase{
			{"Drafting answer...", 40},
			{"Polishing answer...", 85},
		}, "Answer ready"
	default:
		return []Phase{
			{"Processing...", 40},
			{"Almost done...", 80},
		}, fmt.Sprintf("Step %d finished", index+1)
	}
}

// Skeleton returns the plan's steps, all pending, stamped with now.
func (p Plan) Skeleton(now time.Time) []chat.Step {
	steps := make([]chat.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = chat.Step{
			ID:        strconv.Itoa(i + 1),
			Title:     s.Title,
			Status:    chat.StepPending,
			Timestamp: now,
		}
	}
	return steps
}

// Answer is the markdown reply sent when the plan completes.
func (p Plan) Answer() string {
	req := strings.TrimSpace(p.Request)
	switch p.Kind {
	case KindShopping:
		return fmt.Sprintf(`Here is what I found for **%s**:

1. **Set a budget** and the must-have features first
2. **Compare several stores**, prices vary more than you expect
3. **Read recent reviews**, especially the negative ones
4. **Check return policy** before you order

Tell me the exact product and I can narrow this down.`, req)
	case KindSearch:
		return fmt.Sprintf(`Search summary for **%s**:

- Collected results from several sources
- Removed duplicates and low quality matches
- Kept the most relevant entries

Ask a follow-up to dig into any of them.`, req)
	case KindDevice:
		return fmt.Sprintf(`Device task finished: **%s**

- Device connected
- Target element located and action performed
- Result verified on screen`, req)
	default:
		return fmt.Sprintf(`I received your message: "%s"

- Request understood
- Task type identified
- Plan executed and verified`, req)
	}
}
