// ABOUTME: Runs agent plans step by step, persisting and publishing progress
// ABOUTME: One run per session; a newer request for the same session replaces the old run

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/store"
)

// ErrRunnerStopped is returned by Start after Stop.
var ErrRunnerStopped = errors.New("runner stopped")

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	StepDelay  time.Duration // pause between progress reports
	StepJitter time.Duration // random extra pause up to this value
	Logger     *slog.Logger
	Now        func() time.Time
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner executes plans in the background.
type Runner struct {
	store  store.SessionStore
	hub    *Hub
	delay  time.Duration
	jitter time.Duration
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	startMu sync.Mutex // serialises Start so replacement is ordered
	mu      sync.Mutex
	runs    map[string]*run // sessionID -> active run
	wg      sync.WaitGroup
	stopped bool
}

// NewRunner creates a runner that records progress in st and publishes it on hub.
func NewRunner(st store.SessionStore, hub *Hub, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.StepJitter < 0 {
		opts.StepJitter = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:  st,
		hub:    hub,
		delay:  opts.StepDelay,
		jitter: opts.StepJitter,
		logger: opts.Logger.With("component", "runner"),
		now:    opts.Now,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
}

// Start publishes the initial snapshot for sess and executes plan in the
// background. sess must already be stored with the plan's skeleton steps.
// A run already active for the same session is cancelled and awaited first.
func (r *Runner) Start(sess *store.Session, plan Plan) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	prev := r.runs[sess.ID]
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
		r.logger.Info("replaced active run", "session_id", sess.ID)
	}

	ctx, cancel := context.WithCancel(r.ctx)
	cur := &run{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return ErrRunnerStopped
	}
	r.runs[sess.ID] = cur
	r.wg.Add(1)
	r.mu.Unlock()

	st := &runState{
		sessionID: sess.ID,
		request:   sess.Request,
		createdAt: sess.CreatedAt,
		status:    chat.StatusThinking,
		steps:     plan.Skeleton(r.now()),
	}
	r.hub.Publish(st.snapshot(r.now()))

	go func() {
		defer r.wg.Done()
		defer close(cur.done)
		defer cancel()
		defer r.forget(sess.ID, cur)

		r.execute(ctx, st, plan)
	}()

	r.logger.Info("run started",
		"session_id", sess.ID,
		"kind", plan.Kind,
		"steps", len(plan.Steps))
	return nil
}

func (r *Runner) forget(sessionID string, cur *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs[sessionID] == cur {
		delete(r.runs, sessionID)
	}
}

// Active reports whether a run is in progress for sessionID.
func (r *Runner) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[sessionID]
	return ok
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels all runs and waits for them to exit. Cancelled runs leave
// their sessions in the last persisted state.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// runState is the mutable progress of one run. Only its goroutine touches it.
type runState struct {
	sessionID   string
	request     string
	createdAt   time.Time
	status      chat.MessageStatus
	content     string
	steps       []chat.Step
	currentStep int
	stepStarted time.Time // when steps[currentStep] started running
}

func (s *runState) snapshot(now time.Time) Snapshot {
	return Snapshot{
		SessionID:   s.sessionID,
		Status:      s.status,
		Content:     s.content,
		Steps:       s.steps,
		CurrentStep: s.currentStep,
		UpdatedAt:   now,
	}.clone()
}

func (r *Runner) execute(ctx context.Context, st *runState, plan Plan) {
	logger := r.logger.With("session_id", st.sessionID)

	for i, ps := range plan.Steps {
		st.currentStep = i
		r.setStep(st, i, chat.StepRunning, "Working...", 0)
		if err := r.emit(ctx, st); err != nil {
			r.fail(ctx, st, i, err, logger)
			return
		}

		for _, ph := range ps.Phases {
			if err := r.pause(ctx); err != nil {
				logger.Debug("run cancelled", "step", i+1)
				return
			}
			r.setStep(st, i, chat.StepRunning, ph.Details, ph.Progress)
			if err := r.emit(ctx, st); err != nil {
				r.fail(ctx, st, i, err, logger)
				return
			}
		}

		if err := r.pause(ctx); err != nil {
			logger.Debug("run cancelled", "step", i+1)
			return
		}

		if ps.Fails {
			r.fail(ctx, st, i, fmt.Errorf("step %q could not be completed", ps.Title), logger)
			return
		}

		r.setStep(st, i, chat.StepCompleted, ps.Done, 100)
		st.status = chat.StatusExecuting
		if err := r.emit(ctx, st); err != nil {
			r.fail(ctx, st, i, err, logger)
			return
		}
		logger.Debug("step completed", "step", i+1, "title", ps.Title)
	}

	st.status = chat.StatusCompleted
	st.content = plan.Answer()
	if err := r.emit(ctx, st); err != nil {
		r.fail(ctx, st, st.currentStep, err, logger)
		return
	}
	logger.Info("run completed", "steps", len(plan.Steps))
}

func (r *Runner) setStep(st *runState, i int, status chat.StepStatus, details string, progress int) {
	now := r.now()
	step := &st.steps[i]
	switch {
	case status == chat.StepRunning && step.Status != chat.StepRunning:
		st.stepStarted = now
	case status.Terminal() && !st.stepStarted.IsZero():
		step.Duration = now.Sub(st.stepStarted)
	}
	step.Status = status
	step.Details = details
	step.Progress = progress
	step.Timestamp = now
}

// emit persists the state then publishes it. Cancellation wins over a
// store error so shutdown is never reported as a failed run.
func (r *Runner) emit(ctx context.Context, st *runState) error {
	now := r.now()
	err := r.store.UpdateSession(ctx, &store.Session{
		ID:          st.sessionID,
		Request:     st.request,
		Status:      st.status,
		Content:     st.content,
		Steps:       st.steps,
		CurrentStep: st.currentStep,
		CreatedAt:   st.createdAt,
		UpdatedAt:   now,
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persisting progress: %w", err)
	}
	r.hub.Publish(st.snapshot(now))
	return nil
}

// fail marks step i and the session as errored and publishes the result.
// The final write uses a fresh context so a cancelled run can still record it.
func (r *Runner) fail(runCtx context.Context, st *runState, i int, cause error, logger *slog.Logger) {
	if runCtx.Err() != nil {
		return
	}
	logger.Error("run failed", "step", i+1, "error", cause)

	r.setStep(st, i, chat.StepError, cause.Error(), 0)
	st.status = chat.StatusError
	st.content = "The task failed: " + cause.Error()

	now := r.now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.UpdateSession(ctx, &store.Session{
		ID:          st.sessionID,
		Request:     st.request,
		Status:      st.status,
		Content:     st.content,
		Steps:       st.steps,
		CurrentStep: st.currentStep,
		CreatedAt:   st.createdAt,
		UpdatedAt:   now,
	}); err != nil {
		logger.Warn("failed to persist run failure", "error", err)
	}
	r.hub.Publish(st.snapshot(now))
}

func (r *Runner) pause(ctx context.Context) error {
	d := r.delay
	if r.jitter > 0 {
		d += rand.N(r.jitter)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
