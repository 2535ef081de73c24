// File: internal/agent/client.go
package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/config"
)

// Client is the public handle for task orchestration. It starts a task,
// exposes pause/resume/stop/interrupt/confirm, and reports progress through
// the registered notification hooks.
//
// Exactly one task runs per Client at a time, enforced by ErrAlreadyRunning.
// Multiple Clients are independently instantiable; no process-wide state is
// shared between them.
type Client struct {
	logger   *zap.Logger
	gateway  Gateway
	executor Executor
	recorder Recorder
	hooks    Hooks
	policy   ImpactPolicy

	agentCfg config.AgentConfig
	apiCfg   config.APIConfig
	limiter  *rate.Limiter

	gate confirmationGate

	// mu is the single mutual-exclusion boundary around loop-internal
	// mutations. The loop goroutine is the only writer of state; external
	// calls inject signals which the loop picks up at its suspension points.
	mu             sync.Mutex
	cond           *sync.Cond
	state          schemas.AgentState
	running        bool
	stopped        bool
	pauseRequested bool
	interruptNote  string
	stopC          chan struct{}
	cancelRun      context.CancelFunc
}

// Options bundles the collaborators a Client needs.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Gateway  Gateway
	Executor Executor
	// Recorder persists run/step history; nil disables persistence.
	Recorder Recorder
	Hooks    Hooks
	// Policy classifies proposed actions for implicit gating; nil gates
	// nothing beyond explicit confirm actions.
	Policy ImpactPolicy
}

// New creates a Client. All required collaborators are validated up front so
// a misassembled composition root fails fast instead of panicking mid-task.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor cannot be nil")
	}

	limit := rate.Inf
	if d := opts.Config.Agent.StepDelay; d > 0 {
		limit = rate.Every(d)
	}

	c := &Client{
		logger:   opts.Logger.Named("agent"),
		gateway:  opts.Gateway,
		executor: opts.Executor,
		recorder: opts.Recorder,
		hooks:    opts.Hooks,
		policy:   opts.Policy,
		agentCfg: opts.Config.Agent,
		apiCfg:   opts.Config.API,
		limiter:  rate.NewLimiter(limit, 1),
		state:    schemas.AgentState{Status: schemas.StatusIdle},
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// State returns a read-only snapshot of the agent.
func (c *Client) State() schemas.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start executes a task to completion and returns its result. It blocks until
// the loop reaches a terminal status; intermediate progress is observable only
// through the notification hooks. A second Start while a task is in flight
// fails with ErrAlreadyRunning.
func (c *Client) Start(ctx context.Context, task string, taskCtx schemas.Context) (schemas.TaskResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return schemas.TaskResult{}, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.stopped = false
	c.pauseRequested = false
	c.interruptNote = ""
	c.stopC = make(chan struct{})
	c.cancelRun = cancel
	// Fresh state machine instance for this task; Idle is the only initial state.
	c.state = schemas.AgentState{
		Status:     schemas.StatusIdle,
		Task:       task,
		TotalSteps: c.agentCfg.MaxSteps,
	}
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.cancelRun = nil
		c.mu.Unlock()
	}()

	return c.run(runCtx, task, taskCtx), nil
}

// Pause requests suspension of the loop. The loop honors it at its next
// suspension point; an in-flight step always completes first. A no-op when no
// task is running.
func (c *Client) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.stopped {
		return
	}
	c.pauseRequested = true
}

// Resume lifts a previous Pause. A no-op when not paused.
func (c *Client) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseRequested = false
	c.cond.Broadcast()
}

// Stop aborts the running task with a user-requested-stop failure. It is
// idempotent and returns immediately; the loop honors the signal at its next
// suspension point, cancelling any in-flight gateway call or pending
// confirmation. A no-op once the task is terminal.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	stopC := c.stopC
	cancel := c.cancelRun
	c.cond.Broadcast()
	c.mu.Unlock()

	if stopC != nil {
		close(stopC)
	}
	if cancel != nil {
		cancel()
	}
}

// Confirm resolves the pending confirmation request. An id that does not
// match the currently pending request, or a call when none is pending, fails
// with ErrUnknownConfirmation and has no effect.
func (c *Client) Confirm(id string, approved bool) error {
	return c.gate.resolve(id, approved)
}

// Interrupt injects a one-shot note into the next inference request without
// altering the agent's status, letting the caller redirect the agent without
// stopping it. A later Interrupt before the note is consumed replaces it.
func (c *Client) Interrupt(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.interruptNote = message
}

// consumeInterrupt takes the pending one-shot note, if any.
func (c *Client) consumeInterrupt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	note := c.interruptNote
	c.interruptNote = ""
	return note
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// applyEvent drives the state machine. Only the loop goroutine calls it, which
// is what guarantees the notification order observed by callers matches the
// internal transition order. The snapshot swap happens under mu; the
// notification is delivered before applyEvent returns.
func (c *Client) applyEvent(ev Event, mutate func(*schemas.AgentState)) error {
	c.mu.Lock()
	next, err := Transition(c.state.Status, ev)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	st := c.state
	st.Status = next
	if mutate != nil {
		mutate(&st)
	}
	c.state = st
	c.mu.Unlock()

	if c.hooks.OnStatusChange != nil {
		c.hooks.OnStatusChange(st)
	}
	return nil
}

// updateState replaces the snapshot without a status transition (step counter,
// progress message, last action). No status-change notification is emitted.
func (c *Client) updateState(mutate func(*schemas.AgentState)) {
	c.mu.Lock()
	st := c.state
	mutate(&st)
	c.state = st
	c.mu.Unlock()
}

// checkpoint honors pending stop/pause signals. It is called only at the
// loop's defined suspension points, never mid-dispatch. It returns a UserStop
// task error when the task is stopping, after first leaving Paused if needed
// (Paused has no direct edge to Failed).
func (c *Client) checkpoint(ctx context.Context) error {
	for {
		c.mu.Lock()
		stopped := c.stopped || ctx.Err() != nil
		paused := c.pauseRequested
		status := c.state.Status
		c.mu.Unlock()

		if stopped {
			if status == schemas.StatusPaused {
				if err := c.applyEvent(EventResume, setProgress("Agent resumed")); err != nil {
					return err
				}
			}
			return taskErr(FailUserStop, nil, "task stopped by user")
		}
		if !paused {
			if status == schemas.StatusPaused {
				if err := c.applyEvent(EventResume, setProgress("Agent resumed")); err != nil {
					return err
				}
			}
			return nil
		}
		if status == schemas.StatusRunning {
			if err := c.applyEvent(EventPause, setProgress("Agent paused")); err != nil {
				return err
			}
			// Re-read the signals before blocking; Resume may already have
			// arrived.
			continue
		}

		c.mu.Lock()
		for c.pauseRequested && !c.stopped {
			c.cond.Wait()
		}
		c.mu.Unlock()
	}
}

func setProgress(msg string) func(*schemas.AgentState) {
	return func(st *schemas.AgentState) { st.Progress = msg }
}
