// File: internal/agent/loop.go
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/screen"
)

// errStaleResolution flags a display geometry change between capture and
// dispatch. The step is retried with a fresh capture instead of executing
// coordinates mapped against the old resolution.
var errStaleResolution = errors.New("screen resolution changed since capture")

// maxStaleRetries bounds how often a single step may be re-captured after a
// resolution change before the task fails.
const maxStaleRetries = 2

const (
	stepStatusSuccess = "success"
	stepStatusFailed  = "failed"
	stepStatusDenied  = "denied"
)

// run drives one task from Idle to a terminal status. It owns every state
// mutation; external calls (Pause, Stop, Confirm, Interrupt) only inject
// signals that run picks up at its suspension points: before the inference
// call, after the response before dispatch, and while awaiting confirmation.
// A dispatch, once begun, always completes.
func (c *Client) run(ctx context.Context, task string, taskCtx schemas.Context) schemas.TaskResult {
	start := time.Now()
	runID := correlationID()
	log := c.logger.With(zap.String("run_id", runID))
	log.Info("Starting task",
		zap.String("task", task),
		zap.Int("max_steps", c.agentCfg.MaxSteps))

	if err := c.applyEvent(EventStart, setProgress("Starting task...")); err != nil {
		// Unreachable from the fresh Idle snapshot Start installs.
		return c.finish(log, start, 0, runID, "", err)
	}

	sessionID, err := c.gateway.StartSession(ctx, task, taskCtx)
	if err != nil {
		return c.finish(log, start, 0, runID, "",
			taskErr(FailGateway, err, "failed to start inference session"))
	}
	log = log.With(zap.String("session_id", sessionID))

	history := newStepHistory(c.agentCfg.MaxHistory)
	step := 0
	staleRetries := 0

	for {
		// Suspension point: before calling the gateway.
		if err := c.checkpoint(ctx); err != nil {
			return c.finish(log, start, step, runID, sessionID, err)
		}
		if step >= c.agentCfg.MaxSteps {
			return c.finish(log, start, step, runID, sessionID,
				taskErr(FailStepLimit, nil, "maximum steps (%d) reached without completing task", c.agentCfg.MaxSteps))
		}
		// Pace local automation so the display can settle between actions.
		if err := c.limiter.Wait(ctx); err != nil {
			return c.finish(log, start, step, runID, sessionID,
				taskErr(FailUserStop, nil, "task stopped by user"))
		}

		proposal, mapper, err := c.observeAndPropose(ctx, log, sessionID, task, taskCtx, history, step+1)
		if err != nil {
			if c.isStopped() || ctx.Err() != nil {
				err = taskErr(FailUserStop, nil, "task stopped by user")
			}
			return c.finish(log, start, step, runID, sessionID, err)
		}

		step++
		action := proposal.Action
		c.updateState(func(st *schemas.AgentState) {
			st.Step = step
			st.Progress = fmt.Sprintf("Executing step %d: %s", step, action)
		})
		log.Debug("Action proposed",
			zap.Int("step", step),
			zap.String("action", action.String()),
			zap.String("reasoning", proposal.Reasoning))

		// Suspension point: response received, dispatch not yet begun.
		if err := c.checkpoint(ctx); err != nil {
			return c.finish(log, start, step, runID, sessionID, err)
		}

		outcome, err := c.maybeGate(ctx, &action, proposal, step)
		if err != nil {
			return c.finish(log, start, step, runID, sessionID, err)
		}
		if outcome == gateDenied {
			rec := c.recordStep(ctx, log, runID, step, action, stepStatusDenied, "denied by user")
			history.add(rec)
			c.notifyAction(schemas.ActionEvent{Step: step, Action: action, Status: stepStatusDenied})
			continue
		}

		// Terminal actions conclude the task without touching the device.
		switch action.Kind {
		case schemas.ActionFinish:
			c.recordStep(ctx, log, runID, step, action, stepStatusSuccess, "")
			c.notifyAction(schemas.ActionEvent{Step: step, Action: action, Status: stepStatusSuccess})
			return c.complete(log, start, step, runID, sessionID, action.Message)
		case schemas.ActionFail:
			c.recordStep(ctx, log, runID, step, action, stepStatusSuccess, "")
			c.notifyAction(schemas.ActionEvent{Step: step, Action: action, Status: stepStatusSuccess})
			reason := action.Reason
			if reason == "" {
				reason = "agent reported the task cannot be completed"
			}
			return c.finish(log, start, step, runID, sessionID,
				taskErr(FailAgentReported, nil, "%s", reason))
		}

		if err := c.dispatch(ctx, log, action, mapper); err != nil {
			if errors.Is(err, errStaleResolution) {
				staleRetries++
				if staleRetries > maxStaleRetries {
					return c.finish(log, start, step, runID, sessionID,
						taskErr(FailExecutor, err, "screen resolution kept changing during dispatch"))
				}
				log.Warn("Screen resolution changed, retrying step with fresh capture",
					zap.Int("step", step))
				// The aborted attempt does not consume a step.
				step--
				continue
			}
			rec := c.recordStep(ctx, log, runID, step, action, stepStatusFailed, err.Error())
			history.add(rec)
			c.notifyAction(schemas.ActionEvent{Step: step, Action: action, Status: stepStatusFailed, Error: err.Error()})
			return c.finish(log, start, step, runID, sessionID, err)
		}
		staleRetries = 0

		rec := c.recordStep(ctx, log, runID, step, action, stepStatusSuccess, "")
		history.add(rec)
		c.updateState(func(st *schemas.AgentState) {
			a := action
			st.LastAction = &a
		})
		c.notifyAction(schemas.ActionEvent{Step: step, Action: action, Status: stepStatusSuccess})
	}
}

// observeAndPropose captures the screen, sends the inference request, and
// validates the proposal. Transient gateway failures are retried with
// exponential backoff up to the configured attempt budget. A structurally
// invalid action earns exactly one re-propose with feedback describing the
// rejection; a second invalid proposal fails the task.
func (c *Client) observeAndPropose(ctx context.Context, log *zap.Logger, sessionID, task string, taskCtx schemas.Context, history *stepHistory, step int) (schemas.Proposal, screen.Mapper, error) {
	interrupt := c.consumeInterrupt()
	feedback := ""

	for attempt := 0; ; attempt++ {
		obs, mapper, err := c.capture(ctx)
		if err != nil {
			return schemas.Proposal{}, screen.Mapper{}, taskErr(FailExecutor, err, "screen capture failed")
		}

		req := schemas.InferenceRequest{
			Task:             task,
			ScreenshotBase64: base64.StdEncoding.EncodeToString(obs.PNG),
			OriginalWidth:    obs.Resolution.Width,
			OriginalHeight:   obs.Resolution.Height,
			Context:          taskCtx,
			History:          history.window(),
			StepNumber:       step,
			Interrupt:        interrupt,
			Feedback:         feedback,
		}

		proposal, err := c.proposeWithRetry(ctx, log, sessionID, req)
		if err != nil {
			return schemas.Proposal{}, screen.Mapper{}, err
		}
		if proposal.Outcome == schemas.OutcomeCannotDetermine {
			return schemas.Proposal{}, screen.Mapper{},
				taskErr(FailGateway, nil, "inference service could not determine a next action: %s", proposal.Reasoning)
		}
		if err := proposal.Action.Validate(); err != nil {
			if attempt == 0 {
				log.Warn("Malformed action proposed, requesting a replacement",
					zap.Int("step", step),
					zap.Error(err))
				feedback = fmt.Sprintf("your previous action was rejected: %v; respond with a valid action", err)
				continue
			}
			return schemas.Proposal{}, screen.Mapper{},
				taskErr(FailMalformed, err, "inference service returned a malformed action")
		}
		return proposal, mapper, nil
	}
}

// proposeWithRetry wraps a single inference exchange in the retry policy.
// Each attempt gets its own timeout; the whole sequence aborts as soon as the
// run context is cancelled.
func (c *Client) proposeWithRetry(ctx context.Context, log *zap.Logger, sessionID string, req schemas.InferenceRequest) (schemas.Proposal, error) {
	attempts := c.apiCfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	var proposal schemas.Proposal
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.apiCfg.Timeout)
		defer cancel()
		p, err := c.gateway.Propose(callCtx, sessionID, req)
		if err != nil {
			log.Warn("Inference request failed, backing off", zap.Error(err))
			return err
		}
		proposal = p
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return schemas.Proposal{}, taskErr(FailGateway, err, "inference failed after %d attempts", attempts)
	}
	return proposal, nil
}

// capture takes a screenshot and builds the coordinate mapper for the
// resolution it was taken at.
func (c *Client) capture(ctx context.Context) (schemas.Observation, screen.Mapper, error) {
	capCtx, cancel := context.WithTimeout(ctx, c.agentCfg.ExecTimeout)
	defer cancel()

	obs, err := c.executor.Capture(capCtx)
	if err != nil {
		return schemas.Observation{}, screen.Mapper{}, err
	}
	mapper, err := screen.NewMapper(obs.Resolution)
	if err != nil {
		return schemas.Observation{}, screen.Mapper{}, err
	}
	return obs, mapper, nil
}

type gateOutcome int

const (
	gatePassed gateOutcome = iota
	gateApproved
	gateDenied
)

// maybeGate pauses the loop on a confirmation request when the action is an
// explicit confirm or the impact policy classifies it medium or high. On
// approval the pending action replaces *action. A denial either aborts the
// task (default) or skips the action, per configuration. Stop and context
// cancellation break the wait; the pending request is discarded.
func (c *Client) maybeGate(ctx context.Context, action *schemas.Action, proposal schemas.Proposal, step int) (gateOutcome, error) {
	gated := action.Kind == schemas.ActionConfirm || proposal.RequiresConfirmation
	if !gated && c.policy != nil {
		if lvl := c.policy(*action); lvl == schemas.ImpactMedium || lvl == schemas.ImpactHigh {
			gated = true
		}
	}
	if !gated {
		return gatePassed, nil
	}

	req, decision := c.gate.arm(*action, schemas.Context{
		"step":      step,
		"reasoning": proposal.Reasoning,
	})
	if err := c.applyEvent(EventAwaitConfirmation, setProgress("Waiting for confirmation: "+req.Description)); err != nil {
		c.gate.clear()
		return gatePassed, err
	}
	if c.hooks.OnConfirmationRequired != nil {
		c.hooks.OnConfirmationRequired(req)
	}

	select {
	case approved := <-decision:
		if err := c.applyEvent(EventConfirmationResolve, setProgress("Confirmation resolved")); err != nil {
			return gatePassed, err
		}
		*action = req.Pending
		if approved {
			return gateApproved, nil
		}
		if c.agentCfg.DenialAborts {
			return gateDenied, taskErr(FailUserDenied, nil, "user denied action: %s", req.Description)
		}
		return gateDenied, nil
	case <-c.stopC:
		c.gate.clear()
		return gatePassed, taskErr(FailUserStop, nil, "task stopped while awaiting confirmation")
	case <-ctx.Done():
		c.gate.clear()
		return gatePassed, taskErr(FailUserStop, nil, "task cancelled while awaiting confirmation")
	}
}

// dispatch executes a validated action against the device. The resolution is
// re-checked immediately before dispatch; a mismatch with the capture-time
// resolution surfaces errStaleResolution so the loop can retry the step
// rather than execute mis-mapped coordinates. The execution context is
// detached from the run context: stop requests never cancel an action that
// has already begun, only the executor timeout bounds it.
func (c *Client) dispatch(ctx context.Context, log *zap.Logger, action schemas.Action, mapper screen.Mapper) error {
	if !action.DeviceBound() {
		return nil
	}

	resCtx, cancel := context.WithTimeout(ctx, c.agentCfg.ExecTimeout)
	res, err := c.executor.Resolution(resCtx)
	cancel()
	if err != nil {
		return taskErr(FailExecutor, err, "failed to read screen resolution")
	}
	if res != mapper.Resolution() {
		return errStaleResolution
	}

	device := mapper.DeviceAction(action)

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.agentCfg.ExecTimeout)
	defer cancel()
	if err := c.executor.Execute(execCtx, device); err == nil {
		return nil
	} else if !c.agentCfg.RetryExecutorOnce {
		return taskErr(FailExecutor, err, "action %s failed", action)
	} else {
		log.Warn("Action failed, retrying once", zap.String("action", action.String()), zap.Error(err))
	}

	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.agentCfg.ExecTimeout)
	defer cancel()
	if err := c.executor.Execute(retryCtx, device); err != nil {
		return taskErr(FailExecutor, err, "action %s failed after retry", action)
	}
	return nil
}

// complete drives the task to Finished and assembles the success result.
func (c *Client) complete(log *zap.Logger, start time.Time, steps int, runID, sessionID, message string) schemas.TaskResult {
	if message == "" {
		message = "task completed"
	}
	if aerr := c.applyEvent(EventFinish, setProgress(message)); aerr != nil {
		log.Error("Failed to finalize task state", zap.Error(aerr))
	}
	result := schemas.TaskResult{
		Success:    true,
		Message:    message,
		StepsTaken: steps,
		Duration:   time.Since(start),
	}
	log.Info("Task finished",
		zap.Int("steps", steps),
		zap.Duration("duration", result.Duration))

	return c.conclude(log, runID, sessionID, result)
}

// finish drives the task to Failed and assembles the failure result. Failure
// while Paused resumes first, since the state machine has no direct
// Paused-to-Failed edge.
func (c *Client) finish(log *zap.Logger, start time.Time, steps int, runID, sessionID string, err error) schemas.TaskResult {
	code := FailureCodeOf(err)
	msg := err.Error()
	var te *TaskError
	if errors.As(err, &te) {
		msg = te.Message
	}
	if st := c.State().Status; st == schemas.StatusPaused {
		if aerr := c.applyEvent(EventResume, setProgress("Agent resumed")); aerr != nil {
			log.Error("Failed to leave paused state", zap.Error(aerr))
		}
	}
	if aerr := c.applyEvent(EventFail, func(st *schemas.AgentState) {
		st.Progress = "Task failed"
		st.Error = msg
		st.ErrorCode = string(code)
	}); aerr != nil {
		log.Error("Failed to finalize task state", zap.Error(aerr))
	}
	result := schemas.TaskResult{
		Success:    false,
		Message:    msg,
		StepsTaken: steps,
		Duration:   time.Since(start),
	}
	log.Warn("Task failed",
		zap.String("code", string(code)),
		zap.Int("steps", steps),
		zap.Duration("duration", result.Duration),
		zap.Error(err))

	return c.conclude(log, runID, sessionID, result)
}

// conclude attaches the final snapshot and flushes persistence and the remote
// session, shared by both terminal paths.
func (c *Client) conclude(log *zap.Logger, runID, sessionID string, result schemas.TaskResult) schemas.TaskResult {
	final := c.State()
	result.FinalState = &final

	c.recordRun(log, runID, result)
	c.closeSession(log, sessionID, result)
	return result
}

// closeSession tells the gateway the session outcome. Best effort on a
// detached short-lived context so shutdown is never blocked by a slow or
// cancelled network path.
func (c *Client) closeSession(log *zap.Logger, sessionID string, result schemas.TaskResult) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.apiCfg.Timeout)
	defer cancel()
	if err := c.gateway.FinishSession(ctx, sessionID, result.Success, result.Message); err != nil {
		log.Warn("Failed to close inference session", zap.Error(err))
	}
}

// recordRun persists the run summary when a recorder is configured.
func (c *Client) recordRun(log *zap.Logger, runID string, result schemas.TaskResult) {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec := RunRecord{
		ID:         runID,
		Task:       c.State().Task,
		Success:    result.Success,
		Message:    result.Message,
		StepsTaken: result.StepsTaken,
		DurationMS: result.Duration.Milliseconds(),
	}
	if err := c.recorder.RecordRun(ctx, rec); err != nil {
		log.Warn("Failed to persist run record", zap.Error(err))
	}
}

// recordStep builds the history record for a processed step and persists it
// when a recorder is configured. Persistence failures are logged, never fatal.
func (c *Client) recordStep(ctx context.Context, log *zap.Logger, runID string, step int, action schemas.Action, status, errMsg string) schemas.StepRecord {
	rec := schemas.StepRecord{
		Step:   step,
		Action: action,
		Status: status,
		Error:  errMsg,
		At:     time.Now().UTC(),
	}
	if c.recorder == nil {
		return rec
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.recorder.RecordStep(persistCtx, runID, rec); err != nil {
		log.Warn("Failed to persist step record",
			zap.Int("step", step),
			zap.Error(err))
	}
	return rec
}

func (c *Client) notifyAction(ev schemas.ActionEvent) {
	if c.hooks.OnActionExecuted != nil {
		c.hooks.OnActionExecuted(ev)
	}
}

// correlationID produces the run identifier used for logging and persistence,
// e.g. "qs-20260829-153004-1a2b3c4d".
func correlationID() string {
	return fmt.Sprintf("qs-%s-%s",
		time.Now().UTC().Format("20060102-150405"),
		uuid.New().String()[:8])
}
