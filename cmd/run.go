// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/agent"
	"github.com/quantum-agi/sdk-go/internal/executor"
	"github.com/quantum-agi/sdk-go/internal/gateway"
	"github.com/quantum-agi/sdk-go/internal/observability"
	"github.com/quantum-agi/sdk-go/internal/store"
)

const timeRounding = 100 * time.Millisecond

var (
	runStartURL    string
	runMaxSteps    int
	runAutoApprove bool
	runInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run \"<task>\"",
	Short: "Run a natural-language task against the browser",
	Long: `Run drives the browser through one task, asking the inference service
for an action at every step until the task finishes, fails, or is stopped.

With --interactive, control lines are read from stdin while the task runs:

  pause          suspend at the next safe point
  resume         lift a pause
  stop           abort the task
  yes | no       resolve the pending confirmation
  note <text>    inject a note into the next inference request`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "start-url", "", "navigate to this URL before the task begins")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "override the configured step limit")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "approve confirmation requests without asking")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", true, "read control commands from stdin while running")
	rootCmd.AddCommand(runCmd)
}

func runTask(parent context.Context, task string) error {
	logger := observability.GetLogger()

	if runStartURL != "" {
		cfg.Executor.StartURL = runStartURL
	}
	if runMaxSteps > 0 {
		cfg.Agent.MaxSteps = runMaxSteps
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	gw, err := gateway.New(cfg.API, logger)
	if err != nil {
		return err
	}

	browser, err := executor.NewBrowser(ctx, cfg.Executor, logger)
	if err != nil {
		return err
	}
	defer browser.Close()

	var recorder agent.Recorder
	if cfg.Store.Enabled {
		st, err := store.Connect(ctx, cfg.Store.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to store: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = st
	}

	console := newConsoleControl(logger)
	client, err := agent.New(agent.Options{
		Config:   cfg,
		Logger:   logger,
		Gateway:  gw,
		Executor: browser,
		Recorder: recorder,
		Hooks:    console.hooks(),
	})
	if err != nil {
		return err
	}
	console.client = client

	g, runCtx := errgroup.WithContext(ctx)

	var result schemas.TaskResult
	g.Go(func() error {
		r, err := client.Start(runCtx, task, nil)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if runInteractive {
		lines := readLines(os.Stdin)
		g.Go(func() error {
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					console.handle(line)
				case <-runCtx.Done():
					return nil
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if result.Success {
		fmt.Printf("Task completed in %d steps (%s).\n", result.StepsTaken, result.Duration.Round(timeRounding))
		return nil
	}
	return fmt.Errorf("task failed after %d steps: %s", result.StepsTaken, result.Message)
}

// readLines feeds stdin lines to a channel so the control loop can select
// against context cancellation.
func readLines(f *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			out <- strings.TrimSpace(scanner.Text())
		}
	}()
	return out
}

// consoleControl bridges the agent's notification hooks to the terminal and
// translates stdin commands into client calls.
type consoleControl struct {
	logger *zap.Logger
	client *agent.Client

	mu        sync.Mutex
	pendingID string
}

func newConsoleControl(logger *zap.Logger) *consoleControl {
	return &consoleControl{logger: logger}
}

func (cc *consoleControl) hooks() agent.Hooks {
	return agent.Hooks{
		OnStatusChange: func(st schemas.AgentState) {
			cc.logger.Info("Status changed",
				zap.String("status", string(st.Status)),
				zap.Int("step", st.Step),
				zap.String("progress", st.Progress))
		},
		OnConfirmationRequired: func(req schemas.ConfirmationRequest) {
			if runAutoApprove {
				cc.logger.Info("Auto-approving action", zap.String("description", req.Description))
				if err := cc.client.Confirm(req.ID, true); err != nil {
					cc.logger.Warn("Failed to auto-approve", zap.Error(err))
				}
				return
			}
			cc.mu.Lock()
			cc.pendingID = req.ID
			cc.mu.Unlock()
			fmt.Printf("Confirmation required [%s impact]: %s\nType 'yes' to approve or 'no' to deny.\n",
				req.Impact, req.Description)
		},
		OnActionExecuted: func(ev schemas.ActionEvent) {
			cc.logger.Info("Action executed",
				zap.Int("step", ev.Step),
				zap.String("action", ev.Action.String()),
				zap.String("status", ev.Status))
		},
	}
}

func (cc *consoleControl) handle(line string) {
	cmdWord, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmdWord) {
	case "":
	case "pause":
		cc.client.Pause()
		fmt.Println("Pause requested; the agent will suspend at the next safe point.")
	case "resume":
		cc.client.Resume()
	case "stop":
		cc.client.Stop()
		fmt.Println("Stop requested.")
	case "yes", "y":
		cc.resolvePending(true)
	case "no", "n":
		cc.resolvePending(false)
	case "note":
		if rest == "" {
			fmt.Println("Usage: note <text>")
			return
		}
		cc.client.Interrupt(rest)
		fmt.Println("Note will be delivered with the next inference request.")
	default:
		fmt.Printf("Unknown command %q (expected pause, resume, stop, yes, no, note).\n", cmdWord)
	}
}

func (cc *consoleControl) resolvePending(approved bool) {
	cc.mu.Lock()
	id := cc.pendingID
	cc.pendingID = ""
	cc.mu.Unlock()
	if id == "" {
		fmt.Println("No confirmation is pending.")
		return
	}
	if err := cc.client.Confirm(id, approved); err != nil {
		fmt.Printf("Confirmation no longer pending: %v\n", err)
	}
}
