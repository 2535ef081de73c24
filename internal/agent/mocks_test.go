// File: internal/agent/mocks_test.go
package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

// mockGateway mocks the Gateway interface.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) StartSession(ctx context.Context, task string, taskCtx schemas.Context) (string, error) {
	args := m.Called(ctx, task, taskCtx)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Propose(ctx context.Context, sessionID string, req schemas.InferenceRequest) (schemas.Proposal, error) {
	args := m.Called(ctx, sessionID, req)
	return args.Get(0).(schemas.Proposal), args.Error(1)
}

func (m *mockGateway) FinishSession(ctx context.Context, sessionID string, success bool, reason string) error {
	args := m.Called(ctx, sessionID, success, reason)
	return args.Error(0)
}

// mockExecutor mocks the Executor interface.
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Capture(ctx context.Context) (schemas.Observation, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Observation), args.Error(1)
}

func (m *mockExecutor) Resolution(ctx context.Context) (schemas.Resolution, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Resolution), args.Error(1)
}

func (m *mockExecutor) Execute(ctx context.Context, action schemas.Action) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

// mockRecorder mocks the Recorder interface.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRun(ctx context.Context, run RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRecorder) RecordStep(ctx context.Context, runID string, rec schemas.StepRecord) error {
	args := m.Called(ctx, runID, rec)
	return args.Error(0)
}
