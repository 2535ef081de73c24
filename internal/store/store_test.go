// File: internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/agent"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	st, err := New(context.Background(), mockPool, zaptest.NewLogger(t))
	require.NoError(t, err)
	return st, mockPool
}

func TestNewFailsWhenPingFails(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = New(context.Background(), mockPool, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to ping database")
}

func TestRecordRun(t *testing.T) {
	st, mockPool := newTestStore(t)

	run := agent.RunRecord{
		ID:         "qs-20260829-120000-deadbeef",
		Task:       "book a table",
		Success:    true,
		Message:    "task completed",
		StepsTaken: 7,
		DurationMS: 15300,
	}

	mockPool.ExpectExec(flexibleSQLMatcher("INSERT INTO agent_runs")).
		WithArgs(run.ID, run.Task, run.Success, run.Message, run.StepsTaken, run.DurationMS, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.RecordRun(context.Background(), run))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecordStep(t *testing.T) {
	st, mockPool := newTestStore(t)

	rec := schemas.StepRecord{
		Step:   3,
		Action: schemas.Action{Kind: schemas.ActionClick, X: 120, Y: 480},
		Status: "success",
		At:     time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	mockPool.ExpectExec(flexibleSQLMatcher("INSERT INTO agent_steps")).
		WithArgs("run-1", rec.Step, pgxmock.AnyArg(), rec.Status, "", rec.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.RecordStep(context.Background(), "run-1", rec))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecordStepPropagatesError(t *testing.T) {
	st, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher("INSERT INTO agent_steps")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err := st.RecordStep(context.Background(), "run-1", schemas.StepRecord{
		Step:   1,
		Action: schemas.Action{Kind: schemas.ActionFinish},
		Status: "success",
	})
	assert.ErrorContains(t, err, "disk full")
}

func TestRunSteps(t *testing.T) {
	st, mockPool := newTestStore(t)

	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"step", "action", "status", "error", "executed_at"}).
		AddRow(1, []byte(`{"type":"click","x":5,"y":5}`), "success", "", at).
		AddRow(2, []byte(`{"type":"finish","message":"done"}`), "success", "", at.Add(2*time.Second))

	mockPool.ExpectQuery(flexibleSQLMatcher("SELECT step, action, status, error, executed_at")).
		WithArgs("run-1").
		WillReturnRows(rows)

	steps, err := st.RunSteps(context.Background(), "run-1")
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, schemas.ActionClick, steps[0].Action.Kind)
	assert.Equal(t, 5, steps[0].Action.X)
	assert.Equal(t, schemas.ActionFinish, steps[1].Action.Kind)
	assert.Equal(t, "done", steps[1].Action.Message)
}

func TestEnsureSchema(t *testing.T) {
	st, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher("CREATE TABLE IF NOT EXISTS agent_runs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, mockPool.ExpectationsWereMet())
}
