package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/jobs"
)

type stubJobs struct {
	name string
	opts TriggerOptions
	err  error
}

func (s *stubJobs) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	s.name, s.opts = name, opts
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "abc", Type: name, Queue: jobs.QueueDefault}, nil
}

func (s *stubJobs) InspectQueue() (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 2}, nil
}

func (s *stubJobs) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "x", Type: jobs.TaskLowStockScan, NextProcessAt: time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)}}, nil
}

func TestTriggerCommand(t *testing.T) {
	stub := &stubJobs{}
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), stub, []string{"trigger", "-branch", "3", jobs.TaskReconcileScan}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, jobs.TaskReconcileScan, stub.name)
	require.EqualValues(t, 3, stub.opts.BranchID)
	require.Contains(t, stdout.String(), "enqueued inventory:reconcile_scan id=abc")
}

func TestTriggerFailureAndUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), &stubJobs{err: errors.New("redis down")}, []string{"trigger", jobs.TaskLowStockScan}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "redis down")

	require.Equal(t, 2, Run(context.Background(), &stubJobs{}, []string{"trigger"}, &stdout, &stderr))
	require.Equal(t, 2, Run(context.Background(), &stubJobs{}, nil, &stdout, &stderr))
}

func TestQueueAndScheduledCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, Run(context.Background(), &stubJobs{}, []string{"queue"}, &stdout, &stderr))
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 2, stats.Pending)

	stdout.Reset()
	require.Equal(t, 0, Run(context.Background(), &stubJobs{}, []string{"scheduled"}, &stdout, &stderr))
	require.Equal(t, "x\tinventory:low_stock_scan\t2026-01-02T06:00:00Z\n", stdout.String())
}

func TestTaskFor(t *testing.T) {
	task, err := TaskFor(jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: time.Hour})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = TaskFor("finance:close", TriggerOptions{})
	require.Error(t, err)
}
