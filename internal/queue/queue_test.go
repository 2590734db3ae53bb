package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/postpilot/api/internal/model"
)

func TestEnqueuePlan(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		name         string
		scheduledFor time.Time
		priority     int
		wantDelay    time.Duration
		wantPriority int
	}{
		{
			name:         "overdue runs immediately",
			scheduledFor: now.Add(-time.Hour),
			priority:     model.PriorityNormal,
			wantDelay:    0,
			wantPriority: model.PriorityImmediate,
		},
		{
			name:         "due now runs immediately",
			scheduledFor: now,
			priority:     model.PriorityNormal,
			wantDelay:    0,
			wantPriority: model.PriorityImmediate,
		},
		{
			name:         "near due is promoted to immediate",
			scheduledFor: now.Add(3 * time.Second),
			priority:     model.PriorityNormal,
			wantDelay:    0,
			wantPriority: model.PriorityImmediate,
		},
		{
			name:         "future keeps its delay and priority",
			scheduledFor: now.Add(time.Hour),
			priority:     model.PriorityNormal,
			wantDelay:    time.Hour,
			wantPriority: model.PriorityNormal,
		},
		{
			name:         "future high stays high",
			scheduledFor: now.Add(10 * time.Minute),
			priority:     model.PriorityHigh,
			wantDelay:    10 * time.Minute,
			wantPriority: model.PriorityHigh,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			delay, priority := enqueuePlan(tt.scheduledFor, now, tt.priority)
			if delay != tt.wantDelay {
				t.Fatalf("delay = %v, want %v", delay, tt.wantDelay)
			}
			if priority != tt.wantPriority {
				t.Fatalf("priority = %d, want %d", priority, tt.wantPriority)
			}
		})
	}
}

func TestQueueFor(t *testing.T) {
	t.Parallel()
	if q := queueFor(model.PriorityImmediate); q != QueueImmediate {
		t.Fatalf("queueFor(immediate) = %s", q)
	}
	if q := queueFor(model.PriorityHigh); q != QueueHigh {
		t.Fatalf("queueFor(high) = %s", q)
	}
	if q := queueFor(model.PriorityNormal); q != QueueNormal {
		t.Fatalf("queueFor(normal) = %s", q)
	}
	if q := queueFor(99); q != QueueNormal {
		t.Fatalf("queueFor(unknown) = %s, want normal", q)
	}
}

func TestPublishTimeoutCoversPollDeadlines(t *testing.T) {
	t.Parallel()
	// The longest provider polling deadline is 180s; the job timeout must
	// leave room for it plus the publish call itself.
	if publishTimeout < 180*time.Second {
		t.Fatalf("publishTimeout %v is shorter than the longest poll deadline", publishTimeout)
	}
}

// fakeInspector serves canned task info per queue; queues without an entry
// report the task as not found.
type fakeInspector struct {
	infos   map[string]*asynq.TaskInfo
	infoErr error
	delErr  error
	deleted []string
}

func (f *fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if info, ok := f.infos[queue]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
}

func (f *fakeInspector) DeleteTask(queue, id string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, queue+"/"+id)
	return nil
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return nil, fmt.Errorf("asynq: %w", asynq.ErrQueueNotFound)
}

func (f *fakeInspector) ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (f *fakeInspector) Close() error { return nil }

func TestCancelDeletesWaitingTask(t *testing.T) {
	t.Parallel()
	insp := &fakeInspector{infos: map[string]*asynq.TaskInfo{
		QueueNormal: {ID: "publish:s1", State: asynq.TaskStatePending},
	}}
	q := &Queue{inspector: insp}

	ok, err := q.Cancel(context.Background(), "publish:s1")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !ok {
		t.Fatal("expected waiting task to be cancelled")
	}
	if len(insp.deleted) != 1 || insp.deleted[0] != QueueNormal+"/publish:s1" {
		t.Fatalf("deleted = %v", insp.deleted)
	}
}

func TestCancelRefusesActiveTask(t *testing.T) {
	t.Parallel()
	insp := &fakeInspector{infos: map[string]*asynq.TaskInfo{
		QueueImmediate: {ID: "publish:s1", State: asynq.TaskStateActive},
	}}
	q := &Queue{inspector: insp}

	ok, err := q.Cancel(context.Background(), "publish:s1")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if ok {
		t.Fatal("running task must not be reported cancelled")
	}
	if len(insp.deleted) != 0 {
		t.Fatalf("deleted = %v, running task must not be deleted", insp.deleted)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()
	q := &Queue{inspector: &fakeInspector{}}

	ok, err := q.Cancel(context.Background(), "publish:s1")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if ok {
		t.Fatal("unknown task must not be reported cancelled")
	}
}

func TestCancelPropagatesInspectorError(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	q := &Queue{inspector: &fakeInspector{infoErr: cause}}

	ok, err := q.Cancel(context.Background(), "publish:s1")
	if !errors.Is(err, cause) {
		t.Fatalf("expected inspector error to propagate, got %v", err)
	}
	if ok {
		t.Fatal("a failed cancel must not report success")
	}
}
