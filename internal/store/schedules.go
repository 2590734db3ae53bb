package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/postpilot/api/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ScheduleStore persists schedule entries in Postgres. Postgres is the
// source of truth for schedule state; status transitions use conditional
// updates so concurrent promotion cycles and worker processes cannot both
// claim the same entry.
type ScheduleStore struct {
	db *pgxpool.Pool
}

func NewScheduleStore(db *pgxpool.Pool) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleColumns = `id, post_id, channel_id, scheduled_for, status, attempt_count, last_error, created_at, updated_at`

func scanEntry(row pgx.Row) (*model.ScheduleEntry, error) {
	var e model.ScheduleEntry
	err := row.Scan(&e.ID, &e.PostID, &e.ChannelID, &e.ScheduledFor, &e.Status,
		&e.AttemptCount, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts a new pending entry.
func (s *ScheduleStore) Create(ctx context.Context, postID, channelID string, scheduledFor time.Time) (*model.ScheduleEntry, error) {
	id := uuid.NewString()
	row := s.db.QueryRow(ctx, `insert into schedule_entries(
id, post_id, channel_id, scheduled_for, status, attempt_count
) values ($1, $2, $3, $4, 'pending', 0)
returning `+scheduleColumns,
		id, postID, channelID, scheduledFor)
	return scanEntry(row)
}

// Get loads one entry by id.
func (s *ScheduleStore) Get(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	row := s.db.QueryRow(ctx, `select `+scheduleColumns+` from schedule_entries where id = $1`, id)
	return scanEntry(row)
}

// ListDue returns pending entries whose trigger time has passed.
func (s *ScheduleStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduleEntry, error) {
	rows, err := s.db.Query(ctx, `select `+scheduleColumns+`
from schedule_entries
where status = 'pending' and scheduled_for <= $1
order by scheduled_for asc
limit $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// transition performs a conditional status update and reports whether this
// caller won the transition.
func (s *ScheduleStore) transition(ctx context.Context, id string, from []model.ScheduleStatus, to model.ScheduleStatus) (bool, error) {
	fromStates := make([]string, len(from))
	for i, st := range from {
		fromStates[i] = string(st)
	}
	tag, err := s.db.Exec(ctx, `update schedule_entries
set status = $1, updated_at = now()
where id = $2 and status = any($3)`, string(to), id, fromStates)
	if err != nil {
		return false, fmt.Errorf("schedule transition to %s failed: %w", to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkQueued claims a pending entry for promotion. Losing the conditional
// update means another cycle already promoted it — the idempotency guard.
func (s *ScheduleStore) MarkQueued(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id, []model.ScheduleStatus{model.ScheduleStatusPending}, model.ScheduleStatusQueued)
}

// MarkProcessing claims an entry for execution. The claim also accepts an
// entry already in processing: a worker that died mid-attempt leaves the
// entry there, and the redelivered job must be able to reclaim it instead
// of stranding it. The queue delivers one task per entry at a time, so a
// reclaim never races a live attempt.
func (s *ScheduleStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id,
		[]model.ScheduleStatus{model.ScheduleStatusQueued, model.ScheduleStatusProcessing},
		model.ScheduleStatusProcessing)
}

// Requeue puts an entry back to queued, used when an attempt must not be
// consumed (internal quota block) or when enqueueing failed after the claim.
func (s *ScheduleStore) Requeue(ctx context.Context, id string, to model.ScheduleStatus) error {
	_, err := s.db.Exec(ctx, `update schedule_entries
set status = $1, updated_at = now()
where id = $2 and status in ('queued', 'processing')`, string(to), id)
	return err
}

// Complete marks an entry terminally successful.
func (s *ScheduleStore) Complete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `update schedule_entries
set status = 'completed', last_error = null, updated_at = now()
where id = $1`, id)
	return err
}

// Fail marks an entry terminally failed with its last error retained.
func (s *ScheduleStore) Fail(ctx context.Context, id, lastError string) error {
	_, err := s.db.Exec(ctx, `update schedule_entries
set status = 'failed', last_error = $1, updated_at = now()
where id = $2`, lastError, id)
	return err
}

// RecordAttempt bumps the attempt counter and stores the error that caused
// the retry.
func (s *ScheduleStore) RecordAttempt(ctx context.Context, id, lastError string) error {
	_, err := s.db.Exec(ctx, `update schedule_entries
set attempt_count = attempt_count + 1, last_error = $1, updated_at = now()
where id = $2`, lastError, id)
	return err
}

// ResetForRetry gives a terminally failed entry a fresh attempt budget and
// puts it back to queued for an operator-driven retry.
func (s *ScheduleStore) ResetForRetry(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `update schedule_entries
set status = 'queued', attempt_count = 0, last_error = null, updated_at = now()
where id = $1 and status = 'failed'`, id)
	if err != nil {
		return false, fmt.Errorf("schedule retry reset failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel cancels an entry that has not started executing. Returns false
// once the entry is processing or terminal.
func (s *ScheduleStore) Cancel(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id,
		[]model.ScheduleStatus{model.ScheduleStatusPending, model.ScheduleStatusQueued},
		model.ScheduleStatusCancelled)
}
