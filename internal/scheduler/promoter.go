package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/postpilot/api/internal/model"
)

// ScheduleSource is the slice of the schedule store the promoter needs.
type ScheduleSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduleEntry, error)
	MarkQueued(ctx context.Context, id string) (bool, error)
	Requeue(ctx context.Context, id string, to model.ScheduleStatus) error
}

// Enqueuer adds publish jobs to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload model.PublishJobPayload, priority int) (string, error)
}

// Promoter turns due schedule entries into queue jobs. It runs on a fixed
// period; each cycle is idempotent because the conditional MarkQueued
// transition lets exactly one cycle claim an entry, even across concurrent
// processes or a crash-and-rerun.
type Promoter struct {
	store     ScheduleSource
	queue     Enqueuer
	batchSize int
}

func NewPromoter(store ScheduleSource, queue Enqueuer, batchSize int) *Promoter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Promoter{
		store:     store,
		queue:     queue,
		batchSize: batchSize,
	}
}

// PromoteDue promotes every pending entry whose trigger time has passed.
// A failure on one entry never aborts the cycle for the others; failed
// entries are retried on the next cycle.
func (p *Promoter) PromoteDue(ctx context.Context) {
	due, err := p.store.ListDue(ctx, time.Now(), p.batchSize)
	if err != nil {
		log.Printf("Promotion cycle: failed to list due schedules: %v", err)
		return
	}

	promoted := 0
	for _, entry := range due {
		if err := p.promote(ctx, entry); err != nil {
			log.Printf("Promotion of schedule %s failed: %v", entry.ID, err)
			continue
		}
		promoted++
	}

	if len(due) > 0 {
		log.Printf("Promotion cycle: %d due, %d promoted", len(due), promoted)
	}
}

func (p *Promoter) promote(ctx context.Context, entry model.ScheduleEntry) error {
	claimed, err := p.store.MarkQueued(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another cycle or process got here first; skip silently.
		return nil
	}

	payload := model.PublishJobPayload{
		PostID:       entry.PostID,
		ScheduleID:   entry.ID,
		ScheduledFor: entry.ScheduledFor,
	}

	if _, err := p.queue.Enqueue(ctx, payload, model.PriorityNormal); err != nil {
		// Roll the claim back so the next cycle can try again.
		if reqErr := p.store.Requeue(ctx, entry.ID, model.ScheduleStatusPending); reqErr != nil {
			log.Printf("Failed to roll back claim on schedule %s: %v", entry.ID, reqErr)
		}
		return err
	}
	return nil
}
