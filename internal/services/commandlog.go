package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"api-studio/internal/models"
)

/*
COMMAND LOG WRITER POOL

Sequencing must stay fast: the hub assigns a content version and moves
on, while the database write happens here, on a fixed pool of workers
draining a bounded queue.

Key Concepts:
1. **Worker Pool**: fixed number of goroutines pulling jobs off one
   buffered channel
2. **Backpressure**: a full queue rejects the submit instead of
   growing without bound
3. **Graceful Shutdown**: context + WaitGroup so in-flight writes
   finish before the process exits
*/

// CommandLogJob is one pending persistence action
type CommandLogJob struct {
	// Append, when set, is a freshly sequenced command to store
	Append *models.DesignCommand

	// Revert describes an undo/redo flag flip when Append is nil
	DesignID       string
	ContentVersion int64
	Reverted       bool
}

// CommandLogRepository defines what the writer needs from storage
type CommandLogRepository interface {
	Append(ctx context.Context, cmd *models.DesignCommand) error
	SetReverted(ctx context.Context, designID string, contentVersion int64, reverted bool) error
}

// CommandLogWriter persists sequenced commands asynchronously
type CommandLogWriter struct {
	repo CommandLogRepository

	jobs    chan CommandLogJob
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCommandLogWriter creates the writer pool without starting it
func NewCommandLogWriter(repo CommandLogRepository, numWorkers, queueSize int) *CommandLogWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &CommandLogWriter{
		repo:    repo,
		jobs:    make(chan CommandLogJob, queueSize),
		workers: numWorkers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start spawns the workers
func (w *CommandLogWriter) Start() {
	log.Printf("🔧 Starting command log writer pool with %d workers", w.workers)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	log.Println("✓ Command log writer pool started")
}

func (w *CommandLogWriter) worker(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			log.Printf("  Log writer %d shutting down", id)
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			if err := w.process(job); err != nil {
				log.Printf("  Log writer %d error: %v", id, err)
			}
		}
	}
}

func (w *CommandLogWriter) process(job CommandLogJob) error {
	ctx := context.Background()
	if job.Append != nil {
		if err := w.repo.Append(ctx, job.Append); err != nil {
			return fmt.Errorf("failed to append command (design %s, version %d): %w",
				job.Append.DesignID, job.Append.ContentVersion, err)
		}
		return nil
	}
	if err := w.repo.SetReverted(ctx, job.DesignID, job.ContentVersion, job.Reverted); err != nil {
		return fmt.Errorf("failed to flip reverted flag (design %s, version %d): %w",
			job.DesignID, job.ContentVersion, err)
	}
	return nil
}

// SubmitAppend queues a sequenced command for persistence.
// Non-blocking: a full queue is an error, not a stall on the
// sequencing loop.
func (w *CommandLogWriter) SubmitAppend(cmd *models.DesignCommand) error {
	return w.submit(CommandLogJob{Append: cmd})
}

// SubmitRevert queues an undo/redo flag flip
func (w *CommandLogWriter) SubmitRevert(designID string, contentVersion int64, reverted bool) error {
	return w.submit(CommandLogJob{
		DesignID:       designID,
		ContentVersion: contentVersion,
		Reverted:       reverted,
	})
}

func (w *CommandLogWriter) submit(job CommandLogJob) error {
	// Checked first: once the pool shuts down the jobs channel is
	// closed and sending would panic.
	select {
	case <-w.ctx.Done():
		return fmt.Errorf("command log writer is shutting down")
	default:
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return fmt.Errorf("command log write queue is full")
	}
}

// QueueLength returns the number of pending writes
func (w *CommandLogWriter) QueueLength() int {
	return len(w.jobs)
}

// Shutdown stops the pool after in-flight writes complete
func (w *CommandLogWriter) Shutdown() {
	log.Println("🛑 Shutting down command log writer...")
	// Cancel only after the workers drain the queue, or queued writes
	// would be lost to the ctx.Done race in the worker select.
	close(w.jobs)
	w.wg.Wait()
	w.cancel()
	log.Println("✓ Command log writer shutdown complete")
}
