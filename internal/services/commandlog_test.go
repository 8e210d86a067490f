package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"api-studio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommandLogRepo struct {
	mu       sync.Mutex
	appends  []*models.DesignCommand
	reverts  []int64
	failNext bool
	block    chan struct{} // when set, Append waits on it
}

func (r *fakeCommandLogRepo) Append(ctx context.Context, cmd *models.DesignCommand) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return fmt.Errorf("database unavailable")
	}
	r.appends = append(r.appends, cmd)
	return nil
}

func (r *fakeCommandLogRepo) SetReverted(ctx context.Context, designID string, contentVersion int64, reverted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverts = append(r.reverts, contentVersion)
	return nil
}

func (r *fakeCommandLogRepo) appendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appends)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func TestWriterPersistsSubmittedJobs(t *testing.T) {
	repo := &fakeCommandLogRepo{}
	writer := NewCommandLogWriter(repo, 2, 16)
	writer.Start()
	defer writer.Shutdown()

	for v := int64(1); v <= 5; v++ {
		require.NoError(t, writer.SubmitAppend(&models.DesignCommand{
			DesignID:       "d1",
			ContentVersion: v,
			Kind:           "add-node",
		}))
	}
	require.NoError(t, writer.SubmitRevert("d1", 3, true))

	waitFor(t, func() bool { return repo.appendCount() == 5 })
	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.reverts) == 1 && repo.reverts[0] == 3
	})
}

func TestWriterRejectsWhenQueueIsFull(t *testing.T) {
	repo := &fakeCommandLogRepo{block: make(chan struct{})}
	writer := NewCommandLogWriter(repo, 1, 2)
	writer.Start()

	// First job occupies the worker, the next two fill the queue
	require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 1}))
	waitFor(t, func() bool { return writer.QueueLength() == 0 })
	require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 2}))
	require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 3}))

	err := writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 4})
	assert.Error(t, err, "a full queue must reject, not block the sequencing loop")

	close(repo.block)
	writer.Shutdown()
}

func TestWriterKeepsGoingAfterRepositoryError(t *testing.T) {
	repo := &fakeCommandLogRepo{failNext: true}
	writer := NewCommandLogWriter(repo, 1, 8)
	writer.Start()
	defer writer.Shutdown()

	require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 1}))
	require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 2}))

	// The first write fails, the second still lands
	waitFor(t, func() bool { return repo.appendCount() == 1 })
	repo.mu.Lock()
	version := repo.appends[0].ContentVersion
	repo.mu.Unlock()
	assert.Equal(t, int64(2), version)
}

func TestShutdownDrainsQueuedWrites(t *testing.T) {
	repo := &fakeCommandLogRepo{}
	writer := NewCommandLogWriter(repo, 1, 16)
	writer.Start()

	for v := int64(1); v <= 10; v++ {
		require.NoError(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: v}))
	}
	writer.Shutdown()

	assert.Equal(t, 10, repo.appendCount(), "queued writes must complete before shutdown returns")
	assert.Error(t, writer.SubmitAppend(&models.DesignCommand{DesignID: "d1", ContentVersion: 11}))
}