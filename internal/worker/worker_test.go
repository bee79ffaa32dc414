package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"druktour/internal/database"
	"druktour/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRequest(id string) *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ID:          id,
		BookingID:   "BK-1",
		Summary:     "Day 2: Modified Temple Visit",
		Status:      models.ApprovalPending,
		SubmittedBy: "alice",
		SubmittedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessTask_Upsert(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, pendingRequest("req-1")))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "req-1", task.RequestID)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid)
	require.Len(t, sheets.upserts, 1)
	assert.Equal(t, "Day 2: Modified Temple Visit", sheets.upserts[0].Summary)
}

func TestProcessTask_StatusUpdateCarriesReviewer(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	req := pendingRequest("req-2")
	req.Status = models.ApprovalApproved
	reviewer := "karma"
	req.ReviewedBy = &reviewer
	require.NoError(t, w.EnqueueTask(ctx, models.TaskUpdateApprovalStatus, req))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	assert.Equal(t, []string{"req-2:approved:karma"}, sheets.statuses)
}

func TestProcessTask_Retry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, pendingRequest("req-3")))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "retry waits for its backoff")
}

func TestProcessTask_FailsToDeadLetter(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("sheet deleted")}
	w := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, pendingRequest("req-4")))
	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := s.List(w.deadLetterKey)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, "req-4", deadTask.RequestID)
}

func TestProcessTask_BadPayloadFails(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.TaskUpsertApproval, RequestID: "req-5", Payload: "not json"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestReportFailed_CountsDeadLetteredTasks(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{err: errors.New("sheet deleted")}, nil, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	n, err := w.reportFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, id := range []string{"req-10", "req-11"} {
		require.NoError(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, pendingRequest(id)))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)
		w.processTask(ctx, &task)
	}

	n, err = w.reportFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnqueueTask_Validation(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, nil))
	assert.Error(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, &models.ApprovalRequest{}))
	assert.Error(t, w.EnqueueTask(ctx, "delete_everything", pendingRequest("req-6")))
}

func TestEnqueueTask_RedisDownFallsBackToMemory(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, client, RetryPolicy{}, nil)

	require.NoError(t, w.EnqueueTask(context.Background(), models.TaskUpsertApproval, pendingRequest("req-7")))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "req-7", task.RequestID)
}

func TestStart_DrainsQueueAndStops(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.EnqueueTask(ctx, models.TaskUpsertApproval, pendingRequest("req-8")))

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sheets.upsertCount() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

type fakeSheets struct {
	mu       sync.Mutex
	err      error
	upserts  []models.ApprovalRequest
	statuses []string
}

func (f *fakeSheets) UpsertApproval(_ context.Context, req *models.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *req)
	return f.err
}

func (f *fakeSheets) UpdateApprovalStatus(_ context.Context, requestID string, status models.ApprovalStatus, reviewer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, requestID+":"+string(status)+":"+reviewer)
	return f.err
}

func (f *fakeSheets) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.False(t, RetryPolicy{}.Exhausted(100))
}
