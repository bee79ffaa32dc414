package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"druktour/internal/database"
	"druktour/internal/domain"
	"druktour/internal/metrics"
	"druktour/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// approvalTaskPayload is persisted in SyncTask.Payload as JSON.
type approvalTaskPayload struct {
	Request  *models.ApprovalRequest `json:"request,omitempty"`
	Status   models.ApprovalStatus   `json:"status,omitempty"`
	Reviewer string                  `json:"reviewer,omitempty"`
}

// SheetsWorker mirrors approval requests into the review spreadsheet. Tasks
// are persisted in sync_queue first, then handed over through Redis or an
// in-memory channel; the database is polled for anything those paths miss.
type SheetsWorker struct {
	db            *database.DB
	sheets        domain.ApprovalSheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewSheetsWorker(db *database.DB, sheets domain.ApprovalSheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "druktour:sheets:queue",
		deadLetterKey: "druktour:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask records a sheet update for the approval request.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, req *models.ApprovalRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("approval request id is required")
	}

	var payload approvalTaskPayload
	switch taskType {
	case models.TaskUpsertApproval:
		payload.Request = req
	case models.TaskUpdateApprovalStatus:
		payload.Status = req.Status
		if req.ReviewedBy != nil {
			payload.Reviewer = *req.ReviewedBy
		}
	default:
		return fmt.Errorf("unknown task type %q", taskType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  taskType,
		RequestID: req.ID,
		Payload:   string(raw),
		Status:    models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushRedis(ctx, w.redisQueueKey, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left for polling")
	}
	return nil
}

// Start runs the worker loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks")
		}
		if len(tasks) == 0 {
			if _, err := w.reportFailed(ctx); err != nil {
				w.logger.Error().Err(err).Msg("count failed sync tasks")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

// reportFailed publishes the number of dead-lettered tasks.
func (w *SheetsWorker) reportFailed(ctx context.Context) (int, error) {
	failed, err := w.db.GetFailedSyncTasks(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SetFailedSyncTasks(len(failed))
	return len(failed), nil
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	err = w.handleTask(ctx, task.TaskType, task.RequestID, payload)
	metrics.IncSyncTask(task.TaskType, err)
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task completed")
	}
}

func (w *SheetsWorker) handleTask(ctx context.Context, taskType, requestID string, payload approvalTaskPayload) error {
	switch taskType {
	case models.TaskUpsertApproval:
		if payload.Request == nil {
			return errors.New("approval payload missing")
		}
		return w.sheets.UpsertApproval(ctx, payload.Request)
	case models.TaskUpdateApprovalStatus:
		if requestID == "" || payload.Status == "" {
			return errors.New("request id or status missing")
		}
		return w.sheets.UpdateApprovalStatus(ctx, requestID, payload.Status, payload.Reviewer)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("sheet sync will retry")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("request_id", task.RequestID).Msg("sheet sync failed permanently")
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func decodePayload(raw string) (approvalTaskPayload, error) {
	var payload approvalTaskPayload
	err := json.Unmarshal([]byte(raw), &payload)
	return payload, err
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
