package models

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

const (
	TaskUpsertApproval       = "upsert_approval"
	TaskUpdateApprovalStatus = "update_approval_status"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	StateIdle                 = "idle"
	StateAwaitingRejectReason = "awaiting_reject_reason"
)

const (
	// DefaultSessionTTL how long an idle edit session survives, seconds
	DefaultSessionTTL = 12 * 60 * 60

	// DefaultStateTTL reviewer bot conversation state lifetime, seconds
	DefaultStateTTL = 24 * 60 * 60

	// WorkerQueueSize size of the in-memory sync queue
	WorkerQueueSize = 1000

	// RateLimitMessages messages per window for reviewers in the bot
	RateLimitMessages = 20

	// RateLimitWindow rate limit window, seconds
	RateLimitWindow = 60

	// SheetsCacheTTL row cache lifetime for the review sheet, seconds
	SheetsCacheTTL = 60 * 60
)
