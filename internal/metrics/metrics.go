package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "druktour"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)

	sessionMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "itinerary_session_mutations_total",
			Help:      "Edit session operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "itinerary_submissions_total",
			Help:      "Submit-for-approval outcomes.",
		},
		[]string{"outcome"},
	)

	submitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "itinerary_submit_duration_seconds",
			Help:      "Time from submit to settlement.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	reviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "itinerary_review_decisions_total",
			Help:      "Approval decisions by result.",
		},
		[]string{"decision"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Sheets sync task outcomes by type.",
		},
		[]string{"task", "outcome"},
	)

	failedSyncTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sheets_sync_failed_tasks",
			Help:      "Sync tasks that exhausted their retries.",
		},
	)

	sessionStoreDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_store_degraded",
			Help:      "1 while sessions are served by the in-memory fallback.",
		},
	)

	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviewer_bot_updates_total",
			Help:      "Telegram updates handled by the reviewer bot.",
		},
		[]string{"kind"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reviewer_bot_update_seconds",
			Help:      "Time spent processing a Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers the collectors once per process.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, sessionMutations, submissions, submitDuration, reviewDecisions, syncTasks,
			failedSyncTasks, sessionStoreDegraded, botUpdates, botUpdateDuration)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncSessionOp(op string, err error) {
	sessionMutations.WithLabelValues(op, result(err)).Inc()
}

func ObserveSubmission(outcome string, seconds float64) {
	submissions.WithLabelValues(outcome).Inc()
	submitDuration.Observe(seconds)
}

func IncReviewDecision(decision string) {
	reviewDecisions.WithLabelValues(decision).Inc()
}

func IncSyncTask(task string, err error) {
	syncTasks.WithLabelValues(task, result(err)).Inc()
}

func SetFailedSyncTasks(n int) {
	failedSyncTasks.Set(float64(n))
}

func SetSessionStoreDegraded(degraded bool) {
	if degraded {
		sessionStoreDegraded.Set(1)
		return
	}
	sessionStoreDegraded.Set(0)
}

// ObserveBotUpdate records one processed update. kind is message, callback,
// rate_limited, panic or ignored.
func ObserveBotUpdate(kind string, seconds float64) {
	botUpdates.WithLabelValues(kind).Inc()
	botUpdateDuration.Observe(seconds)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
