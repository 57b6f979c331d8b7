// Package metrics provides Prometheus metrics for the coach API and the insight worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_jobs_enqueued_total",
			Help: "Total number of insight jobs enqueued",
		},
		[]string{"type"},
	)
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_jobs_completed_total",
			Help: "Total number of insight jobs completed successfully",
		},
		[]string{"type"},
	)
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_jobs_failed_total",
			Help: "Total number of insight jobs that failed",
		},
		[]string{"type"},
	)
	JobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexcoach_jobs_in_queue",
			Help: "Current number of jobs by status",
		},
		[]string{"status", "type"},
	)
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexcoach_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type", "status"},
	)
	JobWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexcoach_job_wait_time_seconds",
			Help:    "Time jobs spend waiting in queue before execution",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"type"},
	)
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_upstream_requests_total",
			Help: "Total number of calls to the workspace and LLM providers",
		},
		[]string{"service", "operation", "outcome"},
	)
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexcoach_upstream_request_duration_seconds",
			Help:    "Upstream call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "operation"},
	)
	ForecastsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_forecasts_computed_total",
			Help: "Total number of project timelines computed",
		},
		[]string{"cyclic"},
	)
	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_insights_generated_total",
			Help: "Total number of insight reports generated",
		},
		[]string{"source"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexcoach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexcoach_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexcoach_http_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexcoach_queue_depth",
			Help: "Current depth of the insight job queue",
		},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexcoach_workers_active",
			Help: "Number of currently active workers",
		},
	)
)

func RecordJobEnqueued(jobType string) {
	JobsEnqueued.WithLabelValues(jobType).Inc()
}

func RecordJobCompleted(jobType string, duration time.Duration) {
	JobsCompleted.WithLabelValues(jobType).Inc()
	JobDuration.WithLabelValues(jobType, "completed").Observe(duration.Seconds())
}

func RecordJobFailed(jobType string, duration time.Duration) {
	JobsFailed.WithLabelValues(jobType).Inc()
	JobDuration.WithLabelValues(jobType, "failed").Observe(duration.Seconds())
}

func RecordJobWaitTime(jobType string, waitTime time.Duration) {
	JobWaitTime.WithLabelValues(jobType).Observe(waitTime.Seconds())
}

// RecordUpstreamCall counts one call to service and classifies it by err.
func RecordUpstreamCall(service, operation string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	UpstreamRequests.WithLabelValues(service, operation, outcome).Inc()
	UpstreamDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordForecast(cyclic bool) {
	label := "false"
	if cyclic {
		label = "true"
	}
	ForecastsComputed.WithLabelValues(label).Inc()
}

func RecordInsightGenerated(source string) {
	InsightsGenerated.WithLabelValues(source).Inc()
}

func RecordRateLimited() {
	RateLimited.Inc()
}

func UpdateJobGauges(jobsByStatus map[string]map[string]int) {
	JobsInQueue.Reset()
	for status, typeMap := range jobsByStatus {
		for jobType, count := range typeMap {
			JobsInQueue.WithLabelValues(status, jobType).Set(float64(count))
		}
	}
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func UpdateActiveWorkers(count int) {
	WorkersActive.Set(float64(count))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
