// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"news_crawler/internal/domain"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_tasks_total",
			Help: "Crawler tasks that reached a terminal state, labeled by config and status.",
		},
		[]string{"config", "status"},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_items_total",
			Help: "Items processed by the save pipeline, labeled by config and outcome.",
		},
		[]string{"config", "outcome"},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetch_attempts_total",
			Help: "Fetch attempts, labeled by crawler type and result.",
		},
		[]string{"crawler_type", "result"},
	)

	publishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_publish_failures_total",
			Help: "Article events that could not be published.",
		},
	)

	taskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_task_duration_seconds",
			Help:    "Wall time of crawler tasks from start to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"config"},
	)

	inFlightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_in_flight_tasks",
			Help: "Tasks currently dispatched by the scheduler.",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask records a finished task.
func ObserveTask(config string, status domain.TaskStatus, elapsed time.Duration) {
	tasksTotal.WithLabelValues(config, status.String()).Inc()
	taskDurationSeconds.WithLabelValues(config).Observe(elapsed.Seconds())
}

// ObserveStats adds one run's item outcomes.
func ObserveStats(config string, stats domain.RunStats) {
	add := func(o domain.ItemOutcome, n int) {
		if n > 0 {
			itemsTotal.WithLabelValues(config, string(o)).Add(float64(n))
		}
	}
	add(domain.OutcomeSaved, stats.Saved)
	add(domain.OutcomeDuplicate, stats.Duplicate)
	add(domain.OutcomeFiltered, stats.Filtered)
	add(domain.OutcomeError, stats.Error)
}

// ObserveFetchAttempt records one fetch attempt.
func ObserveFetchAttempt(crawlerType domain.CrawlerType, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	fetchAttemptsTotal.WithLabelValues(crawlerType.String(), result).Inc()
}

func PublishFailed() {
	publishFailuresTotal.Inc()
}

func TaskDispatched() {
	inFlightTasks.Inc()
}

func TaskReturned() {
	inFlightTasks.Dec()
}
