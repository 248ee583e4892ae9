package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/resilience"
)

var (
	metricsOnce sync.Once

	// QueueProcessedTotal counts processed tasks by type and status.
	QueueProcessedTotal *prometheus.CounterVec
	// QueueTaskDuration records task processing latency in milliseconds.
	QueueTaskDuration *prometheus.HistogramVec
)

// MustRegisterMetrics registers the worker collectors once.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QueueProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_processed_total",
			Help:      "Total tasks processed grouped by status",
		}, []string{"kind", "status"})
		QueueTaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_task_duration_ms",
			Help:      "Task processing latency in milliseconds",
			Buckets:   []float64{5, 25, 100, 500, 2500, 10000},
		}, []string{"kind"})
		for _, c := range []prometheus.Collector{QueueProcessedTotal, QueueTaskDuration} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	})
}

// MetricsMiddleware records outcome and latency of every task.
func MetricsMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		status := "ok"
		switch {
		case errors.Is(err, asynq.SkipRetry):
			status = "skipped"
		case err != nil:
			status = "error"
		}
		if QueueProcessedTotal != nil {
			QueueProcessedTotal.WithLabelValues(t.Type(), status).Inc()
		}
		if QueueTaskDuration != nil {
			QueueTaskDuration.WithLabelValues(t.Type()).Observe(obs.DurationMillis(time.Since(start)))
		}
		return err
	})
}

// RetryDelay returns an asynq retry policy with capped exponential backoff.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return resilience.CappedBackoff(base, max, n+1, 0.2)
	}
}
