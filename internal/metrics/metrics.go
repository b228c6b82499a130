// Package metrics exposes Prometheus instruments for the attempt lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Attempts opened by start
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_started_total",
		Help: "Total number of quiz attempts started",
	})

	AttemptsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_finished_total",
		Help: "Total number of quiz attempts scored",
	})

	AttemptsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_abandoned_total",
		Help: "Total number of quiz attempts abandoned",
	})

	AnswersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_submitted_total",
			Help: "Total number of recorded answers",
		},
		[]string{"correct"}, // "true" or "false"
	)

	// Recomputes that failed after the result was already stored
	RankingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_ranking_recompute_failures_total",
		Help: "Total number of failed ranking recomputes",
	})

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records the duration and status of requests served by next under route.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
