package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
// All observe methods are nil-safe so services can run unmetered.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	detectionsTotal      prometheus.Counter
	conflictsDetected    *prometheus.CounterVec
	resolutionsRecorded  *prometheus.CounterVec
	duplicatesSuppressed prometheus.Counter
	resolutionsExpired   prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	detectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_detections_total",
		Help: "Total conflict detection runs",
	})

	conflictsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_conflicts_detected_total",
		Help: "Conflicts detected by severity",
	}, []string{"severity"})

	resolutionsRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_resolutions_recorded_total",
		Help: "Resolutions recorded by type",
	}, []string{"type"})

	duplicatesSuppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_duplicate_actions_suppressed_total",
		Help: "Conflicts collapsed into an already-issued action on the same event",
	})

	resolutionsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_resolutions_expired_total",
		Help: "Expired resolutions purged by sweeps or lazy cleanup",
	})

	registry.MustRegister(detectionsTotal, conflictsDetected, resolutionsRecorded, duplicatesSuppressed, resolutionsExpired)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		detectionsTotal:      detectionsTotal,
		conflictsDetected:    conflictsDetected,
		resolutionsRecorded:  resolutionsRecorded,
		duplicatesSuppressed: duplicatesSuppressed,
		resolutionsExpired:   resolutionsExpired,
	}
}

// Handler exposes the Prometheus HTTP handler for whatever process embeds
// the engine.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveDetection records one detection run and its conflicts.
func (m *MetricsService) ObserveDetection(result *models.ConflictResult) {
	if m == nil || result == nil {
		return
	}
	m.detectionsTotal.Inc()
	for _, c := range result.Conflicts {
		m.conflictsDetected.WithLabelValues(string(c.Severity)).Inc()
	}
}

// ObserveResolution records one persisted resolution.
func (m *MetricsService) ObserveResolution(resolutionType models.ResolutionType) {
	if m == nil {
		return
	}
	m.resolutionsRecorded.WithLabelValues(string(resolutionType)).Inc()
}

// ObserveSuppressedDuplicates records actions collapsed by dedup.
func (m *MetricsService) ObserveSuppressedDuplicates(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.duplicatesSuppressed.Add(float64(count))
}

// ObserveExpiredPurge records purged expired resolutions.
func (m *MetricsService) ObserveExpiredPurge(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.resolutionsExpired.Add(float64(count))
}
