package usecase

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/repository"
)

// Metrics records detection outcomes and inference latency.
type Metrics struct {
	detections *prometheus.CounterVec
	inference  prometheus.Histogram
}

// NewMetrics registers the detection collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_detections_total",
				Help: "Finalized detection requests by terminal status.",
			},
			[]string{"status"},
		),
		inference: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "detector_inference_duration_seconds",
			Help:    "Duration of inference calls in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) observeInference(seconds float64) {
	if m == nil {
		return
	}
	m.inference.Observe(seconds)
}

func (m *Metrics) countDetection(status string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(status).Inc()
}

// StatsSummary represents aggregated detection insights for one owner.
type StatsSummary struct {
	Total             int64   `json:"total"`
	Completed         int64   `json:"completed"`
	Failed            int64   `json:"failed"`
	SuccessRate       float64 `json:"successRate"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// Stats aggregates the owner's detection history.
func (uc *DetectionUseCase) Stats(ctx context.Context, ownerID string) (*StatsSummary, error) {
	if err := uc.requireKnownUser(ctx, ownerID); err != nil {
		return nil, err
	}

	aggregation, err := uc.repo.StatsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{
		Total:             aggregation.Total,
		Completed:         aggregation.Completed,
		Failed:            aggregation.Failed,
		AverageConfidence: aggregation.AverageConfidence,
	}

	if finished := aggregation.Completed + aggregation.Failed; finished > 0 {
		summary.SuccessRate = float64(aggregation.Completed) / float64(finished)
	}

	return summary, nil
}

func (uc *DetectionUseCase) requireKnownUser(ctx context.Context, userID string) error {
	exists, err := uc.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("user not found")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(message)
	}
	return err
}
