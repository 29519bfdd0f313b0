package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ai-detector/internal/logging"
)

// DetectionRepository persists detection requests.
type DetectionRepository struct {
	retrier
	db *gorm.DB
}

// NewDetectionRepository wires a gorm handle.
func NewDetectionRepository(db *gorm.DB, logger *zap.Logger) *DetectionRepository {
	return &DetectionRepository{retrier: newRetrier(logger), db: db}
}

// Create inserts a detection. New detections must be PROCESSING.
func (r *DetectionRepository) Create(ctx context.Context, detection *Detection) error {
	if detection.Status == "" {
		detection.Status = StatusProcessing
	}
	if detection.CreatedAt.IsZero() {
		detection.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(detection).Error; err != nil {
		return logging.NewOperationError("repository.detection_create", detection.ID, err)
	}
	return nil
}

// Complete moves a PROCESSING detection to COMPLETED and stores its verdict.
func (r *DetectionRepository) Complete(ctx context.Context, id string, verdict Verdict) (*Detection, error) {
	values := map[string]interface{}{
		"status":                StatusCompleted,
		"label":                 verdict.Label,
		"label_name":            verdict.LabelName,
		"risk_state":            verdict.RiskState,
		"confidence":            verdict.Confidence,
		"structural_similarity": verdict.StructuralSimilarity,
		"perceptual_distance":   verdict.PerceptualDistance,
		"residual_mean":         verdict.ResidualMean,
		"peak_ratio":            verdict.PeakRatio,
		"heatmap_locator":       verdict.HeatmapLocator,
	}
	return r.finalize(ctx, "repository.detection_complete", id, values)
}

// Fail moves a PROCESSING detection to FAILED. Result columns stay NULL.
func (r *DetectionRepository) Fail(ctx context.Context, id string) (*Detection, error) {
	return r.finalize(ctx, "repository.detection_fail", id, map[string]interface{}{
		"status": StatusFailed,
	})
}

// finalize is a conditional write so a detection leaves PROCESSING at most once.
// It is not retried: a lost acknowledgement would turn into ErrAlreadyFinalized.
func (r *DetectionRepository) finalize(ctx context.Context, operation, id string, values map[string]interface{}) (*Detection, error) {
	values["finalized_at"] = time.Now().UTC()

	var detection Detection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Detection{}).
			Where("id = ? AND status = ?", id, StatusProcessing).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if err := translate(tx.First(&detection, "id = ?", id).Error); err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyFinalized
		}
		return nil
	})
	switch {
	case err == nil:
		return &detection, nil
	case err == ErrNotFound, err == ErrAlreadyFinalized:
		return nil, err
	default:
		return nil, logging.NewOperationError(operation, id, err)
	}
}

// FindByID loads a detection.
func (r *DetectionRepository) FindByID(ctx context.Context, id string) (*Detection, error) {
	var detection Detection
	err := r.executeWithRetry(ctx, "repository.detection_find", id, func() error {
		return translate(r.db.WithContext(ctx).First(&detection, "id = ?", id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &detection, nil
}

// ListByOwner returns the owner's detections, newest first.
func (r *DetectionRepository) ListByOwner(ctx context.Context, ownerID string) ([]Detection, error) {
	var detections []Detection
	err := r.executeWithRetry(ctx, "repository.detection_list", ownerID, func() error {
		detections = detections[:0]
		return r.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			Order("created_at DESC").
			Order("id DESC").
			Find(&detections).Error
	})
	if err != nil {
		return nil, err
	}
	return detections, nil
}

// Delete removes a detection row.
func (r *DetectionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&Detection{}, "id = ?", id)
	if res.Error != nil {
		return logging.NewOperationError("repository.detection_delete", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StatsByOwner aggregates the owner's history.
func (r *DetectionRepository) StatsByOwner(ctx context.Context, ownerID string) (DetectionStats, error) {
	var stats DetectionStats
	err := r.executeWithRetry(ctx, "repository.detection_stats", ownerID, func() error {
		return r.db.WithContext(ctx).
			Model(&Detection{}).
			Select(
				"COUNT(*) AS total, "+
					"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
					"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed, "+
					"COALESCE(AVG(confidence), 0) AS average_confidence",
				StatusCompleted, StatusFailed,
			).
			Where("owner_id = ?", ownerID).
			Scan(&stats).Error
	})
	if err != nil {
		return DetectionStats{}, err
	}
	return stats, nil
}
