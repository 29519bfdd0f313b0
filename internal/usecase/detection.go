package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/blobstore"
	"github.com/example/ai-detector/internal/inference"
	"github.com/example/ai-detector/internal/logging"
	"github.com/example/ai-detector/internal/repository"
)

const (
	defaultInferenceTimeout = 30 * time.Second
	finalizeTimeout         = 10 * time.Second
	defaultCacheTTL         = 10 * time.Minute
)

// DetectionRepository defines the persistence operations needed by the detection flow.
type DetectionRepository interface {
	Create(ctx context.Context, detection *repository.Detection) error
	Complete(ctx context.Context, id string, verdict repository.Verdict) (*repository.Detection, error)
	Fail(ctx context.Context, id string) (*repository.Detection, error)
	FindByID(ctx context.Context, id string) (*repository.Detection, error)
	ListByOwner(ctx context.Context, ownerID string) ([]repository.Detection, error)
	Delete(ctx context.Context, id string) error
	StatsByOwner(ctx context.Context, ownerID string) (repository.DetectionStats, error)
}

// UserDirectory answers whether an identity still names an account.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Upload is an accepted image waiting to be analysed.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// DetectionUseCase drives detection requests from upload to a terminal state.
type DetectionUseCase struct {
	repo             DetectionRepository
	users            UserDirectory
	store            blobstore.Store
	client           inference.Client
	cache            *resultCache
	metrics          *Metrics
	logger           *zap.Logger
	allowGuest       bool
	inferenceTimeout time.Duration
	now              func() time.Time
}

// DetectionOption customises a DetectionUseCase.
type DetectionOption func(*DetectionUseCase)

// WithGuestDetection controls whether anonymous callers may submit images.
func WithGuestDetection(allow bool) DetectionOption {
	return func(uc *DetectionUseCase) {
		uc.allowGuest = allow
	}
}

// WithInferenceTimeout bounds every inference call.
func WithInferenceTimeout(timeout time.Duration) DetectionOption {
	return func(uc *DetectionUseCase) {
		if timeout > 0 {
			uc.inferenceTimeout = timeout
		}
	}
}

// WithResultCache enables read-through caching of finalized detections.
func WithResultCache(cache Cache, ttl time.Duration) DetectionOption {
	return func(uc *DetectionUseCase) {
		if cache == nil {
			return
		}
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		uc.cache = newResultCache(cache, ttl, uc.logger)
	}
}

// WithMetrics records outcomes and inference latency on m.
func WithMetrics(m *Metrics) DetectionOption {
	return func(uc *DetectionUseCase) {
		uc.metrics = m
	}
}

// NewDetectionUseCase constructs a new use case instance.
func NewDetectionUseCase(repo DetectionRepository, users UserDirectory, store blobstore.Store, client inference.Client, logger *zap.Logger, opts ...DetectionOption) *DetectionUseCase {
	uc := &DetectionUseCase{
		repo:             repo,
		users:            users,
		store:            store,
		client:           client,
		logger:           logger.Named("detection_usecase"),
		allowGuest:       true,
		inferenceTimeout: defaultInferenceTimeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Submit stores the upload, records it as PROCESSING, runs inference and
// finalizes the record. When inference fails the FAILED record is returned
// together with an ErrUpstream error.
func (uc *DetectionUseCase) Submit(ctx context.Context, upload Upload, caller *string) (*repository.Detection, error) {
	if caller == nil && !uc.allowGuest {
		return nil, apperr.Forbidden("authentication required")
	}
	if len(upload.Data) == 0 {
		return nil, apperr.Validation("file is required")
	}
	if caller != nil {
		if err := uc.requireKnownUser(ctx, *caller); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.submit_detection", id)

	locator, err := uc.store.Put(ctx, upload.Data, upload.Filename, upload.ContentType)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.store_upload", id, err)
		opLogger.Error("failed to store upload", zap.Error(wrapped))
		return nil, wrapped
	}

	detection := &repository.Detection{
		ID:               id,
		OwnerID:          caller,
		OriginalFilename: upload.Filename,
		StoredLocator:    locator,
		Status:           repository.StatusProcessing,
		CreatedAt:        uc.now(),
	}
	if err := uc.repo.Create(ctx, detection); err != nil {
		opLogger.Error("failed to persist detection", zap.Error(err))
		blobstore.DeleteBestEffort(context.WithoutCancel(ctx), uc.store, opLogger, locator)
		return nil, err
	}

	verdict, heatmapStored, inferErr := uc.infer(ctx, detection, upload)

	// The terminal state is committed even if the caller went away.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if inferErr != nil {
		opLogger.Warn("inference failed", zap.Error(inferErr))
		return uc.fail(finalizeCtx, opLogger, id, apperr.Upstream("inference failed", inferErr))
	}

	completed, err := uc.repo.Complete(finalizeCtx, id, verdict)
	if err != nil {
		opLogger.Error("failed to complete detection", zap.Error(err))
		if heatmapStored {
			blobstore.DeleteBestEffort(finalizeCtx, uc.store, opLogger, verdict.HeatmapLocator)
		}
		if errors.Is(err, repository.ErrAlreadyFinalized) || errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return uc.fail(finalizeCtx, opLogger, id, apperr.Upstream("failed to record inference result", err))
	}
	uc.metrics.countDetection(repository.StatusCompleted)
	uc.cache.store(finalizeCtx, completed)
	opLogger.Info("detection completed", zap.String("label", verdict.LabelName), zap.Float64("confidence", verdict.Confidence))
	return completed, nil
}

// fail moves the detection to FAILED and returns it with cause. A detection
// is never left PROCESSING when Submit returns.
func (uc *DetectionUseCase) fail(ctx context.Context, opLogger *zap.Logger, id string, cause error) (*repository.Detection, error) {
	failed, err := uc.repo.Fail(ctx, id)
	if err != nil {
		opLogger.Error("failed to mark detection as failed", zap.Error(err))
		return nil, errors.Join(cause, err)
	}
	uc.metrics.countDetection(repository.StatusFailed)
	uc.cache.store(ctx, failed)
	return failed, cause
}

// infer calls the inference service under the configured timeout and
// resolves the heatmap into a locator. heatmapStored reports whether a new
// blob was written for it.
func (uc *DetectionUseCase) infer(ctx context.Context, detection *repository.Detection, upload Upload) (repository.Verdict, bool, error) {
	inferCtx, cancel := context.WithTimeout(ctx, uc.inferenceTimeout)
	defer cancel()

	start := time.Now()
	result, err := uc.client.Infer(inferCtx, inference.Request{
		DetectionID: detection.ID,
		Locator:     detection.StoredLocator,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		Data:        upload.Data,
	})
	uc.metrics.observeInference(time.Since(start).Seconds())
	if err != nil {
		return repository.Verdict{}, false, err
	}

	heatmap, stored, err := uc.resolveHeatmap(inferCtx, result, upload.Filename)
	if err != nil {
		return repository.Verdict{}, false, err
	}

	return repository.Verdict{
		Label:                result.Label,
		LabelName:            result.LabelName,
		RiskState:            result.State,
		Confidence:           result.Confidence,
		StructuralSimilarity: result.StructuralSimilarity,
		PerceptualDistance:   result.PerceptualDistance,
		ResidualMean:         result.ResidualMean,
		PeakRatio:            result.PeakRatio,
		HeatmapLocator:       heatmap,
	}, stored, nil
}

func (uc *DetectionUseCase) resolveHeatmap(ctx context.Context, result *inference.Result, filename string) (string, bool, error) {
	switch {
	case len(result.HeatmapData) > 0:
		locator, err := uc.store.Put(ctx, result.HeatmapData, "hm_"+filename, "image/png")
		if err != nil {
			return "", false, logging.NewOperationError("usecase.store_heatmap", "", err)
		}
		return locator, true, nil
	case result.HeatmapKey != "":
		return uc.store.Locate(result.HeatmapKey), false, nil
	case result.HeatmapLocator != "":
		return result.HeatmapLocator, false, nil
	default:
		return "", false, inference.ErrMalformedPayload
	}
}

// Get returns a detection by id.
func (uc *DetectionUseCase) Get(ctx context.Context, id string) (*repository.Detection, error) {
	if cached, ok := uc.cache.load(ctx, id); ok {
		return cached, nil
	}

	detection, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "detection not found")
	}
	uc.cache.store(ctx, detection)
	return detection, nil
}

// ListHistory returns the owner's detections, newest first.
func (uc *DetectionUseCase) ListHistory(ctx context.Context, ownerID string) ([]repository.Detection, error) {
	if err := uc.requireKnownUser(ctx, ownerID); err != nil {
		return nil, err
	}

	detections, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if detections == nil {
		detections = []repository.Detection{}
	}
	return detections, nil
}

// Delete removes a detection owned by caller together with its blobs.
func (uc *DetectionUseCase) Delete(ctx context.Context, id, caller string) error {
	detection, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "detection not found")
	}
	if !detection.OwnedBy(caller) {
		return apperr.Forbidden("detection belongs to another user")
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.delete_detection", id)
	releaseBlobs(ctx, uc.store, opLogger, detection)

	if err := uc.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "detection not found")
	}
	uc.cache.invalidate(ctx, id)
	return nil
}

func releaseBlobs(ctx context.Context, store blobstore.Store, logger *zap.Logger, detection *repository.Detection) {
	blobstore.DeleteBestEffort(ctx, store, logger, detection.StoredLocator)
	if detection.HeatmapLocator != nil {
		blobstore.DeleteBestEffort(ctx, store, logger, *detection.HeatmapLocator)
	}
}
