package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ai-detector/internal/blobstore"
	"github.com/example/ai-detector/internal/inference"
	"github.com/example/ai-detector/internal/repository"
)

type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	putErr    error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, data []byte, suggestedName, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	locator := s.Locate(blobstore.NewKey(suggestedName))
	s.blobs[locator] = append([]byte(nil), data...)
	return locator, nil
}

func (s *memStore) Get(ctx context.Context, locator string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[locator]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Delete(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, locator)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.blobs, locator)
	return nil
}

func (s *memStore) Locate(key string) string {
	return "mem://" + key
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type stubDetectionRepo struct {
	mu        sync.Mutex
	records   map[string]*repository.Detection
	createErr   error
	completeErr error
	findCalls   int
	// findHook runs once after a FindByID read, outside the lock.
	findHook func()
}

func newStubDetectionRepo() *stubDetectionRepo {
	return &stubDetectionRepo{records: make(map[string]*repository.Detection)}
}

func (s *stubDetectionRepo) Create(ctx context.Context, detection *repository.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	clone := *detection
	s.records[detection.ID] = &clone
	return nil
}

func (s *stubDetectionRepo) finalize(ctx context.Context, id string, apply func(*repository.Detection)) (*repository.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if record.Status != repository.StatusProcessing {
		return nil, repository.ErrAlreadyFinalized
	}
	apply(record)
	now := time.Now().UTC()
	record.FinalizedAt = &now
	clone := *record
	return &clone, nil
}

func (s *stubDetectionRepo) Complete(ctx context.Context, id string, v repository.Verdict) (*repository.Detection, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return s.finalize(ctx, id, func(d *repository.Detection) {
		d.Status = repository.StatusCompleted
		d.Label = &v.Label
		d.LabelName = &v.LabelName
		d.RiskState = &v.RiskState
		d.Confidence = &v.Confidence
		d.StructuralSimilarity = &v.StructuralSimilarity
		d.PerceptualDistance = &v.PerceptualDistance
		d.ResidualMean = &v.ResidualMean
		d.PeakRatio = &v.PeakRatio
		d.HeatmapLocator = &v.HeatmapLocator
	})
}

func (s *stubDetectionRepo) Fail(ctx context.Context, id string) (*repository.Detection, error) {
	return s.finalize(ctx, id, func(d *repository.Detection) {
		d.Status = repository.StatusFailed
	})
}

func (s *stubDetectionRepo) FindByID(ctx context.Context, id string) (*repository.Detection, error) {
	s.mu.Lock()
	s.findCalls++
	record, ok := s.records[id]
	var clone repository.Detection
	if ok {
		clone = *record
	}
	hook := s.findHook
	s.findHook = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &clone, nil
}

func (s *stubDetectionRepo) ListByOwner(ctx context.Context, ownerID string) ([]repository.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Detection
	for _, record := range s.records {
		if record.OwnedBy(ownerID) {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *stubDetectionRepo) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *stubDetectionRepo) StatsByOwner(ctx context.Context, ownerID string) (repository.DetectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats repository.DetectionStats
	var confidence float64
	for _, record := range s.records {
		if !record.OwnedBy(ownerID) {
			continue
		}
		stats.Total++
		switch record.Status {
		case repository.StatusCompleted:
			stats.Completed++
			confidence += *record.Confidence
		case repository.StatusFailed:
			stats.Failed++
		}
	}
	if stats.Completed > 0 {
		stats.AverageConfidence = confidence / float64(stats.Completed)
	}
	return stats, nil
}

func (s *stubDetectionRepo) get(id string) *repository.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

type stubUsers map[string]bool

func (s stubUsers) Exists(ctx context.Context, id string) (bool, error) {
	return s[id], nil
}

type stubInference struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, req inference.Request) (*inference.Result, error)
	requests []inference.Request
}

func (s *stubInference) Infer(ctx context.Context, req inference.Request) (*inference.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.fn(ctx, req)
}

func verdictOf(heatmap []byte) func(context.Context, inference.Request) (*inference.Result, error) {
	return func(context.Context, inference.Request) (*inference.Result, error) {
		return &inference.Result{
			Label:                1,
			LabelName:            "FAKE",
			State:                "HIGH",
			Confidence:           0.93,
			StructuralSimilarity: 0.41,
			PerceptualDistance:   0.22,
			ResidualMean:         0.05,
			PeakRatio:            1.7,
			HeatmapData:          heatmap,
		}, nil
	}
}

func failingInference(err error) func(context.Context, inference.Request) (*inference.Result, error) {
	return func(context.Context, inference.Request) (*inference.Result, error) {
		return nil, err
	}
}

type stubCache struct {
	setErrs []error
	setKeys []string
	values  map[string]string
}

func (s *stubCache) write(key, value string, onlyIfAbsent bool) (bool, error) {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return false, err
		}
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[key]; ok && onlyIfAbsent {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

func (s *stubCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	_, err := s.write(key, value, false)
	return err
}

func (s *stubCache) SetIfAbsent(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	return s.write(key, value, true)
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return value, nil
}

type transientCacheError struct{}

func (transientCacheError) Error() string   { return "cache transient" }
func (transientCacheError) Timeout() bool   { return true }
func (transientCacheError) Temporary() bool { return true }

var errBoom = errors.New("boom")
