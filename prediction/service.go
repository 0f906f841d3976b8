// Package prediction turns sensor readings into a water quality label using
// a trained classifier loaded once at startup.
package prediction

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"aquasense/ml"
)

var (
	// ErrClassifierUnavailable is fatal at startup: no prediction can be made.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrInvalidInput rejects a single request; nothing is classified.
	ErrInvalidInput          = errors.New("invalid input")
)

// Classifier maps one feature vector to a label. Implementations must be
// safe for concurrent reads.
type Classifier interface {
	Classify(features []float64) (string, error)
}

type Service struct {
	clf       Classifier
	cache     *lru.Cache[Features, string]
	cacheSize int
	logger    *zap.Logger
}

type Option func(*Service)

// WithCache memoizes labels for up to size distinct readings. The
// classifier is immutable for the process lifetime, so entries never go stale.
func WithCache(size int) Option {
	return func(s *Service) {
		s.cacheSize = size
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an already loaded classifier.
func New(clf Classifier, opts ...Option) (*Service, error) {
	if clf == nil {
		return nil, fmt.Errorf("%w: no classifier", ErrClassifierUnavailable)
	}
	s := &Service{clf: clf, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[Features, string](s.cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Open loads the classifier artifact at path. Any failure is reported as
// ErrClassifierUnavailable; the process should not serve without it.
func Open(modelType, path string, opts ...Option) (*Service, error) {
	model, err := ml.LoadModel(modelType, path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrClassifierUnavailable, path, err)
	}
	s, err := New(model, opts...)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("path", path), zap.String("type", modelType)}
	if tree, ok := model.(*ml.DecisionTree); ok {
		fields = append(fields, zap.Strings("classes", tree.Classes()))
	}
	s.logger.Info("classifier loaded", fields...)
	return s, nil
}

// Predict classifies f with exactly one classifier call, or none if the
// same readings were classified before and caching is on.
func (s *Service) Predict(f Features) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	if s.cache != nil {
		if label, ok := s.cache.Get(f); ok {
			return label, nil
		}
	}
	label, err := s.clf.Classify(f.Vector())
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if label == "" {
		return "", errors.New("classify: classifier returned an empty label")
	}
	if s.cache != nil {
		s.cache.Add(f, label)
	}
	return label, nil
}
