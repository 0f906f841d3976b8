// Package assess runs one water quality assessment: classify the readings,
// then record the result.
package assess

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aquasense/monitoring"
	"aquasense/prediction"
	"aquasense/records"
)

type Predictor interface {
	Predict(f prediction.Features) (string, error)
}

// Request is the wire form of a prediction request. Pointers tell a
// missing reading apart from zero.
type Request struct {
	PH          *float64 `json:"ph"`
	TDS         *float64 `json:"tds"`
	Turbidity   *float64 `json:"turbidity"`
	Temperature *float64 `json:"temperature"`
}

// Features rejects a request missing any of the four readings.
func (r Request) Features() (prediction.Features, error) {
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"ph", r.PH},
		{"tds", r.TDS},
		{"turbidity", r.Turbidity},
		{"temperature", r.Temperature},
	} {
		if field.value == nil {
			return prediction.Features{}, fmt.Errorf("%w: %s is missing", prediction.ErrInvalidInput, field.name)
		}
	}
	return prediction.Features{PH: *r.PH, TDS: *r.TDS, Turbidity: *r.Turbidity, Temperature: *r.Temperature}, nil
}

// Result carries the label even when recording it failed.
type Result struct {
	Prediction   string                `json:"prediction"`
	Recorded     bool                  `json:"recorded"`
	StorageError string                `json:"storage_error,omitempty"`
	Advisories   []prediction.Advisory `json:"advisories,omitempty"`

	StorageErr error `json:"-"`
}

// Counter receives one increment per outcome. monitoring.MetricsCollector
// satisfies it.
type Counter interface {
	IncrCounter(name string, labels map[string]string)
}

type nopCounter struct{}

func (nopCounter) IncrCounter(string, map[string]string) {}

type Service struct {
	predictor Predictor
	store     records.Store
	logger    *zap.Logger
	counter   Counter
}

type Option func(*Service)

func WithCounter(c Counter) Option {
	return func(s *Service) {
		if c != nil {
			s.counter = c
		}
	}
}

// NewService builds the use case. A nil logger is replaced by a no-op one.
func NewService(predictor Predictor, store records.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{predictor: predictor, store: store, logger: logger, counter: nopCounter{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess returns an error only when no label could be produced; nothing is
// stored in that case. A storage failure is reported inside Result.
func (s *Service) Assess(ctx context.Context, f prediction.Features, record bool) (Result, error) {
	label, err := s.predictor.Predict(f)
	if err != nil {
		s.counter.IncrCounter(monitoring.MetricPredictionFailures, nil)
		return Result{}, err
	}
	s.counter.IncrCounter(monitoring.MetricPredictions, map[string]string{"label": label})
	res := Result{Prediction: label, Advisories: f.Advisories()}
	if !record {
		return res, nil
	}

	obs := records.Observation{
		PH:          f.PH,
		TDS:         f.TDS,
		Turbidity:   f.Turbidity,
		Temperature: f.Temperature,
		Prediction:  label,
	}
	if err := s.store.Append(ctx, obs); err != nil {
		s.logger.Error("failed to record observation", zap.String("prediction", label), zap.Error(err))
		s.counter.IncrCounter(monitoring.MetricRecordFailures, nil)
		res.StorageErr = err
		res.StorageError = err.Error()
		return res, nil
	}
	res.Recorded = true
	s.counter.IncrCounter(monitoring.MetricRecordsAppended, nil)
	s.logger.Debug("observation recorded", zap.String("prediction", label))
	return res, nil
}

// History returns every recorded observation, oldest first.
func (s *Service) History(ctx context.Context) ([]records.Observation, error) {
	return s.store.LoadAll(ctx)
}
