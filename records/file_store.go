package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CorruptionPolicy decides what Append does with a log it cannot parse.
type CorruptionPolicy string

const (
	// PolicyDiscard overwrites the unparsable log.
	PolicyDiscard CorruptionPolicy = "discard"
	// PolicyQuarantine moves the unparsable log aside and logs a warning.
	PolicyQuarantine CorruptionPolicy = "quarantine"
)

func (p CorruptionPolicy) Valid() bool {
	return p == "" || p == PolicyDiscard || p == PolicyQuarantine
}

// FileStore keeps the whole log as one JSON array. Every Append rewrites the
// file; the mutex makes the read-modify-write safe for concurrent callers in
// this process. Separate processes sharing the file are not coordinated.
type FileStore struct {
	mu     sync.Mutex
	path   string
	policy CorruptionPolicy
	logger *zap.Logger
	now    func() time.Time
}

type FileOption func(*FileStore)

// WithPolicy sets the corruption policy. The empty policy keeps the default, quarantine.
func WithPolicy(p CorruptionPolicy) FileOption {
	return func(s *FileStore) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithLogger sets the logger used for corruption warnings.
func WithLogger(logger *zap.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore returns a store backed by the JSON file at path. The file is
// created lazily on the first Append.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:   path,
		policy: PolicyQuarantine,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

// errUnparsable marks content that exists but is not a JSON observation array.
var errUnparsable = errors.New("unparsable log")

// Append adds obs to the end of the log. An unparsable log is handled per
// the corruption policy and replaced by a log holding only obs.
func (s *FileStore) Append(ctx context.Context, obs Observation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, errUnparsable):
		s.recover(err)
		existing = nil
	default:
		return fmt.Errorf("%w: read %s: %w", ErrStoreUnwritable, s.path, err)
	}

	existing = append(existing, obs)
	if err := s.write(existing); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}
	return nil
}

// LoadAll reports an unparsable log instead of hiding it.
func (s *FileStore) LoadAll(ctx context.Context) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreCorrupt, s.path, err)
	}
	if records == nil {
		records = []Observation{}
	}
	return records, nil
}

func (s *FileStore) Close() error {
	return nil
}

// read returns nil, nil when the log does not exist yet.
func (s *FileStore) read() ([]Observation, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty file", errUnparsable)
	}
	return decodeLog(data)
}

// wireObservation tells a missing key apart from a zero value.
type wireObservation struct {
	PH          *float64 `json:"ph"`
	TDS         *float64 `json:"tds"`
	Turbidity   *float64 `json:"turbidity"`
	Temperature *float64 `json:"temperature"`
	Prediction  *string  `json:"prediction"`
}

// decodeLog accepts only an array of complete observations, or null.
func decodeLog(data []byte) ([]Observation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var wire []*wireObservation
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparsable, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", errUnparsable)
	}
	if wire == nil {
		return nil, nil
	}
	records := make([]Observation, 0, len(wire))
	for i, w := range wire {
		if w == nil {
			return nil, fmt.Errorf("%w: record %d is null", errUnparsable, i)
		}
		if w.PH == nil || w.TDS == nil || w.Turbidity == nil || w.Temperature == nil || w.Prediction == nil {
			return nil, fmt.Errorf("%w: record %d is missing a field", errUnparsable, i)
		}
		records = append(records, Observation{
			PH:          *w.PH,
			TDS:         *w.TDS,
			Turbidity:   *w.Turbidity,
			Temperature: *w.Temperature,
			Prediction:  *w.Prediction,
		})
	}
	return records, nil
}

func (s *FileStore) recover(cause error) {
	if s.policy != PolicyQuarantine {
		s.logger.Debug("discarding unparsable record log", zap.String("path", s.path), zap.Error(cause))
		return
	}
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().UnixNano())
	if err := os.Rename(s.path, target); err != nil {
		s.logger.Error("failed to quarantine unparsable record log, it will be overwritten",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	s.logger.Warn("quarantined unparsable record log, starting a new one",
		zap.String("path", s.path), zap.String("quarantine", target), zap.Error(cause))
}

// write replaces the log through a temp file and rename so readers never see
// a partial array.
func (s *FileStore) write(records []Observation) error {
	payload, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
