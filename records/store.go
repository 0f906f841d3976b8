// Package records persists observations in an append-only log and reads
// them back in insertion order.
package records

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrStoreUnwritable means the observation was not durably saved.
	ErrStoreUnwritable = errors.New("record store unwritable")
	// ErrStoreCorrupt means the existing log could not be read back.
	ErrStoreCorrupt    = errors.New("record store corrupt")
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Observation is one measurement together with the label it was given.
type Observation struct {
	PH          float64 `json:"ph"`
	TDS         float64 `json:"tds"`
	Turbidity   float64 `json:"turbidity"`
	Temperature float64 `json:"temperature"`
	Prediction  string  `json:"prediction"`
}

// Store is an append-only observation log. There is no update or delete.
type Store interface {
	Append(ctx context.Context, obs Observation) error
	LoadAll(ctx context.Context) ([]Observation, error)
	Close() error
}

type Config struct {
	Driver           string
	Path             string
	CorruptionPolicy CorruptionPolicy
}

// Open builds the store selected by cfg.Driver.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case DriverJSON, "":
		return NewFileStore(cfg.Path, WithPolicy(cfg.CorruptionPolicy), WithLogger(logger)), nil
	case DriverSQLite:
		return NewSQLiteStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
