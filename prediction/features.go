package prediction

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Features is one set of sensor readings. Values are passed to the
// classifier as given; nothing is clamped.
type Features struct {
	PH          float64 `json:"ph"`
	TDS         float64 `json:"tds"`
	Turbidity   float64 `json:"turbidity"`
	Temperature float64 `json:"temperature"`
}

// Vector returns the readings in the order the classifier was trained on:
// ph, tds, turbidity, temperature.
func (f Features) Vector() []float64 {
	return []float64{f.PH, f.TDS, f.Turbidity, f.Temperature}
}

func (f Features) validate() error {
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"ph", f.PH},
		{"tds", f.TDS},
		{"turbidity", f.Turbidity},
		{"temperature", f.Temperature},
	} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidInput, field.name)
		}
	}
	return nil
}

// ParseFeatures builds Features from untyped text such as CLI arguments or
// form fields.
func ParseFeatures(ph, tds, turbidity, temperature string) (Features, error) {
	var f Features
	for _, field := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"ph", ph, &f.PH},
		{"tds", tds, &f.TDS},
		{"turbidity", turbidity, &f.Turbidity},
		{"temperature", temperature, &f.Temperature},
	} {
		raw := strings.TrimSpace(field.raw)
		if raw == "" {
			return Features{}, fmt.Errorf("%w: %s is missing", ErrInvalidInput, field.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Features{}, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, field.name, raw)
		}
		*field.dst = v
	}
	return f, f.validate()
}
