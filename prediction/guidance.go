package prediction

import "fmt"

// Range is a recommended band for one reading. A nil bound is open.
type Range struct {
	Reading string   `json:"reading"`
	Unit    string   `json:"unit,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Note    string   `json:"note"`
}

// Advisory flags a reading outside its recommended range. It is advice for
// the caller; predictions are made regardless.
type Advisory struct {
	Reading string  `json:"reading"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

func bound(v float64) *float64 { return &v }

var guidance = []Range{
	{Reading: "ph", Min: bound(6.5), Max: bound(8.5), Note: "Ideal range: 6.5 to 8.5"},
	{Reading: "tds", Unit: "ppm", Max: bound(500), Note: "Ideal drinking water TDS: < 500 ppm"},
	{Reading: "turbidity", Unit: "NTU", Max: bound(5), Note: "Safe range: < 5 NTU"},
	{Reading: "temperature", Unit: "°C", Min: bound(20), Max: bound(30), Note: "Normal range for water bodies: 20°C - 30°C"},
}

// Guidance returns the recommended ranges. The slice is a copy.
func Guidance() []Range {
	out := make([]Range, len(guidance))
	copy(out, guidance)
	return out
}

// Advisories lists the readings outside their recommended range, in
// guidance order. It is nil when every reading is in range.
func (f Features) Advisories() []Advisory {
	values := map[string]float64{
		"ph":          f.PH,
		"tds":         f.TDS,
		"turbidity":   f.Turbidity,
		"temperature": f.Temperature,
	}
	var out []Advisory
	for _, r := range guidance {
		v := values[r.Reading]
		if (r.Min != nil && v < *r.Min) || (r.Max != nil && v > *r.Max) {
			out = append(out, Advisory{
				Reading: r.Reading,
				Value:   v,
				Message: fmt.Sprintf("%s %g is outside the recommended range (%s)", r.Reading, v, r.Note),
			})
		}
	}
	return out
}
