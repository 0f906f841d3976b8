package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// FeatureNames is the column order every classifier in this module is
// trained and queried with.
var FeatureNames = []string{"ph", "tds", "turbidity", "temperature"}

const labelColumn = "label"

// SampleTable returns the reference training set for the water quality
// classifier.
func SampleTable() ([][]float64, []string) {
	features := [][]float64{
		{7.2, 300, 1.2, 27},
		{6.8, 280, 1.0, 26},
		{8.1, 220, 0.9, 28},
		{7.4, 330, 1.5, 25},
		{5.6, 400, 2.0, 30},
		{8.5, 150, 0.5, 24},
		{6.5, 500, 2.5, 32},
	}
	labels := []string{"Good", "Good", "Excellent", "Poor", "Hazardous", "Excellent", "Hazardous"}
	return features, labels
}

// LoadCSV reads a training table with a header row naming the feature
// columns and a label column, in any order. encoding is "utf-8" (or empty)
// or "gbk".
func LoadCSV(r io.Reader, encoding string) ([][]float64, []string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
	case "gbk":
		r = transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
	default:
		return nil, nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("training data is empty")
		}
		return nil, nil, err
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	featureIdx := make([]int, len(FeatureNames))
	for i, name := range FeatureNames {
		idx, ok := columns[name]
		if !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
		featureIdx[i] = idx
	}
	labelIdx, ok := columns[labelColumn]
	if !ok {
		return nil, nil, fmt.Errorf("missing column %q", labelColumn)
	}

	var features [][]float64
	var labels []string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		row := make([]float64, len(featureIdx))
		for i, idx := range featureIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d column %q: %w", line, FeatureNames[i], err)
			}
			row[i] = v
		}
		label := strings.TrimSpace(record[labelIdx])
		if label == "" {
			return nil, nil, fmt.Errorf("line %d: empty label", line)
		}
		features = append(features, row)
		labels = append(labels, label)
	}
	if len(features) == 0 {
		return nil, nil, errors.New("training data has no rows")
	}
	return features, labels, nil
}
