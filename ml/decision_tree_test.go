package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []string{"low", "low", "high", "high"}

	model := NewDecisionTree(2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "low" {
		t.Fatalf("expected label low, got %s", label)
	}
	if confidence <= 0 {
		t.Fatalf("expected confidence > 0")
	}
}

func TestDecisionTreeFitsSampleTable(t *testing.T) {
	features, labels := SampleTable()
	model := NewDecisionTree(0)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("train: %v", err)
	}
	for i, row := range features {
		got, err := model.Classify(row)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if got != labels[i] {
			t.Errorf("row %d %v: got %s, want %s", i, row, got, labels[i])
		}
	}

	classes := model.Classes()
	want := []string{"Excellent", "Good", "Hazardous", "Poor"}
	if len(classes) != len(want) {
		t.Fatalf("classes = %v, want %v", classes, want)
	}
	for i := range want {
		if classes[i] != want[i] {
			t.Fatalf("classes = %v, want %v", classes, want)
		}
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	features, labels := SampleTable()
	model := NewDecisionTree(0)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("train: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel(ModelTypeDecisionTree, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, row := range features {
		got, err := loaded.Classify(row)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if got != labels[i] {
			t.Errorf("row %d: got %s, want %s", i, got, labels[i])
		}
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	if _, _, err := (&DecisionTree{}).Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := (&DecisionTree{}).Save(filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained on save, got %v", err)
	}
	if err := NewDecisionTree(3).Train(nil, nil); !errors.Is(err, ErrEmptyTraining) {
		t.Fatalf("expected ErrEmptyTraining, got %v", err)
	}

	features, labels := SampleTable()
	model := NewDecisionTree(3)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, _, err := model.Predict([]float64{7, 300}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
}

func TestLoadModelRejectsBadArtifacts(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadModel(ModelTypeDecisionTree, filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing artifact")
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(ModelTypeDecisionTree, garbage); err == nil {
		t.Fatal("expected error for unparsable artifact")
	}

	badChild := filepath.Join(dir, "bad.json")
	payload := `{"version":1,"feature_count":4,"classes":["Good"],"nodes":[{"feature_idx":0,"threshold":1,"left_child":5,"right_child":6,"is_leaf":false}]}`
	if err := os.WriteFile(badChild, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(ModelTypeDecisionTree, badChild); !errors.Is(err, ErrInvalidTree) {
		t.Fatalf("expected ErrInvalidTree, got %v", err)
	}

	if _, err := LoadModel("random_forest", garbage); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}
