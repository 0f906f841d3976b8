package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"aquasense/ml"
)

func main() {
	dataPath := flag.String("data", "", "training CSV with ph,tds,turbidity,temperature,label columns (default: built-in sample table)")
	encoding := flag.String("encoding", "utf-8", "CSV encoding: utf-8 or gbk")
	modelPath := flag.String("model_path", "model/water_quality_model.json", "model output path")
	maxDepth := flag.Int("max_depth", 10, "max tree depth")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	features, labels, err := loadTrainingData(*dataPath, *encoding)
	if err != nil {
		logger.Fatal("failed to load training data", zap.Error(err))
	}

	model := ml.NewDecisionTree(*maxDepth)
	if err := model.Train(features, labels); err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}

	logger.Info("model trained",
		zap.Int("rows", len(features)),
		zap.Strings("classes", model.Classes()),
		zap.Float64("training_accuracy", evaluateModel(model, features, labels)))

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		logger.Fatal("failed to create model dir", zap.Error(err))
	}
	if err := model.Save(*modelPath); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

func loadTrainingData(path, encoding string) ([][]float64, []string, error) {
	if path == "" {
		features, labels := ml.SampleTable()
		return features, labels, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ml.LoadCSV(f, encoding)
}

// evaluateModel reports accuracy over the given rows. The training set is
// too small to hold out a test split.
func evaluateModel(model *ml.DecisionTree, features [][]float64, labels []string) float64 {
	if len(features) == 0 {
		return 0
	}
	var correct int
	for i, row := range features {
		label, err := model.Classify(row)
		if err != nil {
			continue
		}
		if label == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(features))
}
