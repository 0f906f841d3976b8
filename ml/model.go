package ml

// MLModel is a trained classifier that can be persisted as an artifact and
// loaded back by LoadModel.
type MLModel interface {
	Train(features [][]float64, labels []string) error
	Predict(features []float64) (string, float64, error)
	Classify(features []float64) (string, error)
	Save(path string) error
	Load(path string) error
}
