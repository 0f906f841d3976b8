package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

const artifactVersion = 1

const defaultMaxDepth = 10

var (
	ErrNotTrained    = errors.New("model not trained")
	ErrFeatureCount  = errors.New("feature count mismatch")
	ErrInvalidTree   = errors.New("invalid tree state")
	ErrEmptyTraining = errors.New("features or labels empty")
)

// DecisionTree is a binary classification tree stored as a flat node slice.
// Node 0 is the root; children are referenced by index.
type DecisionTree struct {
	maxDepth     int
	featureCount int
	classes      []string
	nodes        []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Confidence float64 `json:"confidence"`
	IsLeaf     bool    `json:"is_leaf"`
}

// treeArtifact is the on-disk layout written by Save.
type treeArtifact struct {
	Version      int        `json:"version"`
	FeatureCount int        `json:"feature_count"`
	Classes      []string   `json:"classes"`
	Nodes        []TreeNode `json:"nodes"`
}

// NewDecisionTree returns an untrained tree. maxDepth <= 0 uses the default of 10.
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{maxDepth: maxDepth}
}

// Classes returns the label set the tree was trained on, sorted.
func (dt *DecisionTree) Classes() []string {
	return append([]string(nil), dt.classes...)
}

func (dt *DecisionTree) FeatureCount() int {
	return dt.featureCount
}

// Train fits the tree. Labels are stored sorted, so the class indices in an
// artifact do not depend on row order.
func (dt *DecisionTree) Train(features [][]float64, labels []string) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyTraining
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d: %w: got %d, want %d", i, ErrFeatureCount, len(row), width)
		}
	}
	maxDepth := dt.maxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	classes, encoded := encodeLabels(labels)
	dt.classes = classes
	dt.featureCount = width
	dt.nodes = dt.buildNode(features, encoded, 0, maxDepth)
	return nil
}

// Predict walks the tree for one feature row and returns the leaf label and
// the share of training samples at that leaf carrying it.
func (dt *DecisionTree) Predict(features []float64) (string, float64, error) {
	if len(dt.nodes) == 0 {
		return "", 0, ErrNotTrained
	}
	if len(features) != dt.featureCount {
		return "", 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), dt.featureCount)
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return dt.classes[node.ClassLabel], node.Confidence, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return "", 0, ErrInvalidTree
		}
	}
	return "", 0, ErrInvalidTree
}

// Classify is Predict without the confidence.
func (dt *DecisionTree) Classify(features []float64) (string, error) {
	label, _, err := dt.Predict(features)
	return label, err
}

// Save writes the tree as an indented JSON artifact.
func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.MarshalIndent(treeArtifact{
		Version:      artifactVersion,
		FeatureCount: dt.featureCount,
		Classes:      dt.classes,
		Nodes:        dt.nodes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// Load reads an artifact written by Save and checks its node indices.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact treeArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if artifact.Version != artifactVersion {
		return fmt.Errorf("unsupported artifact version %d", artifact.Version)
	}
	if err := validateNodes(artifact); err != nil {
		return err
	}
	dt.featureCount = artifact.FeatureCount
	dt.classes = artifact.Classes
	dt.nodes = artifact.Nodes
	return nil
}

func validateNodes(a treeArtifact) error {
	if len(a.Nodes) == 0 {
		return ErrNotTrained
	}
	if len(a.Classes) == 0 || a.FeatureCount <= 0 {
		return ErrInvalidTree
	}
	for i, node := range a.Nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= len(a.Classes) {
				return fmt.Errorf("node %d: %w: class %d out of range", i, ErrInvalidTree, node.ClassLabel)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= a.FeatureCount {
			return fmt.Errorf("node %d: %w: feature %d out of range", i, ErrInvalidTree, node.FeatureIdx)
		}
		// children always follow their parent in the flat layout
		if node.LeftChild <= i || node.LeftChild >= len(a.Nodes) ||
			node.RightChild <= i || node.RightChild >= len(a.Nodes) {
			return fmt.Errorf("node %d: %w: bad child index", i, ErrInvalidTree)
		}
	}
	return nil
}

func encodeLabels(labels []string) ([]string, []int) {
	seen := make(map[string]struct{})
	for _, label := range labels {
		seen[label] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, label := range classes {
		index[label] = i
	}
	encoded := make([]int, len(labels))
	for i, label := range labels {
		encoded[i] = index[label]
	}
	return classes, encoded
}

func leaf(labels []int) TreeNode {
	label, count := majorityLabel(labels)
	confidence := 0.0
	if len(labels) > 0 {
		confidence = float64(count) / float64(len(labels))
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     true,
	}
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int, maxDepth int) []TreeNode {
	if depth >= maxDepth || isPure(labels) {
		return []TreeNode{leaf(labels)}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return []TreeNode{leaf(labels)}
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return []TreeNode{leaf(labels)}
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, maxDepth)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, maxDepth)

	root := leaf(labels)
	root.IsLeaf = false
	root.FeatureIdx = bestFeature
	root.Threshold = threshold
	root.LeftChild = 1
	root.RightChild = 1 + len(leftNodes)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shift(leftNodes, 1)...)
	nodes = append(nodes, shift(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shift rebases the child indices of a subtree placed at offset.
func shift(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// majorityLabel breaks ties toward the label that reached the count first.
func majorityLabel(labels []int) (int, int) {
	counts := make(map[int]int)
	bestLabel := 0
	bestCount := 0
	for _, label := range labels {
		counts[label]++
		if counts[label] > bestCount {
			bestCount = counts[label]
			bestLabel = label
		}
	}
	return bestLabel, bestCount
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
