package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model is a trained binary classifier loaded from a serialized artifact.
// Instances are immutable after load and safe for concurrent use.
type Model struct {
	ModelType string    `json:"model_type"`
	NFeatures int       `json:"n_features"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Threshold float64   `json:"threshold"`
}

func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("malformed model artifact %s: %w", path, err)
	}

	if model.NFeatures == 0 {
		model.NFeatures = len(model.Weights)
	}
	if model.NFeatures != len(model.Weights) {
		return nil, fmt.Errorf("model artifact %s: %d weights for %d features", path, len(model.Weights), model.NFeatures)
	}

	return &model, nil
}

// Predict scores each feature row and returns one label (0 or 1) per row,
// in input order. It never touches any shared state.
func (m *Model) Predict(rows [][]float64) ([]int, error) {
	labels := make([]int, len(rows))

	for i, row := range rows {
		if len(row) != m.NFeatures {
			return nil, fmt.Errorf("row %d has %d features, model %s expects %d", i, len(row), m.ModelType, m.NFeatures)
		}

		score := m.Bias
		for j, value := range row {
			score += m.Weights[j] * value
		}

		if score > m.Threshold {
			labels[i] = 1
		}
	}

	return labels, nil
}
