package search

import (
	"context"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
)

// Model predicts one label per feature row.
type Model interface {
	Predict(ctx context.Context, X [][]float64) ([]int, error)
}

// Estimator trains a Model. Fit must not retain or mutate X and y.
type Estimator interface {
	Fit(ctx context.Context, X [][]float64, y []int) (Model, error)
}

// Factory builds a fresh estimator for one (configuration, fold) unit.
type Factory func(p forest.Params, seed int64) (Estimator, error)

// ForestFactory trains the in-process random forest.
func ForestFactory(p forest.Params, seed int64) (Estimator, error) {
	c, err := forest.New(p, seed)
	if err != nil {
		return nil, err
	}
	return forestEstimator{c: c}, nil
}

type forestEstimator struct {
	c *forest.Classifier
}

func (e forestEstimator) Fit(ctx context.Context, X [][]float64, y []int) (Model, error) {
	f, err := e.c.Fit(ctx, X, y)
	if err != nil {
		return nil, err
	}
	return f, nil
}
