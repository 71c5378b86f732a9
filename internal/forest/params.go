// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package forest trains random forest classifiers over per-voxel feature
// vectors.
package forest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Hyperparameter names, shared by the grid file, the results table and the
// remote trainer protocol.
const (
	ParamMaxDepth        = "max_depth"
	ParamMaxFeatures     = "max_features"
	ParamMinSamplesLeaf  = "min_samples_leaf"
	ParamMinSamplesSplit = "min_samples_split"
	ParamNEstimators     = "n_estimators"
)

// ParamNames lists the hyperparameters in canonical (alphabetical) order.
var ParamNames = []string{ParamMaxDepth, ParamMaxFeatures, ParamMinSamplesLeaf, ParamMinSamplesSplit, ParamNEstimators}

// Feature sampling strategies.
const (
	FeaturesSqrt = "sqrt"
	FeaturesLog2 = "log2"
	FeaturesAll  = "all"
)

// Params configures one random forest.
type Params struct {
	NEstimators     int
	MaxDepth        *int // nil grows trees until leaves are pure
	MaxFeatures     string
	MinSamplesSplit int
	MinSamplesLeaf  int
}

// DefaultParams mirrors the usual random forest defaults.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxFeatures:     FeaturesSqrt,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

// ErrInvalidParams is wrapped by Validate failures.
var ErrInvalidParams = errors.New("invalid forest parameters")

// Validate checks every field.
func (p Params) Validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidParams, ParamNEstimators, p.NEstimators)
	case p.MaxDepth != nil && *p.MaxDepth < 1:
		return fmt.Errorf("%w: %s must be >= 1 or unset, got %d", ErrInvalidParams, ParamMaxDepth, *p.MaxDepth)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("%w: %s must be >= 2, got %d", ErrInvalidParams, ParamMinSamplesSplit, p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidParams, ParamMinSamplesLeaf, p.MinSamplesLeaf)
	}
	switch p.MaxFeatures {
	case FeaturesSqrt, FeaturesLog2, FeaturesAll:
	default:
		return fmt.Errorf("%w: %s must be one of sqrt, log2, all, got %q", ErrInvalidParams, ParamMaxFeatures, p.MaxFeatures)
	}
	return nil
}

// Values renders the parameters keyed by name. An unlimited depth renders as
// "None", the spelling used by result tables produced elsewhere in the
// benchmark.
func (p Params) Values() map[string]string {
	depth := "None"
	if p.MaxDepth != nil {
		depth = strconv.Itoa(*p.MaxDepth)
	}
	return map[string]string{
		ParamMaxDepth:        depth,
		ParamMaxFeatures:     p.MaxFeatures,
		ParamMinSamplesLeaf:  strconv.Itoa(p.MinSamplesLeaf),
		ParamMinSamplesSplit: strconv.Itoa(p.MinSamplesSplit),
		ParamNEstimators:     strconv.Itoa(p.NEstimators),
	}
}

// ParseValues is the inverse of Values.
func ParseValues(values map[string]string) (Params, error) {
	p := DefaultParams()
	for name, raw := range values {
		var err error
		switch name {
		case ParamMaxDepth:
			if raw == "None" || raw == "" {
				p.MaxDepth = nil
				continue
			}
			var d int
			d, err = strconv.Atoi(raw)
			p.MaxDepth = &d
		case ParamMaxFeatures:
			p.MaxFeatures = raw
		case ParamMinSamplesLeaf:
			p.MinSamplesLeaf, err = strconv.Atoi(raw)
		case ParamMinSamplesSplit:
			p.MinSamplesSplit, err = strconv.Atoi(raw)
		case ParamNEstimators:
			p.NEstimators, err = strconv.Atoi(raw)
		default:
			return Params{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParams, name)
		}
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidParams, name, raw, err)
		}
	}
	return p, p.Validate()
}

// String renders the parameters in canonical order.
func (p Params) String() string {
	v := p.Values()
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range ParamNames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name + ": " + v[name])
	}
	b.WriteByte('}')
	return b.String()
}

// Depth is a helper for building Params literals.
func Depth(d int) *int {
	return &d
}
