// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package regressors

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pernocta/internal/config"
)

// Regressors serialize to JSON snapshots so trained models survive process
// restarts in the registry. A snapshot captures fitted state only; the
// training data never persists.

type nodeState struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

type treeState struct {
	Nodes []nodeState `json:"nodes"`
}

func (t *regressionTree) state() treeState {
	nodes := make([]nodeState, len(t.nodes))
	for i, n := range t.nodes {
		nodes[i] = nodeState{Feature: n.feature, Threshold: n.threshold, Left: n.left, Right: n.right, Value: n.value}
	}
	return treeState{Nodes: nodes}
}

func treeFromState(s treeState) *regressionTree {
	t := &regressionTree{nodes: make([]treeNode, len(s.Nodes))}
	for i, n := range s.Nodes {
		t.nodes[i] = treeNode{feature: n.Feature, threshold: n.Threshold, left: n.Left, right: n.Right, value: n.Value}
	}
	return t
}

type ridgeState struct {
	Alpha     float64   `json:"alpha"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
}

type forestState struct {
	Config   config.ForestConfig `json:"config"`
	Seed     int64               `json:"seed"`
	Features int                 `json:"features"`
	Trees    []treeState         `json:"trees"`
}

type boostingState struct {
	Config   config.BoostingConfig `json:"config"`
	Seed     int64                 `json:"seed"`
	Features int                   `json:"features"`
	Baseline float64               `json:"baseline"`
	Trees    []treeState           `json:"trees"`
}

// Marshal serializes a fitted regressor.
func Marshal(r Regressor) ([]byte, error) {
	switch m := r.(type) {
	case *Ridge:
		if !m.fitted {
			return nil, ErrNotFitted
		}
		return json.Marshal(ridgeState{
			Alpha: m.cfg.Alpha, Weights: m.weights, Intercept: m.intercept,
			Means: m.means, Scales: m.scales,
		})
	case *Forest:
		if !m.fitted {
			return nil, ErrNotFitted
		}
		trees := make([]treeState, len(m.trees))
		for i, t := range m.trees {
			trees[i] = t.state()
		}
		return json.Marshal(forestState{Config: m.cfg, Seed: m.seed, Features: m.features, Trees: trees})
	case *Boosting:
		if !m.fitted {
			return nil, ErrNotFitted
		}
		trees := make([]treeState, len(m.trees))
		for i, t := range m.trees {
			trees[i] = t.state()
		}
		return json.Marshal(boostingState{
			Config: m.cfg, Seed: m.seed, Features: m.features,
			Baseline: m.baseline, Trees: trees,
		})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRegressor, r)
	}
}

// Unmarshal restores a fitted regressor from its snapshot.
func Unmarshal(name string, data []byte) (Regressor, error) {
	switch name {
	case NameRidge:
		var s ridgeState
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal ridge: %w", err)
		}
		return &Ridge{
			cfg: config.RidgeConfig{Alpha: s.Alpha}, weights: s.Weights,
			intercept: s.Intercept, means: s.Means, scales: s.Scales, fitted: true,
		}, nil
	case NameRandomForest:
		var s forestState
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal forest: %w", err)
		}
		trees := make([]*regressionTree, len(s.Trees))
		for i, ts := range s.Trees {
			trees[i] = treeFromState(ts)
		}
		return &Forest{cfg: s.Config, seed: s.Seed, trees: trees, features: s.Features, fitted: true}, nil
	case NameGradientBoosting:
		var s boostingState
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal boosting: %w", err)
		}
		trees := make([]*regressionTree, len(s.Trees))
		for i, ts := range s.Trees {
			trees[i] = treeFromState(ts)
		}
		return &Boosting{
			cfg: s.Config, seed: s.Seed, trees: trees,
			features: s.Features, baseline: s.Baseline, fitted: true,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegressor, name)
	}
}
