// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pernocta/internal/pricing/regressors"
)

// EnsembleSnapshot is the persisted form of a trained ensemble: member
// snapshots plus weights and the shared column contract.
type EnsembleSnapshot struct {
	Columns []string        `json:"columns"`
	Weights []float64       `json:"weights"`
	Models  []ModelSnapshot `json:"models"`
}

// ModelSnapshot is one persisted member model.
type ModelSnapshot struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot serializes the ensemble for the registry.
func (e *Ensemble) Snapshot() (*EnsembleSnapshot, error) {
	snap := &EnsembleSnapshot{
		Columns: e.Columns,
		Weights: e.Weights,
		Models:  make([]ModelSnapshot, len(e.Models)),
	}
	for i, m := range e.Models {
		payload, err := regressors.Marshal(m.Regressor)
		if err != nil {
			return nil, fmt.Errorf("snapshot model %s: %w", m.Name, err)
		}
		snap.Models[i] = ModelSnapshot{Name: m.Name, Payload: payload}
	}
	return snap, nil
}

// RestoreEnsemble rebuilds a trained ensemble from its snapshot.
func RestoreEnsemble(snap *EnsembleSnapshot) (*Ensemble, error) {
	if len(snap.Models) < 2 {
		return nil, fmt.Errorf("%w: snapshot has %d", ErrInsufficientModels, len(snap.Models))
	}
	if len(snap.Weights) != len(snap.Models) {
		return nil, fmt.Errorf("%w: %d weights for %d models", ErrWeightCount, len(snap.Weights), len(snap.Models))
	}

	trained := make([]*TrainedModel, len(snap.Models))
	for i, ms := range snap.Models {
		reg, err := regressors.Unmarshal(ms.Name, ms.Payload)
		if err != nil {
			return nil, fmt.Errorf("restore model %s: %w", ms.Name, err)
		}
		trained[i] = &TrainedModel{Name: ms.Name, Regressor: reg, Columns: snap.Columns}
	}

	e, err := NewEnsemble(trained)
	if err != nil {
		return nil, err
	}
	if err := e.SetWeights(snap.Weights); err != nil {
		return nil, err
	}
	return e, nil
}
