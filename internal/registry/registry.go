// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package registry persists trained models and their evaluation reports in
// BadgerDB. Each training run is stored under its UUID: the report and the
// serialized ensemble live as separate JSON values so that listing runs does
// not read model payloads.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pricing"
)

// Key layout. The index entry carries a small summary so run listings are a
// prefix scan over index keys only.
const (
	keyPrefixIndex  = "run:index:"
	keyPrefixReport = "run:report:"
	keyPrefixModel  = "run:model:"
)

var (
	// ErrRunNotFound is returned when no run exists for the given ID.
	ErrRunNotFound = errors.New("registry: run not found")

	// ErrNoModel is returned when a run has a report but no stored ensemble.
	ErrNoModel = errors.New("registry: run has no stored model")
)

// RunSummary is the listing entry for a stored training run.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	PrimaryMetric string    `json:"primary_metric"`
	BestModel     string    `json:"best_model"`
	TestRows      int       `json:"test_rows"`
	HasModel      bool      `json:"has_model"`
	CreatedAt     time.Time `json:"created_at"`
}

// Registry is a BadgerDB-backed store for training runs.
type Registry struct {
	db       *badger.DB
	inMemory bool
}

// Open opens (or creates) the registry database at cfg.Path. With
// cfg.InMemory set, the store lives in process memory only.
func Open(cfg config.RegistryConfig) (*Registry, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Model registry opened")

	return &Registry{db: db, inMemory: cfg.InMemory}, nil
}

// Close releases the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// SaveRun stores the evaluation report and, when non-nil, the ensemble
// snapshot for a run. The write is a single transaction so a run never
// appears in listings without its report.
func (r *Registry) SaveRun(report *models.EvaluationReport, snap *pricing.EnsembleSnapshot) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("registry: report with run ID required")
	}

	reportData, err := json.Marshal(report)
	if err != nil {
		metrics.RecordRegistrySave("error")
		return fmt.Errorf("marshal report: %w", err)
	}

	summary := RunSummary{
		RunID:         report.RunID,
		PrimaryMetric: report.PrimaryMetric,
		TestRows:      report.TestRows,
		HasModel:      snap != nil,
		CreatedAt:     report.GeneratedAt,
	}
	if len(report.Ranking) > 0 {
		summary.BestModel = report.Ranking[0]
	}
	indexData, err := json.Marshal(summary)
	if err != nil {
		metrics.RecordRegistrySave("error")
		return fmt.Errorf("marshal run summary: %w", err)
	}

	var modelData []byte
	if snap != nil {
		modelData, err = json.Marshal(snap)
		if err != nil {
			metrics.RecordRegistrySave("error")
			return fmt.Errorf("marshal ensemble: %w", err)
		}
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefixReport+report.RunID), reportData); err != nil {
			return err
		}
		if modelData != nil {
			if err := txn.Set([]byte(keyPrefixModel+report.RunID), modelData); err != nil {
				return err
			}
		}
		return txn.Set([]byte(keyPrefixIndex+report.RunID), indexData)
	})
	if err != nil {
		metrics.RecordRegistrySave("error")
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}

	metrics.RecordRegistrySave("ok")
	logging.Info().
		Str("run_id", report.RunID).
		Bool("has_model", snap != nil).
		Msg("Training run persisted")
	return nil
}

// LoadReport retrieves the evaluation report for a run.
func (r *Registry) LoadReport(runID string) (*models.EvaluationReport, error) {
	var report models.EvaluationReport
	err := r.get(keyPrefixReport+runID, &report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// LoadEnsemble restores the stored ensemble for a run, ready to predict.
func (r *Registry) LoadEnsemble(runID string) (*pricing.Ensemble, error) {
	var snap pricing.EnsembleSnapshot
	err := r.get(keyPrefixModel+runID, &snap)
	if errors.Is(err, ErrRunNotFound) {
		// Distinguish a missing run from a run saved without a model.
		if _, rerr := r.LoadReport(runID); rerr == nil {
			return nil, ErrNoModel
		}
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	ensemble, err := pricing.RestoreEnsemble(&snap)
	if err != nil {
		return nil, fmt.Errorf("restore ensemble %s: %w", runID, err)
	}
	return ensemble, nil
}

// DeleteRun removes a run's report, model, and index entry. Deleting an
// unknown run is not an error.
func (r *Registry) DeleteRun(runID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{keyPrefixReport, keyPrefixModel, keyPrefixIndex} {
			if err := txn.Delete([]byte(prefix + runID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns summaries of all stored runs, newest first.
func (r *Registry) ListRuns() ([]RunSummary, error) {
	var runs []RunSummary

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixIndex)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var summary RunSummary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, summary)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return strings.Compare(runs[i].RunID, runs[j].RunID) < 0
	})
	return runs, nil
}

// get reads and decodes one JSON value, mapping a missing key to
// ErrRunNotFound.
func (r *Registry) get(key string, out any) error {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	return nil
}

// RunGC reclaims value-log space. It loops until BadgerDB reports nothing
// left to rewrite. In-memory stores have no value log, so GC is a no-op.
func (r *Registry) RunGC(ratio float64) error {
	if r.inMemory {
		return nil
	}
	for {
		err := r.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
	metrics.RecordRegistryGC()
	return nil
}
