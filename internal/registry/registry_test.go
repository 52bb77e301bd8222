// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package registry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pricing"
	"github.com/tomtom215/pernocta/internal/pricing/regressors"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(config.RegistryConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return r
}

func sampleReport(runID string, createdAt time.Time) *models.EvaluationReport {
	mae := 18.5
	return &models.EvaluationReport{
		RunID:         runID,
		PrimaryMetric: "rmse",
		Ranking:       []string{"ensemble", "ridge"},
		Models: []models.ModelReport{
			{
				Name:    "ridge",
				Status:  models.ModelTrained,
				Weight:  1,
				Metrics: &models.ModelMetrics{MAE: mae, RMSE: 24.1, R2: 0.82},
			},
		},
		TestRows:    40,
		GeneratedAt: createdAt,
	}
}

// trainedSnapshot fits a small two-member ensemble so the stored payloads
// are real model state, not fixtures.
func trainedSnapshot(t *testing.T) *pricing.EnsembleSnapshot {
	t.Helper()

	cfg := config.Default().Pipeline.Training
	cfg.Boosting.Rounds = 15
	cfg.Boosting.MaxDepth = 3

	rng := rand.New(rand.NewSource(7))
	n := 120
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.Float64() * 4
		b := rng.Float64() * 10
		X[i] = []float64{a, b}
		y[i] = 80 + 30*a - 5*b + rng.NormFloat64()
	}

	var trained []*pricing.TrainedModel
	columns := []string{"bedrooms", "distance_to_beach"}
	for _, name := range []string{regressors.NameRidge, regressors.NameGradientBoosting} {
		reg, err := regressors.New(name, cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if err := reg.Fit(context.Background(), X, y); err != nil {
			t.Fatalf("Fit(%s): %v", name, err)
		}
		trained = append(trained, &pricing.TrainedModel{Name: name, Regressor: reg, Columns: columns})
	}

	ensemble, err := pricing.NewEnsemble(trained)
	if err != nil {
		t.Fatalf("NewEnsemble: %v", err)
	}
	snap, err := ensemble.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestSaveAndLoadReport(t *testing.T) {
	r := openTestRegistry(t)

	report := sampleReport("run-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := r.SaveRun(report, nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := r.LoadReport("run-1")
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if got.RunID != "run-1" || got.PrimaryMetric != "rmse" || got.TestRows != 40 {
		t.Errorf("report = %+v", got)
	}
	if len(got.Models) != 1 || got.Models[0].Metrics == nil || got.Models[0].Metrics.MAE != 18.5 {
		t.Errorf("model metrics did not survive the round trip: %+v", got.Models)
	}
}

func TestLoadEnsembleRoundTrip(t *testing.T) {
	r := openTestRegistry(t)

	snap := trainedSnapshot(t)
	original, err := pricing.RestoreEnsemble(snap)
	if err != nil {
		t.Fatalf("RestoreEnsemble: %v", err)
	}

	report := sampleReport("run-ml", time.Now().UTC())
	if err := r.SaveRun(report, snap); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	loaded, err := r.LoadEnsemble("run-ml")
	if err != nil {
		t.Fatalf("LoadEnsemble: %v", err)
	}

	for _, row := range [][]float64{{1, 2}, {3.5, 0.4}, {0, 9.9}} {
		want, err := original.Predict(row)
		if err != nil {
			t.Fatal(err)
		}
		got, err := loaded.Predict(row)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("loaded ensemble predicts %v, want %v", got, want)
		}
	}
}

func TestLoadMissingRun(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.LoadReport("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LoadReport error = %v, want ErrRunNotFound", err)
	}
	if _, err := r.LoadEnsemble("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LoadEnsemble error = %v, want ErrRunNotFound", err)
	}
}

func TestLoadEnsembleWithoutModel(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.SaveRun(sampleReport("run-2", time.Now().UTC()), nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, err := r.LoadEnsemble("run-2"); !errors.Is(err, ErrNoModel) {
		t.Errorf("LoadEnsemble error = %v, want ErrNoModel", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	r := openTestRegistry(t)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		report := sampleReport(id, base.Add(time.Duration(i)*time.Hour))
		if err := r.SaveRun(report, nil); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}

	runs, err := r.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if runs[i].RunID != want {
			t.Errorf("runs[%d].RunID = %q, want %q", i, runs[i].RunID, want)
		}
	}
	if runs[0].BestModel != "ensemble" || runs[0].HasModel {
		t.Errorf("summary = %+v", runs[0])
	}
}

func TestDeleteRun(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.SaveRun(sampleReport("run-del", time.Now().UTC()), trainedSnapshot(t)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := r.DeleteRun("run-del"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := r.LoadReport("run-del"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("report still present after delete: %v", err)
	}
	runs, err := r.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("len(runs) = %d after delete, want 0", len(runs))
	}

	// Deleting an unknown run is not an error.
	if err := r.DeleteRun("never-existed"); err != nil {
		t.Errorf("DeleteRun(unknown): %v", err)
	}
}

func TestSaveRunRequiresRunID(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.SaveRun(nil, nil); err == nil {
		t.Error("nil report should fail")
	}
	if err := r.SaveRun(&models.EvaluationReport{}, nil); err == nil {
		t.Error("empty run ID should fail")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.RegistryConfig{Path: dir}

	r, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.SaveRun(sampleReport("run-disk", time.Now().UTC()), nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.LoadReport("run-disk")
	if err != nil {
		t.Fatalf("LoadReport after reopen: %v", err)
	}
	if got.RunID != "run-disk" {
		t.Errorf("RunID = %q", got.RunID)
	}
}

func TestGCServiceStopsOnCancel(t *testing.T) {
	r := openTestRegistry(t)
	svc := NewGCService(r, config.RegistryConfig{GCInterval: time.Millisecond, GCRatio: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GC service did not stop after cancel")
	}
}
