// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/database"
	"github.com/tomtom215/pernocta/internal/events"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/registry"
)

func testService(t *testing.T) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = ""
	cfg.Database.MaxMemory = "512MB"
	cfg.Database.Threads = 2
	cfg.Registry.InMemory = true
	cfg.Pipeline.Training.Forest.Trees = 10
	cfg.Pipeline.Training.Forest.MaxDepth = 5
	cfg.Pipeline.Training.Boosting.Rounds = 20

	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	return New(cfg, db, reg, events.NewHub(), nil)
}

// writeListingsCSV writes a synthetic Rio-area dataset where price tracks
// bedroom count, so the trained ensemble has real signal to learn.
func writeListingsCSV(t *testing.T, n int) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("id,latitude,longitude,price,room_type,accommodates,bedrooms,bathrooms," +
		"review_scores_rating,number_of_reviews,reviews_per_month,host_is_superhost," +
		"host_identity_verified,host_response_rate,host_since,calculated_host_listings_count," +
		"amenities,availability_30,availability_60,availability_90\n")

	rng := rand.New(rand.NewSource(11))
	for i := 1; i <= n; i++ {
		bedrooms := 1 + rng.Intn(4)
		price := 80 + 60*bedrooms + rng.Intn(40)
		lat := -23.0 - rng.Float64()
		lon := -43.2 - rng.Float64()
		fmt.Fprintf(&sb, `%d,%.5f,%.5f,%d,Entire home/apt,%d,%d,1,4.5,%d,1.2,t,f,95%%,2020-06-15,1,"[""Wifi"",""Kitchen""]",%d,30,60`+"\n",
			i, lat, lon, price, bedrooms*2, bedrooms, 5+rng.Intn(50), rng.Intn(30))
	}

	path := filepath.Join(t.TempDir(), "listings.csv")
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("write listings: %v", err)
	}
	return path
}

func writePOIsCSV(t *testing.T) string {
	t.Helper()

	csv := "id,latitude,longitude,category,name\n" +
		"1,-23.5,-43.6,subway,Central\n" +
		"2,-23.4,-43.8,beach,Praia\n" +
		"3,-23.6,-43.5,restaurant,Bistro\n"
	path := filepath.Join(t.TempDir(), "pois.csv")
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatalf("write pois: %v", err)
	}
	return path
}

func TestPipelineEndToEnd(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	load, err := s.LoadDataset(ctx, writeListingsCSV(t, 150), writePOIsCSV(t))
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if load.ListingStats.Accepted != 150 {
		t.Errorf("accepted = %d, want 150", load.ListingStats.Accepted)
	}
	if load.POIStats == nil || load.POIStats.Accepted != 3 {
		t.Errorf("poi stats = %+v", load.POIStats)
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.ListingCount != 150 || summary.POICount != 3 {
		t.Errorf("summary = %+v", summary)
	}

	assembled, err := s.AssembleFeatures(ctx)
	if err != nil {
		t.Fatalf("AssembleFeatures: %v", err)
	}
	if assembled.Rows != 150 || assembled.FeatureRunID == "" {
		t.Errorf("assembled = %+v", assembled)
	}
	if assembled.Columns[0] != "price" {
		t.Errorf("first column = %q, want price", assembled.Columns[0])
	}

	featureRuns, err := s.FeatureRuns(ctx)
	if err != nil {
		t.Fatalf("FeatureRuns: %v", err)
	}
	if len(featureRuns) != 1 || featureRuns[0] != assembled.FeatureRunID {
		t.Errorf("feature runs = %v", featureRuns)
	}

	// Empty featureRunID trains on the latest matrix.
	result, err := s.Train(ctx, "")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.RunID == "" || len(result.Report.Models) != 4 {
		t.Fatalf("result = runID %q, %d model reports", result.RunID, len(result.Report.Models))
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != result.RunID || !runs[0].HasModel {
		t.Errorf("runs = %+v", runs)
	}

	report, err := s.Report(result.RunID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.PrimaryMetric != "rmse" {
		t.Errorf("primary metric = %q", report.PrimaryMetric)
	}

	vec := models.FeatureVector{}
	for _, col := range assembled.Columns[1:] {
		vec[col] = 0
	}
	vec["bedrooms"] = 3
	vec["accommodates"] = 6
	price, err := s.Predict(ctx, result.RunID, vec)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if price <= 0 {
		t.Errorf("predicted price = %v, want positive", price)
	}
}

func TestPredictFromColdCache(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	if _, err := s.LoadDataset(ctx, writeListingsCSV(t, 120), ""); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	assembled, err := s.AssembleFeatures(ctx)
	if err != nil {
		t.Fatalf("AssembleFeatures: %v", err)
	}
	result, err := s.Train(ctx, assembled.FeatureRunID)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	// Drop the in-memory cache so Predict restores from the registry.
	s.ensembles.Clear()

	vec := models.FeatureVector{}
	for _, col := range assembled.Columns[1:] {
		vec[col] = 0
	}
	vec["bedrooms"] = 2
	if _, err := s.Predict(ctx, result.RunID, vec); err != nil {
		t.Fatalf("Predict after cache reset: %v", err)
	}

	if _, err := s.Predict(ctx, "unknown-run", vec); !errors.Is(err, registry.ErrRunNotFound) {
		t.Errorf("Predict(unknown) error = %v, want ErrRunNotFound", err)
	}
}

func TestStagesRequireData(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	if _, err := s.AssembleFeatures(ctx); !errors.Is(err, ErrNoDataset) {
		t.Errorf("AssembleFeatures error = %v, want ErrNoDataset", err)
	}
	if _, err := s.Train(ctx, ""); !errors.Is(err, ErrNoFeatureRun) {
		t.Errorf("Train error = %v, want ErrNoFeatureRun", err)
	}
	if _, err := s.Train(ctx, "missing-run"); !errors.Is(err, ErrNoFeatureRun) {
		t.Errorf("Train(missing) error = %v, want ErrNoFeatureRun", err)
	}
}

func TestMutatingStagesAreExclusive(t *testing.T) {
	s := testService(t)

	s.stageMu.Lock()
	defer s.stageMu.Unlock()

	if _, err := s.LoadDataset(context.Background(), "x.csv", ""); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("LoadDataset error = %v, want ErrPipelineBusy", err)
	}
	if _, err := s.AssembleFeatures(context.Background()); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("AssembleFeatures error = %v, want ErrPipelineBusy", err)
	}
	if _, err := s.Train(context.Background(), ""); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("Train error = %v, want ErrPipelineBusy", err)
	}
}
