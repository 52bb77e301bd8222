// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pernocta/internal/authz"
	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/database"
	"github.com/tomtom215/pernocta/internal/events"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pipeline"
	"github.com/tomtom215/pernocta/internal/pricing"
	"github.com/tomtom215/pernocta/internal/registry"
)

// fakeService provides canned pipeline responses for handler tests.
type fakeService struct {
	busy       bool
	loadResult *pipeline.LoadResult
	report     *models.EvaluationReport
	price      float64
}

func (f *fakeService) LoadDataset(_ context.Context, listingsPath, _ string) (*pipeline.LoadResult, error) {
	if f.busy {
		return nil, pipeline.ErrPipelineBusy
	}
	if strings.Contains(listingsPath, "missing") {
		return nil, fmt.Errorf("open %s: no such file", listingsPath)
	}
	return f.loadResult, nil
}

func (f *fakeService) Summary(context.Context) (*database.DatasetSummary, error) {
	return &database.DatasetSummary{ListingCount: 100, POICount: 5, AvgPrice: 300}, nil
}

func (f *fakeService) AssembleFeatures(context.Context) (*pipeline.AssembleResult, error) {
	if f.busy {
		return nil, pipeline.ErrPipelineBusy
	}
	return &pipeline.AssembleResult{FeatureRunID: "feat-1", Rows: 100, Columns: []string{"price", "bedrooms"}}, nil
}

func (f *fakeService) FeatureRuns(context.Context) ([]string, error) {
	return []string{"feat-1"}, nil
}

func (f *fakeService) Train(context.Context, string) (*pricing.TrainResult, error) {
	if f.busy {
		return nil, pipeline.ErrPipelineBusy
	}
	return &pricing.TrainResult{RunID: f.report.RunID, Report: f.report}, nil
}

func (f *fakeService) Runs() ([]registry.RunSummary, error) {
	return []registry.RunSummary{{RunID: f.report.RunID, PrimaryMetric: "rmse", HasModel: true}}, nil
}

func (f *fakeService) Report(runID string) (*models.EvaluationReport, error) {
	if runID != f.report.RunID {
		return nil, registry.ErrRunNotFound
	}
	return f.report, nil
}

func (f *fakeService) Predict(_ context.Context, runID string, _ models.FeatureVector) (float64, error) {
	if runID != f.report.RunID {
		return 0, registry.ErrRunNotFound
	}
	return f.price, nil
}

func newFakeService() *fakeService {
	return &fakeService{
		loadResult: &pipeline.LoadResult{},
		report: &models.EvaluationReport{
			RunID:         "run-7",
			PrimaryMetric: "rmse",
			Ranking:       []string{"ensemble"},
			TestRows:      20,
			GeneratedAt:   time.Now().UTC(),
		},
		price: 245.5,
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, svc PipelineService) http.Handler {
	t.Helper()

	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	enforcer, err := authz.NewEnforcer(cfg.Auth.DefaultRole)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	return NewRouter(cfg, NewHandler(svc, nil), auth, enforcer, events.NewHub())
}

func openRouter(t *testing.T, svc PipelineService) http.Handler {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	return newTestRouter(t, cfg, svc)
}

// doJSON performs a request and decodes the envelope.
func doJSON(t *testing.T, handler http.Handler, method, path, body string, header http.Header) (*httptest.ResponseRecorder, *models.APIResponse) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var envelope models.APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope (%d): %v\n%s", rec.Code, err, rec.Body.String())
		}
	}
	return rec, &envelope
}

func TestHealthEndpoints(t *testing.T) {
	router := openRouter(t, newFakeService())

	rec, env := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Errorf("healthz = %d %q", rec.Code, env.Status)
	}

	rec, _ = doJSON(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	t.Run("readiness failure", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.RateLimit = 0
		auth, _ := NewAuthenticator(cfg.Auth)
		enforcer, _ := authz.NewEnforcer("")
		h := NewHandler(newFakeService(), func(context.Context) error {
			return errors.New("store down")
		})
		router := NewRouter(cfg, h, auth, enforcer, events.NewHub())

		rec, env := doJSON(t, router, http.MethodGet, "/readyz", "", nil)
		if rec.Code != http.StatusServiceUnavailable || env.Error == nil {
			t.Errorf("readyz = %d %+v", rec.Code, env.Error)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := openRouter(t, newFakeService())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pernocta_") {
		t.Error("metrics output missing pernocta collectors")
	}
}

func TestAnonymousRoleEnforcement(t *testing.T) {
	router := openRouter(t, newFakeService())

	// Default viewer role: reads pass, writes are forbidden.
	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/runs", "", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Errorf("GET /runs = %d %q", rec.Code, env.Status)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/train", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST /train anonymous = %d, want 403", rec.Code)
	}
	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/dataset/load", `{"listings_path":"x.csv"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST /dataset/load anonymous = %d, want 403", rec.Code)
	}
}

func TestBearerAuthFlow(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	cfg.Auth.Mode = config.AuthModeBearer
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.BasicUser = "ops"
	cfg.Auth.DefaultRole = authz.RoleAdmin
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Auth.BasicPasswordHash = string(hash)

	router := newTestRouter(t, cfg, newFakeService())

	t.Run("bad credentials rejected", func(t *testing.T) {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"ops","password":"wrong"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("login = %d, want 401", rec.Code)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/runs", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET /runs without token = %d, want 401", rec.Code)
		}
	})

	t.Run("login and train", func(t *testing.T) {
		rec, env := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"ops","password":"hunter2hunter2"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("login = %d: %+v", rec.Code, env.Error)
		}
		data := env.Data.(map[string]any)
		token, _ := data["token"].(string)
		if token == "" {
			t.Fatal("no token in login response")
		}

		header := http.Header{"Authorization": []string{"Bearer " + token}}
		rec, env = doJSON(t, router, http.MethodPost, "/api/v1/train", "{}", header)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /train = %d: %+v", rec.Code, env.Error)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer not.a.token"}}
		rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/runs", "", header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET /runs with garbage token = %d, want 401", rec.Code)
		}
	})
}

func TestDatasetLoadValidation(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	cfg.Auth.DefaultRole = authz.RoleAdmin // skip RBAC friction for handler tests
	router := newTestRouter(t, cfg, newFakeService())

	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/dataset/load", `{}`, nil)
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != codeValidation {
		t.Errorf("load without path = %d %+v", rec.Code, env.Error)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/api/v1/dataset/load", `{"listings_path":"missing.csv"}`, nil)
	if rec.Code != http.StatusBadRequest || env.Error.Code != codeDataset {
		t.Errorf("load missing file = %d %+v", rec.Code, env.Error)
	}
}

func TestBusyReturnsConflict(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	cfg.Auth.DefaultRole = authz.RoleAdmin
	svc := newFakeService()
	svc.busy = true
	router := newTestRouter(t, cfg, svc)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/v1/dataset/load", `{"listings_path":"x.csv"}`},
		{http.MethodPost, "/api/v1/features/assemble", ""},
		{http.MethodPost, "/api/v1/train", ""},
	} {
		rec, env := doJSON(t, router, tc.method, tc.path, tc.body, nil)
		if rec.Code != http.StatusConflict || env.Error.Code != codeBusy {
			t.Errorf("%s = %d %+v, want 409 %s", tc.path, rec.Code, env.Error, codeBusy)
		}
	}
}

func TestRunEndpoints(t *testing.T) {
	router := openRouter(t, newFakeService())

	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/runs/run-7", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run detail = %d", rec.Code)
	}
	detail := env.Data.(map[string]any)
	if detail["run_id"] != "run-7" {
		t.Errorf("run detail data = %v", detail)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/runs/nope", "", nil)
	if rec.Code != http.StatusNotFound || env.Error.Code != codeNotFound {
		t.Errorf("unknown run = %d %+v", rec.Code, env.Error)
	}
}

func TestPredictEndpoint(t *testing.T) {
	router := openRouter(t, newFakeService())

	body := `{"features":{"bedrooms":2,"distance_to_beach":0.4}}`
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/runs/run-7/predict", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict = %d: %+v", rec.Code, env.Error)
	}
	data := env.Data.(map[string]any)
	if data["price"] != 245.5 {
		t.Errorf("price = %v", data["price"])
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/runs/run-7/predict", `{"features":{}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("predict without features = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/runs/other/predict", body, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("predict unknown run = %d, want 404", rec.Code)
	}
}
