// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package export pushes evaluation summaries and assembled feature rows to a
// PostgreSQL warehouse. Writes go through a circuit breaker and an optional
// rows-per-second limiter so a struggling warehouse degrades the export, not
// the pipeline that produced the data.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
)

// ErrExportDisabled is returned when the exporter is constructed without
// Enabled set.
var ErrExportDisabled = errors.New("export: disabled in configuration")

// psql builds statements with PostgreSQL dollar placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Exporter writes run artifacts to PostgreSQL.
type Exporter struct {
	db      *sqlx.DB
	cfg     config.ExportConfig
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
}

// New connects to the warehouse and prepares the breaker and limiter.
func New(cfg config.ExportConfig) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, ErrExportDisabled
	}

	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}

	e := &Exporter{db: db, cfg: cfg}
	e.breaker = newExportBreaker(cfg)
	if cfg.RowsPerSecond > 0 {
		burst := cfg.BatchSize
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSecond), burst)
	}

	logging.Info().
		Int("batch_size", cfg.BatchSize).
		Float64("rows_per_second", cfg.RowsPerSecond).
		Msg("Warehouse exporter connected")
	return e, nil
}

// newExportBreaker configures the circuit breaker: it opens after a 60%
// failure rate over at least 5 batches and publishes every state change as
// a gauge.
func newExportBreaker(cfg config.ExportConfig) *gobreaker.CircuitBreaker[any] {
	metrics.SetExportBreakerState(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "postgres-export",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Export circuit breaker state changed")
			metrics.SetExportBreakerState(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Close releases the warehouse connection pool.
func (e *Exporter) Close() error {
	return e.db.Close()
}

// EnsureSchema creates the warehouse tables when missing.
func (e *Exporter) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS pernocta_evaluations (
			run_id       TEXT        NOT NULL,
			model        TEXT        NOT NULL,
			status       TEXT        NOT NULL,
			weight       DOUBLE PRECISION NOT NULL,
			mae          DOUBLE PRECISION,
			rmse         DOUBLE PRECISION,
			r2           DOUBLE PRECISION,
			mape         DOUBLE PRECISION,
			within_10    DOUBLE PRECISION,
			within_20    DOUBLE PRECISION,
			test_rows    INTEGER     NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, model)
		)`,
		`CREATE TABLE IF NOT EXISTS pernocta_feature_rows (
			run_id     TEXT    NOT NULL,
			row_index  INTEGER NOT NULL,
			listing_id BIGINT  NOT NULL,
			vals       JSONB   NOT NULL,
			PRIMARY KEY (run_id, row_index)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure warehouse schema: %w", err)
		}
	}
	return nil
}

// ExportReport upserts one evaluation summary row per model in the report.
func (e *Exporter) ExportReport(ctx context.Context, report *models.EvaluationReport) error {
	query, args, err := buildReportUpsert(report)
	if err != nil {
		return err
	}

	_, execErr := e.breaker.Execute(func() (any, error) {
		_, err := e.db.ExecContext(ctx, query, args...)
		return nil, err
	})
	if execErr != nil {
		metrics.RecordExportBatch(batchOutcome(execErr))
		return fmt.Errorf("export report %s: %w", report.RunID, execErr)
	}

	metrics.RecordExportBatch("ok")
	logging.Info().
		Str("run_id", report.RunID).
		Int("models", len(report.Models)).
		Msg("Evaluation report exported")
	return nil
}

// ExportFeatures writes the assembled feature matrix in batches.
func (e *Exporter) ExportFeatures(ctx context.Context, runID string, m *models.FeatureMatrix) error {
	batchSize := e.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 500
	}

	start := time.Now()
	exported := 0
	for offset := 0; offset < m.NumRows(); offset += batchSize {
		end := offset + batchSize
		if end > m.NumRows() {
			end = m.NumRows()
		}

		if e.limiter != nil {
			if err := e.limiter.WaitN(ctx, end-offset); err != nil {
				return fmt.Errorf("export rate limit: %w", err)
			}
		}

		query, args, err := buildFeatureBatchInsert(runID, m, offset, end)
		if err != nil {
			return err
		}

		_, execErr := e.breaker.Execute(func() (any, error) {
			_, err := e.db.ExecContext(ctx, query, args...)
			return nil, err
		})
		if execErr != nil {
			metrics.RecordExportBatch(batchOutcome(execErr))
			return fmt.Errorf("export feature batch at row %d: %w", offset, execErr)
		}

		metrics.RecordExportBatch("ok")
		exported = end
	}

	logging.Info().
		Str("run_id", runID).
		Int("rows", exported).
		Dur("elapsed", time.Since(start)).
		Msg("Feature matrix exported")
	return nil
}

// batchOutcome maps an export error to a metrics label.
func batchOutcome(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "error"
}

// buildReportUpsert builds one multi-row upsert covering every model in the
// report. Metrics columns stay NULL for models that failed to train.
func buildReportUpsert(report *models.EvaluationReport) (string, []any, error) {
	if report == nil || len(report.Models) == 0 {
		return "", nil, fmt.Errorf("export: empty report")
	}

	builder := psql.Insert("pernocta_evaluations").
		Columns("run_id", "model", "status", "weight",
			"mae", "rmse", "r2", "mape", "within_10", "within_20",
			"test_rows", "generated_at")

	for _, mr := range report.Models {
		var mae, rmse, r2, mape, w10, w20 any
		if mr.Metrics != nil {
			mae, rmse, r2 = mr.Metrics.MAE, mr.Metrics.RMSE, mr.Metrics.R2
			mape, w10, w20 = mr.Metrics.MAPE, mr.Metrics.Within10Pct, mr.Metrics.Within20Pct
		}
		builder = builder.Values(report.RunID, mr.Name, string(mr.Status), mr.Weight,
			mae, rmse, r2, mape, w10, w20,
			report.TestRows, report.GeneratedAt)
	}

	builder = builder.Suffix(`ON CONFLICT (run_id, model) DO UPDATE SET
		status = EXCLUDED.status,
		weight = EXCLUDED.weight,
		mae = EXCLUDED.mae,
		rmse = EXCLUDED.rmse,
		r2 = EXCLUDED.r2,
		mape = EXCLUDED.mape,
		within_10 = EXCLUDED.within_10,
		within_20 = EXCLUDED.within_20,
		test_rows = EXCLUDED.test_rows,
		generated_at = EXCLUDED.generated_at`)

	return builder.ToSql()
}

// buildFeatureBatchInsert builds one insert for matrix rows [start, end).
// Row values ship as a JSON object keyed by column name so warehouse-side
// consumers are insulated from column order.
func buildFeatureBatchInsert(runID string, m *models.FeatureMatrix, start, end int) (string, []any, error) {
	builder := psql.Insert("pernocta_feature_rows").
		Columns("run_id", "row_index", "listing_id", "vals").
		Suffix(`ON CONFLICT (run_id, row_index) DO UPDATE SET
		listing_id = EXCLUDED.listing_id,
		vals = EXCLUDED.vals`)

	for i := start; i < end; i++ {
		row := m.RowVector(i)
		vals, err := json.Marshal(row)
		if err != nil {
			return "", nil, fmt.Errorf("marshal feature row %d: %w", i, err)
		}
		builder = builder.Values(runID, i, m.ListingIDs[i], string(vals))
	}

	return builder.ToSql()
}
