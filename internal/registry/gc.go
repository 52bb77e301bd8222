// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package registry

import (
	"context"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
)

// GCService runs periodic BadgerDB value-log garbage collection for the
// registry. It implements suture.Service and is meant to run under the
// application's supervision tree.
type GCService struct {
	registry *Registry
	interval time.Duration
	ratio    float64
}

// NewGCService creates a GC service for the given registry.
func NewGCService(r *Registry, cfg config.RegistryConfig) *GCService {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ratio := cfg.GCRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &GCService{registry: r, interval: interval, ratio: ratio}
}

// Serve implements suture.Service. It blocks until the context is canceled,
// running one GC pass per interval. GC failures are logged and do not stop
// the service; value-log space is reclaimed on a later pass.
func (s *GCService) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Float64("ratio", s.ratio).
		Msg("Registry GC service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.registry.RunGC(s.ratio); err != nil {
				logging.Warn().Err(err).Msg("Registry value-log GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor log messages.
func (s *GCService) String() string {
	return "registry-gc"
}
