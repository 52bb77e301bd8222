// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSlogHandlerLevels(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{"debug", slog.LevelDebug, `"level":"debug"`},
		{"info", slog.LevelInfo, `"level":"info"`},
		{"warn", slog.LevelWarn, `"level":"warn"`},
		{"error", slog.LevelError, `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			zl := zerolog.New(&buf).Level(zerolog.TraceLevel)
			logger := slog.New(NewSlogHandlerWithLogger(zl))

			logger.Log(t.Context(), tt.level, "service event")

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %s, want level %s", buf.String(), tt.want)
			}
		})
	}
}

func TestSlogHandlerAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger := slog.New(NewSlogHandlerWithLogger(zl))

	logger.Info("restarting", "service", "registry-gc", "attempt", int64(3))

	out := buf.String()
	if !strings.Contains(out, `"service":"registry-gc"`) {
		t.Errorf("output missing string attr: %s", out)
	}
	if !strings.Contains(out, `"attempt":3`) {
		t.Errorf("output missing int attr: %s", out)
	}
}

func TestSlogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger := slog.New(NewSlogHandlerWithLogger(zl)).With("supervisor", "root")

	logger.Info("started")

	if !strings.Contains(buf.String(), `"supervisor":"root"`) {
		t.Errorf("WithAttrs fields missing: %s", buf.String())
	}
}

func TestSlogHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger := slog.New(NewSlogHandlerWithLogger(zl)).WithGroup("tree").WithGroup("api")

	logger.Info("event", "name", "http")

	if !strings.Contains(buf.String(), `"tree.api.name":"http"`) {
		t.Errorf("group prefix wrong: %s", buf.String())
	}
}

func TestSlogHandlerEnabled(t *testing.T) {
	zl := zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel)
	h := NewSlogHandlerWithLogger(zl)

	if h.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("Enabled(info) = true with warn-level logger, want false")
	}
	if !h.Enabled(t.Context(), slog.LevelError) {
		t.Error("Enabled(error) = false with warn-level logger, want true")
	}
}
