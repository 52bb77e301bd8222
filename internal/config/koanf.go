// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package config provides layered configuration loading for Pernocta.
//
// Configuration precedence (highest wins):
//
//  1. PERNOCTA_* environment variables
//  2. YAML config file (CONFIG_PATH or a default search path)
//  3. Struct defaults
//
// All pipeline constants (POI categories, amenity synonym map, holidays,
// grid size, trust weights, regressor hyperparameters) are configuration,
// not code: engines receive explicit config structs in their constructors.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pernocta/config.yaml",
	"/etc/pernocta/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces Pernocta's environment variables.
const envPrefix = "PERNOCTA_"

// LoadWithKoanf loads configuration with the defaults → file → env layering
// and validates the result. It is the only entry point main() should use;
// an error here aborts startup before any work runs.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: struct defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: optional YAML file
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority).
	// PERNOCTA_SERVER_PORT -> server.port
	// PERNOCTA_PIPELINE_TRAINING_SEED -> pipeline.training.seed
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps flat environment names onto nested config paths where
// the generic underscore-to-dot transform is ambiguous (multi-word section
// and key names).
var envMappings = map[string]string{
	"server_shutdown_timeout":  "server.shutdown_timeout",
	"server_cors_origins":      "server.cors_origins",
	"server_rate_limit":        "server.rate_limit",
	"database_max_memory":      "database.max_memory",
	"registry_sync_writes":     "registry.sync_writes",
	"registry_gc_interval":     "registry.gc_interval",
	"registry_gc_ratio":        "registry.gc_ratio",
	"registry_in_memory":       "registry.in_memory",
	"export_batch_size":        "export.batch_size",
	"export_rows_per_second":   "export.rows_per_second",
	"auth_jwt_secret":          "auth.jwt_secret",
	"auth_token_ttl":           "auth.token_ttl",
	"auth_basic_user":          "auth.basic_user",
	"auth_basic_password_hash": "auth.basic_password_hash",
	"auth_default_role":        "auth.default_role",
	"dataset_listings_path":    "dataset.listings_path",
	"dataset_pois_path":        "dataset.pois_path",
	"dataset_lat_min":          "dataset.lat_min",
	"dataset_lat_max":          "dataset.lat_max",
	"dataset_lon_min":          "dataset.lon_min",
	"dataset_lon_max":          "dataset.lon_max",
	"dataset_max_price":        "dataset.max_price",
	"dataset_max_rooms":        "dataset.max_rooms",
	"dataset_progress_every":   "dataset.progress_every",

	"pipeline_poi_categories":         "pipeline.poi_categories",
	"pipeline_grid_cell_size_deg":     "pipeline.grid_cell_size_deg",
	"pipeline_density_radius_km":      "pipeline.density_radius_km",
	"pipeline_distance_cap_km":        "pipeline.distance_cap_km",
	"pipeline_holidays":               "pipeline.holidays",
	"pipeline_holiday_tolerance_days": "pipeline.holiday_tolerance_days",

	"pipeline_trust_rating_scale":       "pipeline.trust.rating_scale",
	"pipeline_trust_min_reviews":        "pipeline.trust.min_reviews",
	"pipeline_trust_rating_weight":      "pipeline.trust.rating_weight",
	"pipeline_trust_volume_weight":      "pipeline.trust.volume_weight",
	"pipeline_trust_sufficiency_weight": "pipeline.trust.sufficiency_weight",

	"pipeline_host_superhost_weight": "pipeline.host.superhost_weight",
	"pipeline_host_response_weight":  "pipeline.host.response_weight",
	"pipeline_host_verified_weight":  "pipeline.host.verified_weight",
	"pipeline_host_tenure_weight":    "pipeline.host.tenure_weight",
	"pipeline_host_tenure_cap_years": "pipeline.host.tenure_cap_years",

	"pipeline_training_regressors":        "pipeline.training.regressors",
	"pipeline_training_held_out_fraction": "pipeline.training.held_out_fraction",
	"pipeline_training_seed":              "pipeline.training.seed",
	"pipeline_training_primary_metric":    "pipeline.training.primary_metric",
	"pipeline_training_regressor_timeout": "pipeline.training.regressor_timeout",
	"pipeline_training_optimize_weights":  "pipeline.training.optimize_weights",
	"pipeline_training_weight_trials":     "pipeline.training.weight_trials",

	"pipeline_training_ridge_alpha": "pipeline.training.ridge.alpha",

	"pipeline_training_random_forest_trees":            "pipeline.training.random_forest.trees",
	"pipeline_training_random_forest_max_depth":        "pipeline.training.random_forest.max_depth",
	"pipeline_training_random_forest_min_leaf":         "pipeline.training.random_forest.min_leaf",
	"pipeline_training_random_forest_feature_fraction": "pipeline.training.random_forest.feature_fraction",

	"pipeline_training_gradient_boosting_rounds":        "pipeline.training.gradient_boosting.rounds",
	"pipeline_training_gradient_boosting_learning_rate": "pipeline.training.gradient_boosting.learning_rate",
	"pipeline_training_gradient_boosting_max_depth":     "pipeline.training.gradient_boosting.max_depth",
	"pipeline_training_gradient_boosting_min_leaf":      "pipeline.training.gradient_boosting.min_leaf",
	"pipeline_training_gradient_boosting_subsample":     "pipeline.training.gradient_boosting.subsample",
}

// envTransformFunc maps PERNOCTA_SECTION_KEY names to koanf paths. Ambiguous
// names go through envMappings; the rest split on the first underscore.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Generic fallback: SECTION_KEY -> section.key
	if i := strings.Index(key, "_"); i > 0 {
		return key[:i] + "." + key[i+1:]
	}
	return key
}

// sliceConfigPaths lists paths that accept comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"pipeline.poi_categories",
	"pipeline.holidays",
	"pipeline.training.regressors",
}

// processSliceFields converts comma-separated env strings into slices.
// YAML values arrive as slices already and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
