// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package config

import (
	"time"
)

// Config is the root configuration for Pernocta.
//
// Configuration is layered (see LoadWithKoanf): struct defaults, then an
// optional YAML file, then PERNOCTA_* environment variables. Every engine
// constant lives here rather than as a package-level global so per-city and
// per-run overrides are plain data.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Registry RegistryConfig `koanf:"registry"`
	Export   ExportConfig   `koanf:"export"`
	Auth     AuthConfig     `koanf:"auth"`
	Dataset  DatasetConfig  `koanf:"dataset"`
	Pipeline PipelineConfig `koanf:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins for the dashboard. Empty means
	// same-origin only.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit is the per-IP request budget per minute for API routes.
	RateLimit int `koanf:"rate_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds the embedded DuckDB analytical store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" keeps the store
	// in-process only, which the tests use.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// RegistryConfig holds the BadgerDB model registry settings.
type RegistryConfig struct {
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio"`
	InMemory   bool          `koanf:"in_memory"` // tests only
}

// ExportConfig holds the optional PostgreSQL warehouse export settings.
type ExportConfig struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn"`

	// BatchSize is the number of feature rows per INSERT batch.
	BatchSize int `koanf:"batch_size"`

	// RowsPerSecond throttles export writes so a struggling warehouse
	// cannot stall a run. 0 disables throttling.
	RowsPerSecond float64 `koanf:"rows_per_second"`

	// Breaker settings follow gobreaker semantics.
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// AuthMode selects how API requests are authenticated.
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeBasic  AuthMode = "basic"
)

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Mode AuthMode `koanf:"mode" validate:"oneof=none bearer basic"`

	// JWTSecret signs bearer tokens in bearer mode.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL bounds bearer token lifetime.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// BasicUser and BasicPasswordHash (bcrypt) authenticate basic mode.
	BasicUser         string `koanf:"basic_user"`
	BasicPasswordHash string `koanf:"basic_password_hash"`

	// DefaultRole is assigned to authenticated principals without an
	// explicit role claim. One of admin, operator, viewer.
	DefaultRole string `koanf:"default_role" validate:"oneof=admin operator viewer"`
}

// DatasetConfig holds ingest and cleaning settings.
type DatasetConfig struct {
	ListingsPath string `koanf:"listings_path"`
	POIsPath     string `koanf:"pois_path"`

	// Coordinate bounds reject rows geocoded outside the target region.
	// Defaults cover Brazil, matching the bundled city datasets.
	LatMin float64 `koanf:"lat_min" validate:"latitude"`
	LatMax float64 `koanf:"lat_max" validate:"latitude"`
	LonMin float64 `koanf:"lon_min" validate:"longitude"`
	LonMax float64 `koanf:"lon_max" validate:"longitude"`

	// MaxPrice rejects gross outliers; prices are nightly, minor-unit-free.
	MaxPrice float64 `koanf:"max_price"`

	// MaxRooms rejects implausible bedroom/bathroom counts.
	MaxRooms float64 `koanf:"max_rooms"`

	// ProgressEvery controls ingest progress log cadence (rows).
	ProgressEvery int `koanf:"progress_every"`
}

// PipelineConfig holds every feature-engineering and training constant.
type PipelineConfig struct {
	// POICategories defines the distance/density column contract. Categories
	// with zero POIs loaded still emit columns so the contract is stable
	// across cities.
	POICategories []string `koanf:"poi_categories" validate:"min=1"`

	// GridCellSizeDeg is the angular size of aggregation cells.
	GridCellSizeDeg float64 `koanf:"grid_cell_size_deg" validate:"gt=0"`

	// DensityRadiusKm is the radius for POI density counts.
	DensityRadiusKm float64 `koanf:"density_radius_km" validate:"gt=0"`

	// DistanceCapKm bounds nearest-POI searches. Listings with no POI of a
	// category inside the cap receive the cap itself as a documented
	// sentinel, never zero.
	DistanceCapKm float64 `koanf:"distance_cap_km" validate:"gt=0"`

	// Holidays are "MM-DD" dates; HolidayToleranceDays widens each into a
	// window on both sides.
	Holidays             []string `koanf:"holidays" validate:"dive,mmdd"`
	HolidayToleranceDays int      `koanf:"holiday_tolerance_days" validate:"min=0"`

	Trust    TrustConfig    `koanf:"trust"`
	Host     HostConfig     `koanf:"host"`
	Amenity  AmenityConfig  `koanf:"amenity"`
	Training TrainingConfig `koanf:"training"`
}

// TrustConfig weights the listing trust score components. The three weights
// must sum to 1.
type TrustConfig struct {
	RatingScale       float64 `koanf:"rating_scale" validate:"gt=0"`
	MinReviews        int     `koanf:"min_reviews" validate:"min=1"`
	RatingWeight      float64 `koanf:"rating_weight" validate:"gte=0"`
	VolumeWeight      float64 `koanf:"volume_weight" validate:"gte=0"`
	SufficiencyWeight float64 `koanf:"sufficiency_weight" validate:"gte=0"`
}

// HostConfig weights the host-quality score components. The four weights
// must sum to 1.
type HostConfig struct {
	SuperhostWeight float64 `koanf:"superhost_weight" validate:"gte=0"`
	ResponseWeight  float64 `koanf:"response_weight" validate:"gte=0"`
	VerifiedWeight  float64 `koanf:"verified_weight" validate:"gte=0"`
	TenureWeight    float64 `koanf:"tenure_weight" validate:"gte=0"`
	TenureCapYears  float64 `koanf:"tenure_cap_years" validate:"gt=0"`
}

// AmenityConfig maps amenity categories to synonym lists and weights the
// aggregate amenity score. Category weights must sum to 1 so the score stays
// in [0,1].
type AmenityConfig struct {
	Categories map[string][]string `koanf:"categories"`
	Weights    map[string]float64  `koanf:"weights"`
}

// TrainingConfig holds split, seed, and regressor settings.
type TrainingConfig struct {
	// Regressors lists the regressor names to train. Unknown names are a
	// configuration error, not silently skipped.
	Regressors []string `koanf:"regressors" validate:"min=1"`

	// TargetColumn names the column the regressors predict. Empty falls
	// back to the assembler's target column.
	TargetColumn string `koanf:"target_column"`

	HeldOutFraction float64 `koanf:"held_out_fraction" validate:"gt=0,lt=1"`
	Seed            int64   `koanf:"seed"`

	// PrimaryMetric ranks the evaluation report. mae, rmse, mape rank
	// ascending; r2, within_10pct, within_20pct rank descending.
	PrimaryMetric string `koanf:"primary_metric" validate:"oneof=mae rmse r2 mape within_10pct within_20pct"`

	// RegressorTimeout wraps each regressor's fit; expiry is recorded as a
	// training failure. 0 disables the timeout.
	RegressorTimeout time.Duration `koanf:"regressor_timeout"`

	// OptimizeWeights enables seeded random-search ensemble weight tuning
	// scored by validation MAE; otherwise weights are uniform.
	OptimizeWeights bool `koanf:"optimize_weights"`
	WeightTrials    int  `koanf:"weight_trials" validate:"min=1"`

	Ridge    RidgeConfig    `koanf:"ridge"`
	Forest   ForestConfig   `koanf:"random_forest"`
	Boosting BoostingConfig `koanf:"gradient_boosting"`
}

// RidgeConfig holds ridge regression hyperparameters.
type RidgeConfig struct {
	Alpha float64 `koanf:"alpha" validate:"gte=0"`
}

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	Trees           int     `koanf:"trees" validate:"min=1"`
	MaxDepth        int     `koanf:"max_depth" validate:"min=1"`
	MinLeaf         int     `koanf:"min_leaf" validate:"min=1"`
	FeatureFraction float64 `koanf:"feature_fraction" validate:"gt=0,lte=1"`
}

// BoostingConfig holds gradient boosting hyperparameters.
type BoostingConfig struct {
	Rounds       int     `koanf:"rounds" validate:"min=1"`
	LearningRate float64 `koanf:"learning_rate" validate:"gt=0"`
	MaxDepth     int     `koanf:"max_depth" validate:"min=1"`
	MinLeaf      int     `koanf:"min_leaf" validate:"min=1"`
	Subsample    float64 `koanf:"subsample" validate:"gt=0,lte=1"`
}

// Default returns the built-in configuration: the base layer that config
// files and environment variables override.
func Default() *Config { return defaultConfig() }

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8976,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     nil,
			RateLimit:       300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/pernocta.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Registry: RegistryConfig{
			Path:       "/data/registry",
			SyncWrites: false,
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Export: ExportConfig{
			Enabled:            false,
			DSN:                "",
			BatchSize:          500,
			RowsPerSecond:      2000,
			BreakerMaxRequests: 3,
			BreakerInterval:    60 * time.Second,
			BreakerTimeout:     30 * time.Second,
		},
		Auth: AuthConfig{
			Mode:        AuthModeNone,
			TokenTTL:    24 * time.Hour,
			DefaultRole: "viewer",
		},
		Dataset: DatasetConfig{
			LatMin:        -33.0,
			LatMax:        5.0,
			LonMin:        -74.0,
			LonMax:        -34.0,
			MaxPrice:      10000,
			MaxRooms:      10,
			ProgressEvery: 5000,
		},
		Pipeline: PipelineConfig{
			POICategories: []string{
				"subway", "bus_station", "tourist_attraction", "beach",
				"viewpoint", "museum", "park", "restaurant", "bar", "cafe",
				"supermarket", "hospital", "shopping_mall",
			},
			GridCellSizeDeg: 0.01,
			DensityRadiusKm: 1.0,
			DistanceCapKm:   10.0,
			Holidays: []string{
				"01-01", "04-21", "05-01", "09-07",
				"10-12", "11-02", "11-15", "12-25",
			},
			HolidayToleranceDays: 1,
			Trust: TrustConfig{
				RatingScale:       5.0,
				MinReviews:        5,
				RatingWeight:      0.4,
				VolumeWeight:      0.3,
				SufficiencyWeight: 0.3,
			},
			Host: HostConfig{
				SuperhostWeight: 0.4,
				ResponseWeight:  0.25,
				VerifiedWeight:  0.2,
				TenureWeight:    0.15,
				TenureCapYears:  5.0,
			},
			Amenity: AmenityConfig{
				Categories: map[string][]string{
					"essential": {
						"Wifi", "Internet", "Wireless Internet", "Kitchen",
						"Air conditioning", "Heating", "TV", "Cable TV",
						"Hot water",
					},
					"premium": {
						"Pool", "Swimming pool", "Gym", "Elevator", "Doorman",
						"Free parking", "Washer", "Dryer",
					},
					"work_friendly": {
						"Laptop friendly workspace", "Desk",
						"Ethernet connection", "Printer",
					},
				},
				Weights: map[string]float64{
					"essential":     0.3,
					"premium":       0.5,
					"work_friendly": 0.2,
				},
			},
			Training: TrainingConfig{
				Regressors:       []string{"ridge", "random_forest", "gradient_boosting"},
				TargetColumn:     "price",
				HeldOutFraction:  0.2,
				Seed:             42,
				PrimaryMetric:    "rmse",
				RegressorTimeout: 0,
				OptimizeWeights:  false,
				WeightTrials:     100,
				Ridge:            RidgeConfig{Alpha: 1.0},
				Forest: ForestConfig{
					Trees:           100,
					MaxDepth:        12,
					MinLeaf:         3,
					FeatureFraction: 0.7,
				},
				Boosting: BoostingConfig{
					Rounds:       300,
					LearningRate: 0.1,
					MaxDepth:     6,
					MinLeaf:      5,
					Subsample:    1.0,
				},
			},
		},
	}
}
