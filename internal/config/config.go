package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	mib = 1024 * 1024
	gib = 1024 * mib
)

// Config holds all service and pipeline settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Filesystem layout.
	BaseDir      string
	OutputDir    string
	RunsDir      string
	RasterDir    string
	DataInfoDir  string
	ShapeDir     string
	PrjFile      string
	BoundaryPath string
	CoveragePath string
	LockPath     string

	// Pipeline.
	AnalyzerBin     string
	AnalyzerTimeout time.Duration
	DWDBaseURL      string
	SkipDownload    bool
	DownloadWorkers int
	Lang            string

	// Upload and geometry ceilings.
	MaxUploadBytes          int64
	MaxZipFiles             int
	MaxZipUncompressedBytes int64
	MaxFeatures             int
	MaxVertices             int
	RunRetention            time.Duration
	MinFreeDiskBytes        uint64
	RateLimitPerMin         int
	RequireClamscan         bool
	LockTTL                 time.Duration
	AllowedOrigins          []string
	TrustProxyHeaders       bool

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Run lifecycle events.
	KafkaBrokers  []string
	KafkaRunTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	analyzerTimeout, err := parseDuration("ZCA_ANALYZER_TIMEOUT", "1h")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	var (
		maxUploadMB, maxZipFiles, maxZipMB, maxFeatures, maxVertices int
		retentionHours, minFreeGB, rateLimit, lockTTLSeconds         int
		downloadWorkers                                              int
	)
	for _, p := range []struct {
		name string
		def  int
		min  int
		dst  *int
	}{
		{"ZCA_MAX_UPLOAD_MB", 200, 1, &maxUploadMB},
		{"ZCA_MAX_ZIP_FILES", 2000, 1, &maxZipFiles},
		{"ZCA_MAX_ZIP_UNCOMPRESSED_MB", 1600, 1, &maxZipMB},
		{"ZCA_MAX_FEATURES", 2000, 1, &maxFeatures},
		{"ZCA_MAX_VERTICES", 200000, 1, &maxVertices},
		{"ZCA_RUN_RETENTION_HOURS", 48, 0, &retentionHours},
		{"ZCA_MIN_FREE_DISK_GB", 2, 0, &minFreeGB},
		{"ZCA_RATE_LIMIT_PER_MIN", 120, 0, &rateLimit},
		{"ZCA_LOCK_TTL_SECONDS", 4 * 60 * 60, 1, &lockTTLSeconds},
		{"ZCA_DOWNLOAD_WORKERS", 4, 1, &downloadWorkers},
	} {
		v, err := parseInt(p.name, p.def, p.min)
		if err != nil {
			return nil, err
		}
		*p.dst = v
	}

	baseDir := EnvOrDefault("ZCA_BASE_DIR", ".")
	outputDir := EnvOrDefault("ZCA_OUTPUT_DIR", filepath.Join(baseDir, "output"))

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        EnvOrDefault("HTTP_ADDR", ":8000"),
		LogLevel:        EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BaseDir:      baseDir,
		OutputDir:    outputDir,
		RunsDir:      filepath.Join(outputDir, "web_runs"),
		RasterDir:    EnvOrDefault("ZCA_RASTER_DIR", filepath.Join(baseDir, "climate_environment_CDC_grids_germany_annual")),
		DataInfoDir:  EnvOrDefault("ZCA_DATA_INFO_DIR", filepath.Join(baseDir, "data_info")),
		ShapeDir:     EnvOrDefault("ZCA_SHP_DIR", filepath.Join(baseDir, "shp")),
		PrjFile:      EnvOrDefault("ZCA_PRJ_FILE", filepath.Join(baseDir, "gk3.prj")),
		BoundaryPath: EnvOrDefault("ZCA_BOUNDARY_PATH", filepath.Join(baseDir, "germany_boundary", "german_boundary.shp")),
		CoveragePath: filepath.Join(outputDir, "data_coverage.geojson"),
		LockPath:     filepath.Join(outputDir, ".analysis.lock"),

		AnalyzerBin:     EnvOrDefault("ZCA_ANALYZER_BIN", "zca"),
		AnalyzerTimeout: analyzerTimeout,
		DWDBaseURL:      EnvOrDefault("ZCA_DWD_BASE_URL", "https://opendata.dwd.de/climate_environment/CDC/grids_germany/annual/"),
		SkipDownload:    parseBool(os.Getenv("ZCA_SKIP_DWD_DOWNLOAD")),
		DownloadWorkers: downloadWorkers,
		Lang:            NormalizeLang(os.Getenv("ZCA_LANG")),

		MaxUploadBytes:          int64(maxUploadMB) * mib,
		MaxZipFiles:             maxZipFiles,
		MaxZipUncompressedBytes: int64(maxZipMB) * mib,
		MaxFeatures:             maxFeatures,
		MaxVertices:             maxVertices,
		RunRetention:            time.Duration(retentionHours) * time.Hour,
		MinFreeDiskBytes:        uint64(minFreeGB) * gib,
		RateLimitPerMin:         rateLimit,
		RequireClamscan:         os.Getenv("ZCA_REQUIRE_CLAMSCAN") == "1",
		LockTTL:                 time.Duration(lockTTLSeconds) * time.Second,
		AllowedOrigins:          parseList(EnvOrDefault("ZCA_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		TrustProxyHeaders:       parseBool(os.Getenv("ZCA_TRUST_PROXY_HEADERS")),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		KafkaBrokers:  parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaRunTopic: EnvOrDefault("KAFKA_RUN_TOPIC", "zca-analysis-runs"),
	}

	if cfg.DWDBaseURL != "" && !strings.HasSuffix(cfg.DWDBaseURL, "/") {
		cfg.DWDBaseURL += "/"
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// EventsEnabled reports whether run events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaRunTopic != ""
}

// NormalizeLang maps a requested language to "en" or the default "de".
func NormalizeLang(lang string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "en") {
		return "en"
	}
	return "de"
}

// EnvOrDefault returns the value of key, or def when unset or empty.
func EnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
