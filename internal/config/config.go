package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Route sources understood by ROUTE_SOURCE
const (
	SourceCSV      = "csv"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config holds environment configuration shared by the commands
type Config struct {
	// Data files
	DataDir           string
	RoutesCSV         string
	CitiesCSV         string
	OperatorColorsCSV string
	GeometryDir       string
	MapsDir           string
	SettingsPath      string

	// Route source
	RouteSource       string
	DatabasePath      string
	DatabaseURL       string
	GeometryCacheSize int

	// Data refresh
	DataRefreshDays   int
	OperatorColorsURL string
	CitiesURL         string

	// API server
	Port              string
	AllowedOrigins    []string
	RetentionDuration time.Duration

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	cfg := &Config{
		// Data files
		DataDir:      getEnv("DATA_DIR", "data"),
		GeometryDir:  getEnv("GEOMETRY_DIR", "geometry"),
		MapsDir:      getEnv("MAPS_DIR", "maps"),
		SettingsPath: getEnv("RENDER_SETTINGS", "busmap.yaml"),

		// Route source
		RouteSource:       strings.ToLower(getEnv("ROUTE_SOURCE", SourceCSV)),
		DatabasePath:      getEnv("SQLITE_DATABASE", "data/busmap.db"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		GeometryCacheSize: getEnvInt("GEOMETRY_CACHE_SIZE", 20000),

		// Data refresh
		DataRefreshDays:   getEnvInt("DATA_REFRESH_DAYS", 30),
		OperatorColorsURL: getEnv("OPERATOR_COLORS_URL", "https://verumignis.com/operator-colors.csv"),
		CitiesURL:         getEnv("CITIES_URL", "https://verumignis.com/cities.csv"),

		// API server
		Port:              getEnv("PORT", "8081"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		RetentionDuration: time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	// Derived paths
	cfg.RoutesCSV = getEnv("ROUTES_CSV", filepath.Join(cfg.DataDir, "routes.csv"))
	cfg.CitiesCSV = getEnv("CITIES_CSV", filepath.Join(cfg.DataDir, "cities.csv"))
	cfg.OperatorColorsCSV = getEnv("OPERATOR_COLORS_CSV", filepath.Join(cfg.DataDir, "operator-colors.csv"))

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
