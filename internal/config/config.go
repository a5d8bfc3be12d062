package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the feed formulation server
type Config struct {
	// Auth
	AuthToken string

	// Environment is "production" or "development"
	Environment string

	// Catalog files
	DataDir         string
	IngredientsPath string
	ProfilesPath    string
	IngredientsURL  string
	ProfilesURL     string
	MetadataPath    string
	LockFile        string

	// Refresh behavior
	DisableRemoteCheck   bool
	IgnoreLock           bool
	RefreshIntervalHours int

	// Server
	Port string

	// Optimizer. SolverTimeout is always positive.
	SolverTimeout    time.Duration
	BatchConcurrency int
}

// FileReader abstracts file access so .env loading can be tested
type FileReader interface {
	Open(filename string) (io.ReadCloser, error)
	Stat(filename string) (os.FileInfo, error)
}

type osFileReader struct{}

func (osFileReader) Open(filename string) (io.ReadCloser, error) {
	return os.Open(filename)
}

func (osFileReader) Stat(filename string) (os.FileInfo, error) {
	return os.Stat(filename)
}

// Load reads configuration from the environment and an optional .env file
func Load() *Config {
	return LoadWithFileReader(osFileReader{})
}

// LoadWithFileReader is Load with an injectable file reader
func LoadWithFileReader(reader FileReader) *Config {
	loadEnvFileWithReader(reader)

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		AuthToken:            getEnv("AUTH_TOKEN", "super-secret-token"),
		Environment:          getEnv("ENV", "production"),
		DataDir:              dataDir,
		IngredientsPath:      getEnv("INGREDIENTS_PATH", filepath.Join(dataDir, "ingredients.csv")),
		ProfilesPath:         getEnv("PROFILES_PATH", filepath.Join(dataDir, "livestock_profiles.csv")),
		IngredientsURL:       os.Getenv("INGREDIENTS_URL"),
		ProfilesURL:          os.Getenv("PROFILES_URL"),
		MetadataPath:         getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:             getEnv("LOCK_FILE", filepath.Join(dataDir, "refresh.lock")),
		DisableRemoteCheck:   getEnvBool("DISABLE_REMOTE_CHECK", false),
		IgnoreLock:           getEnvBool("IGNORE_LOCK", false),
		RefreshIntervalHours: getEnvInt("REFRESH_INTERVAL_HOURS", 24),
		Port:                 getEnv("PORT", "8080"),
		SolverTimeout:        getEnvDuration("SOLVER_TIMEOUT", 10*time.Second),
		BatchConcurrency:     getEnvInt("BATCH_CONCURRENCY", 4),
	}
}

// RefreshInterval returns the refresh interval as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalHours) * time.Hour
}

// IsDevelopment reports whether detailed errors may be shown to clients
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// loadEnvFileWithReader copies KEY=VALUE lines from .env into the process
// environment. Variables that are already set win.
func loadEnvFileWithReader(reader FileReader) {
	const envFile = ".env"

	if _, err := reader.Stat(envFile); err != nil {
		return
	}
	f, err := reader.Open(envFile)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, value)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts positive durations only; zero, negative and
// unparsable values fall back to defaultValue
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
