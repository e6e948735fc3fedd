package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Environment variables consulted by the CLI.
const (
	EnvHome = "SAITEN_HOME"
	EnvURL  = "SAITEN_URL"
)

// DefaultHeaderFields are the fields every submission's header comment must fill in.
var DefaultHeaderFields = []string{"氏名", "学生番号", "作成日", "入出力の説明", "動きの説明", "感想"}

// Config holds application configuration.
type Config struct {
	// DataDir is the resolved data directory (database, uploads, exports, logs).
	// Set by the caller, never read from or written to config.json.
	DataDir string `json:"-"`

	// Bind and Port are the web server listen address.
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// DebounceMS is the quiet period before an edited draft is reconciled
	// into the unsaved-draft registry.
	DebounceMS int `json:"debounce_ms,omitempty"`

	// CheckConcurrency bounds the number of auto-checks run in parallel by a batch.
	CheckConcurrency int `json:"check_concurrency,omitempty"`

	// DetailCacheSize is the number of student detail file reads kept in memory.
	DetailCacheSize int `json:"detail_cache_size,omitempty"`

	// MaxUploadMB caps the size of a multipart upload (CSV + ZIP).
	MaxUploadMB int `json:"max_upload_mb,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// HeaderFields overrides DefaultHeaderFields. Replaces rather than merges.
	HeaderFields []string `json:"header_fields,omitempty"`

	// SubmittedMarker selects the rows listed for review: only rows whose
	// status column contains it are shown.
	SubmittedMarker string `json:"submitted_marker,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside <data dir>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bind:             "127.0.0.1",
		Port:             5000,
		DebounceMS:       500,
		CheckConcurrency: 4,
		DetailCacheSize:  256,
		MaxUploadMB:      64,
		LogLevel:         "info",
		HeaderFields:     append([]string(nil), DefaultHeaderFields...),
		SubmittedMarker:  "提出済み",
	}
}

// Debounce returns DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// DefaultDataDir returns $SAITEN_HOME, or ~/.saiten when unset.
func DefaultDataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".saiten"), nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// DataDir is set to baseDir.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg.DataDir = baseDir
	return cfg, nil
}

// LoadWithCourse loads configuration from the data directory and from the nearest
// .saiten/config.json found by walking upward from startDir (a course directory).
// Course config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithCourse(baseDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	course, err := loadFileRaw(FindCourseConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), course)
	cfg.DataDir = baseDir
	return cfg, nil
}

// FindCourseConfig walks upward from startDir to find the nearest .saiten/config.json.
// Returns the path if found, or empty string if not found.
func FindCourseConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".saiten", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated,
// except HeaderFields which the overlay replaces when set.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		DataDir:          pickString(overlay.DataDir, base.DataDir),
		Bind:             pickString(overlay.Bind, base.Bind),
		Port:             pickInt(overlay.Port, base.Port),
		DebounceMS:       pickInt(overlay.DebounceMS, base.DebounceMS),
		CheckConcurrency: pickInt(overlay.CheckConcurrency, base.CheckConcurrency),
		DetailCacheSize:  pickInt(overlay.DetailCacheSize, base.DetailCacheSize),
		MaxUploadMB:      pickInt(overlay.MaxUploadMB, base.MaxUploadMB),
		LogLevel:         pickString(overlay.LogLevel, base.LogLevel),
		SubmittedMarker:  pickString(overlay.SubmittedMarker, base.SubmittedMarker),
		DBMaxOpenConns:   pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:   pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.HeaderFields = mergeStringSlice(nil, base.HeaderFields)
	if len(overlay.HeaderFields) > 0 {
		result.HeaderFields = mergeStringSlice(nil, overlay.HeaderFields)
	}

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
