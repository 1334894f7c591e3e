package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/satyaki-up/issueboard/internal/db"
)

const (
	FileName  = "boardconfig.yaml"
	EnvPrefix = "BOARD"

	DefaultProject  = "brd"
	DefaultAddr     = "127.0.0.1:8080"
	DefaultDebounce = 100 * time.Millisecond
)

var (
	ErrExists = errors.New("config already exists")

	projectPrefixRe = regexp.MustCompile(`^[a-z0-9]{3}$`)
	knownKeys       = []string{"db", "project", "actor", "addr", "watch_debounce", "log_level"}
)

type Config struct {
	// Path is the config file that was loaded, or empty when none was found.
	Path          string
	DBPath        string
	Project       string
	Actor         string
	Addr          string
	WatchDebounce time.Duration
	LogLevel      string
}

// fileConfig is the on-disk shape written by WriteDefault.
type fileConfig struct {
	DB            string `yaml:"db"`
	Project       string `yaml:"project"`
	Actor         string `yaml:"actor,omitempty"`
	Addr          string `yaml:"addr"`
	WatchDebounce string `yaml:"watch_debounce"`
	LogLevel      string `yaml:"log_level"`
}

// Discover walks up from startDir looking for FileName. It returns "" when
// no config exists between startDir and the filesystem root.
func Discover(startDir string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("read %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load resolves the effective configuration for startDir. Precedence is
// BOARD_* environment, then the discovered file, then defaults. An explicit
// path skips discovery.
func Load(startDir, explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		found, err := Discover(startDir)
		if err != nil {
			return nil, err
		}
		path = found
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("db", db.DefaultPath())
	v.SetDefault("project", DefaultProject)
	v.SetDefault("actor", "")
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("watch_debounce", DefaultDebounce)
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := checkKeys(path, v); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Path:          path,
		Project:       strings.ToLower(strings.TrimSpace(v.GetString("project"))),
		Actor:         strings.TrimSpace(v.GetString("actor")),
		Addr:          strings.TrimSpace(v.GetString("addr")),
		WatchDebounce: v.GetDuration("watch_debounce"),
		LogLevel:      strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
	}

	dbPath := strings.TrimSpace(v.GetString("db"))
	if dbPath == "" {
		return nil, fmt.Errorf("invalid %s: db cannot be empty", describe(path))
	}
	fromEnv := os.Getenv(EnvPrefix+"_DB") != ""
	if path != "" && v.InConfig("db") && !fromEnv && !filepath.IsAbs(dbPath) && dbPath != ":memory:" {
		dbPath = filepath.Clean(filepath.Join(filepath.Dir(path), dbPath))
	}
	cfg.DBPath = dbPath

	if !projectPrefixRe.MatchString(cfg.Project) {
		return nil, fmt.Errorf("invalid %s: project must be 3 lowercase alphanumeric chars", describe(path))
	}
	if cfg.WatchDebounce <= 0 {
		return nil, fmt.Errorf("invalid %s: watch_debounce must be positive", describe(path))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid %s: unsupported log_level %q", describe(path), cfg.LogLevel)
	}
	if cfg.Actor == "" {
		cfg.Actor = os.Getenv("USER")
	}
	return cfg, nil
}

func checkKeys(path string, v *viper.Viper) error {
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var unknown []string
	for _, k := range v.AllKeys() {
		if v.InConfig(k) && !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("invalid %s: unsupported keys %s", path, strings.Join(unknown, ", "))
	}
	return nil
}

func describe(path string) string {
	if path == "" {
		return "configuration"
	}
	return path
}

// WriteDefault creates dir/FileName for a new board. The db path is stored
// relative to dir so the board can be moved as a unit.
func WriteDefault(dir, project, actor string) (string, error) {
	project = strings.ToLower(strings.TrimSpace(project))
	if project == "" {
		project = DefaultProject
	}
	if !projectPrefixRe.MatchString(project) {
		return "", fmt.Errorf("project must be 3 lowercase alphanumeric chars, got %q", project)
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}

	out, err := yaml.Marshal(fileConfig{
		DB:            filepath.Join(".board", "issues.db"),
		Project:       project,
		Actor:         strings.TrimSpace(actor),
		Addr:          DefaultAddr,
		WatchDebounce: DefaultDebounce.String(),
		LogLevel:      "info",
	})
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
