package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("config")

const (
	FileName  = "config.yaml"
	EnvPrefix = "NSSMGUI"

	DefaultNSSMDownloadURL = "https://nssm.cc/release/nssm-2.24.zip"
	DefaultDashboardAddr   = "127.0.0.1:8470"
)

type Config struct {
	NSSMPath     string `mapstructure:"nssm_path"`
	NoAdminCheck bool   `mapstructure:"no_admin_check"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	AutoRefresh            bool `mapstructure:"auto_refresh"`
	RefreshIntervalSeconds int  `mapstructure:"refresh_interval_seconds"`
	ConfirmActions         bool `mapstructure:"confirm_actions"`

	DefaultStdoutPath string `mapstructure:"default_stdout_path"`
	DefaultStderrPath string `mapstructure:"default_stderr_path"`
	DefaultPriority   string `mapstructure:"default_priority"`
	DefaultExitAction string `mapstructure:"default_exit_action"`

	EnableServiceMonitoring   bool `mapstructure:"enable_service_monitoring"`
	MonitoringIntervalSeconds int  `mapstructure:"monitoring_interval_seconds"`
	MonitorCPUUsage           bool `mapstructure:"monitor_cpu_usage"`
	MonitorMemoryUsage        bool `mapstructure:"monitor_memory_usage"`
	MonitorHistorySize        int  `mapstructure:"monitor_history_size"`

	BackupServiceConfigs bool   `mapstructure:"backup_service_configs"`
	BackupDirectory      string `mapstructure:"backup_directory"`
	BackupKeep           int    `mapstructure:"backup_keep"`

	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`
	MaxConcurrentCommands int `mapstructure:"max_concurrent_commands"`
	CommandQueueSize      int `mapstructure:"command_queue_size"`

	DashboardAddr     string `mapstructure:"dashboard_addr"`
	DashboardMaxConns int    `mapstructure:"dashboard_max_conns"`

	NSSMDownloadURL string `mapstructure:"nssm_download_url"`

	RecentServices    []string `mapstructure:"recent_services"`
	MaxRecentServices int      `mapstructure:"max_recent_services"`

	// Dir is the directory config.yaml was loaded from. Not persisted.
	Dir string `mapstructure:"-"`

	mu sync.Mutex
	v  *viper.Viper
	// pinned holds the on-disk value of keys overridden by the
	// environment or a flag. Save writes these instead of the live value.
	pinned map[string]any
}

func Default() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		LogFile:                   filepath.Join("logs", "nssm-gui.log"),
		LogMaxSizeMB:              10,
		LogMaxBackups:             5,
		AutoRefresh:               true,
		RefreshIntervalSeconds:    5,
		ConfirmActions:            true,
		DefaultStdoutPath:         `${TEMP}\${SERVICE_NAME}_stdout.log`,
		DefaultStderrPath:         `${TEMP}\${SERVICE_NAME}_stderr.log`,
		DefaultPriority:           "NORMAL_PRIORITY_CLASS",
		DefaultExitAction:         "Restart",
		EnableServiceMonitoring:   true,
		MonitoringIntervalSeconds: 5,
		MonitorCPUUsage:           true,
		MonitorMemoryUsage:        true,
		MonitorHistorySize:        60,
		BackupServiceConfigs:      true,
		BackupKeep:                20,
		CommandTimeoutSeconds:     60,
		MaxConcurrentCommands:     4,
		CommandQueueSize:          64,
		DashboardAddr:             DefaultDashboardAddr,
		DashboardMaxConns:         64,
		NSSMDownloadURL:           DefaultNSSMDownloadURL,
		MaxRecentServices:         10,
	}
}

// values lists every persisted key. It is the single source for viper
// defaults, Save and Set.
func (c *Config) values() map[string]any {
	return map[string]any{
		"nssm_path":                   c.NSSMPath,
		"no_admin_check":              c.NoAdminCheck,
		"log_level":                   c.LogLevel,
		"log_format":                  c.LogFormat,
		"log_file":                    c.LogFile,
		"log_max_size_mb":             c.LogMaxSizeMB,
		"log_max_backups":             c.LogMaxBackups,
		"auto_refresh":                c.AutoRefresh,
		"refresh_interval_seconds":    c.RefreshIntervalSeconds,
		"confirm_actions":             c.ConfirmActions,
		"default_stdout_path":         c.DefaultStdoutPath,
		"default_stderr_path":         c.DefaultStderrPath,
		"default_priority":            c.DefaultPriority,
		"default_exit_action":         c.DefaultExitAction,
		"enable_service_monitoring":   c.EnableServiceMonitoring,
		"monitoring_interval_seconds": c.MonitoringIntervalSeconds,
		"monitor_cpu_usage":           c.MonitorCPUUsage,
		"monitor_memory_usage":        c.MonitorMemoryUsage,
		"monitor_history_size":        c.MonitorHistorySize,
		"backup_service_configs":      c.BackupServiceConfigs,
		"backup_directory":            c.BackupDirectory,
		"backup_keep":                 c.BackupKeep,
		"command_timeout_seconds":     c.CommandTimeoutSeconds,
		"max_concurrent_commands":     c.MaxConcurrentCommands,
		"command_queue_size":          c.CommandQueueSize,
		"dashboard_addr":              c.DashboardAddr,
		"dashboard_max_conns":         c.DashboardMaxConns,
		"nssm_download_url":           c.NSSMDownloadURL,
		"recent_services":             c.RecentServices,
		"max_recent_services":         c.MaxRecentServices,
	}
}

// Keys returns the sorted list of settable keys.
func Keys() []string {
	keys := make([]string, 0, 32)
	for k := range Default().values() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads config.yaml from dir (DefaultDir when empty). A .env file in
// the same directory is applied to the environment first, and NSSMGUI_*
// variables override file values. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range Default().values() {
		v.SetDefault(k, val)
	}
	v.SetConfigFile(filepath.Join(dir, FileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", FileName, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Dir = dir
	cfg.v = v

	var envKeys []string
	for k := range cfg.values() {
		if _, ok := os.LookupEnv(envName(k)); ok {
			envKeys = append(envKeys, k)
		}
	}
	if len(envKeys) > 0 {
		onDisk, err := loadFile(dir)
		if err != nil {
			return nil, err
		}
		fileValues := onDisk.values()
		cfg.pinned = make(map[string]any, len(envKeys))
		for _, k := range envKeys {
			cfg.pinned[k] = fileValues[k]
		}
	}
	return cfg, nil
}

// loadFile decodes config.yaml over the defaults without consulting the
// environment.
func loadFile(dir string) (*Config, error) {
	v := viper.New()
	for k, val := range Default().values() {
		v.SetDefault(k, val)
	}
	v.SetConfigFile(filepath.Join(dir, FileName))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", FileName, err)
		}
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// Path returns the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, FileName)
}

// Save writes config.yaml to the config directory with owner-only access.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Dir == "" {
		c.Dir = DefaultDir()
	}
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	for k, val := range c.values() {
		v.Set(k, val)
	}
	for k, val := range c.pinned {
		v.Set(k, val)
	}
	cfgPath := c.Path()
	if err := v.WriteConfigAs(cfgPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(cfgPath, 0600)
}

// Set assigns a single key from its string form, as given on the command
// line. Unknown keys are rejected. The new value is persisted by Save.
func (c *Config) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var val any = value
	if key == "recent_services" {
		val = splitList(value)
	}
	if err := c.assign(key, val); err != nil {
		return err
	}
	delete(c.pinned, key)
	return nil
}

// Override changes key for this process only. Save keeps writing the
// value the key had before its first override.
func (c *Config) Override(key string, value any) error {
	key = strings.ToLower(key)
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[key]; !ok {
		if c.pinned == nil {
			c.pinned = make(map[string]any)
		}
		c.pinned[key] = c.values()[key]
	}
	return c.assign(key, value)
}

func (c *Config) assign(key string, value any) error {
	v := viper.New()
	for k, val := range c.values() {
		v.Set(k, val)
	}
	v.Set(key, value)
	dir := c.Dir
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	c.Dir = dir
	return nil
}

// Get returns the current value for key.
func (c *Config) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.values()[strings.ToLower(key)]
	return val, ok
}

// Watch calls onChange with a freshly loaded config whenever config.yaml
// changes on disk. Only configs returned by Load can be watched.
func (c *Config) Watch(onChange func(*Config)) error {
	if c.v == nil {
		return errors.New("config was not loaded from disk")
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := Load(c.Dir)
		if err != nil {
			log.Warn("config reload failed", "path", e.Name, "error", err.Error())
			return
		}
		next.Validate()
		log.Info("config reloaded", "path", e.Name)
		onChange(next)
	})
	c.v.WatchConfig()
	return nil
}

// AddRecentService moves name to the front of the recent services list.
func (c *Config) AddRecentService(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	recent := make([]string, 0, len(c.RecentServices)+1)
	recent = append(recent, name)
	for _, s := range c.RecentServices {
		if s != name {
			recent = append(recent, s)
		}
	}
	limit := c.MaxRecentServices
	if limit <= 0 {
		limit = 10
	}
	if len(recent) > limit {
		recent = recent[:limit]
	}
	c.RecentServices = recent
}

// Recent returns a copy of the recent services list.
func (c *Config) Recent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.RecentServices...)
}

func (c *Config) TemplatesDir() string { return filepath.Join(c.Dir, "templates") }
func (c *Config) LogsDir() string      { return filepath.Join(c.Dir, "logs") }
func (c *Config) AuditPath() string    { return filepath.Join(c.Dir, "audit.jsonl") }

// BackupDir returns backup_directory, or backups/ under the config dir.
func (c *Config) BackupDir() string {
	if c.BackupDirectory != "" {
		return c.BackupDirectory
	}
	return filepath.Join(c.Dir, "backups")
}

// LogPath resolves log_file against the config directory.
func (c *Config) LogPath() string {
	if c.LogFile == "" || filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.Dir, c.LogFile)
}

// LocalNSSMPath is where a downloaded nssm.exe is kept.
func (c *Config) LocalNSSMPath() string {
	return filepath.Join(c.Dir, "nssm.exe")
}

// DefaultDir is %APPDATA%\nssm-gui on Windows and ~/.nssm-gui elsewhere.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "nssm-gui")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nssm-gui"
	}
	return filepath.Join(home, ".nssm-gui")
}

// ExpandServicePath substitutes ${SERVICE_NAME} and environment variables
// in a default log path pattern. Unset variables are left as written.
func ExpandServicePath(pattern, serviceName string) string {
	return os.Expand(pattern, func(name string) string {
		if name == "SERVICE_NAME" {
			return serviceName
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return "${" + name + "}"
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
