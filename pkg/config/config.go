// Package config loads application configuration from a layered chain
// of sources: built-in defaults, an optional YAML file, environment
// variables and command-line flags, each overriding the last.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/reportd/reportd/pkg/executor"
	"github.com/reportd/reportd/pkg/filestore"
	"github.com/reportd/reportd/pkg/queue"
	"github.com/reportd/reportd/pkg/scheduler"
)

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global Koanf instance. This should
// be called early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a new Manager over the global Koanf instance,
// initializing it if not already done.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultConfig returns a Config populated with the baseline defaults
// every other source layers on top of.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Queue: QueueConfig{
			MaxSize: queue.DefaultMaxSize,
		},
		Executor: ExecutorConfig{
			Workers:     executor.DefaultWorkers,
			PollTimeout: executor.DefaultPollTimeout,
			JobTimeout:  executor.DefaultJobTimeout,
		},
		Storage: StorageConfig{
			Root:              "data",
			MaxBytes:          filestore.DefaultMaxBytes,
			MaxFiles:          filestore.DefaultMaxFiles,
			RetentionDays:     filestore.DefaultRetentionDays,
			RetentionInterval: scheduler.DefaultRetentionInterval,
		},
	}
}

// Load loads configuration from the default source chain.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (REPORTD_LOG__LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
//
// For custom source ordering, use LoadWithSources instead.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	debug := false
	if flags != nil {
		debugFlag := flags.Lookup("debug")
		if debugFlag != nil && debugFlag.Value.String() == "true" {
			debug = true
		}
	}

	sources := DefaultSources(customConfigFilePath, flags, debug)
	return m.LoadWithSources(sources)
}

// LoadWithSources loads configuration from the provided sources in
// priority order. Sources with lower priority values load first;
// higher priority sources override their values.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg

	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfgCopy := m.currentConfig
	return cfgCopy
}

// GetValue retrieves a configuration value by key path, e.g.
// GetValue("executor.workers"). Returns nil if the key doesn't exist.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// SchedulerConfig converts the loaded configuration into the settings
// the service facade consumes.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		QueueSize: c.Queue.MaxSize,
		Executor: executor.Config{
			Workers:           c.Executor.Workers,
			PollTimeout:       c.Executor.PollTimeout,
			DefaultJobTimeout: c.Executor.JobTimeout,
		},
		Storage: filestore.Config{
			Root:                 c.Storage.Root,
			MaxBytes:             c.Storage.MaxBytes,
			MaxFiles:             c.Storage.MaxFiles,
			DefaultRetentionDays: c.Storage.RetentionDays,
		},
		RetentionInterval: c.Storage.RetentionInterval,
	}
}

// DefaultConfigAsMap converts DefaultConfig to a flat map for Koanf's
// confmap provider, so every key is known before other sources load.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"queue.max_size": def.Queue.MaxSize,

		"executor.workers":      def.Executor.Workers,
		"executor.poll_timeout": def.Executor.PollTimeout,
		"executor.job_timeout":  def.Executor.JobTimeout,

		"storage.root":               def.Storage.Root,
		"storage.max_bytes":          def.Storage.MaxBytes,
		"storage.max_files":          def.Storage.MaxFiles,
		"storage.retention_days":     def.Storage.RetentionDays,
		"storage.retention_interval": def.Storage.RetentionInterval,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings. Flag names match koanf key paths so the posflag source can
// merge them directly.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.String("log.level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.String("log.file", defaults.Log.File, "Path to log file (empty for stderr)")

	flags.Int("queue.max_size", defaults.Queue.MaxSize, "Maximum number of queued jobs")

	flags.Int("executor.workers", defaults.Executor.Workers, "Worker pool size")
	flags.Duration("executor.poll_timeout", defaults.Executor.PollTimeout, "Idle worker poll timeout")
	flags.Duration("executor.job_timeout", defaults.Executor.JobTimeout, "Default per-job timeout")

	flags.String("storage.root", defaults.Storage.Root, "File storage root directory")
	flags.Int64("storage.max_bytes", defaults.Storage.MaxBytes, "Aggregate storage byte quota")
	flags.Int("storage.max_files", defaults.Storage.MaxFiles, "Aggregate storage file quota")
	flags.Int("storage.retention_days", defaults.Storage.RetentionDays, "Default file retention in days")
	flags.Duration("storage.retention_interval", defaults.Storage.RetentionInterval, "Retention sweep interval")

	flags.Bool("debug", false, "Enable debug logging")
}
