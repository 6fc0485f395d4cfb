package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigSource is one layer in the configuration loading chain.
// Sources load in ascending Priority order; later loads override
// earlier keys.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// Source priorities, lowest loads first.
const (
	PriorityDefaults = 0
	PriorityFile     = 10
	PriorityEnv      = 20
	PriorityFlags    = 30
	PriorityDebug    = 40
)

// EnvPrefix is the prefix for environment variable overrides.
// A double underscore separates key levels so that key names may
// themselves contain underscores:
//
//	REPORTD_LOG__LEVEL          -> log.level
//	REPORTD_QUEUE__MAX_SIZE     -> queue.max_size
//	REPORTD_STORAGE__ROOT       -> storage.root
const EnvPrefix = "REPORTD_"

// DefaultConfigPath is tried when no explicit config file is given.
const DefaultConfigPath = "reportd.yaml"

// DefaultSources builds the standard loading chain: defaults, then an
// optional YAML file, then environment variables, then flags, with a
// final debug override on top.
func DefaultSources(configFile string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	sources := []ConfigSource{
		&defaultsSource{},
		&fileSource{path: configFile},
		&envSource{},
	}
	if flags != nil {
		sources = append(sources, &flagSource{flags: flags})
	}
	if debug {
		sources = append(sources, &debugSource{})
	}
	return sources
}

type defaultsSource struct{}

func (s *defaultsSource) Name() string  { return "defaults" }
func (s *defaultsSource) Priority() int { return PriorityDefaults }

func (s *defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

type fileSource struct {
	// path is the explicit config file; empty falls back to
	// DefaultConfigPath, which may be absent.
	path string
}

func (s *fileSource) Name() string  { return "file" }
func (s *fileSource) Priority() int { return PriorityFile }

func (s *fileSource) Load(k *koanf.Koanf) error {
	path := s.path
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

type envSource struct{}

func (s *envSource) Name() string  { return "env" }
func (s *envSource) Priority() int { return PriorityEnv }

func (s *envSource) Load(k *koanf.Koanf) error {
	return k.Load(env.Provider(EnvPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
}

type flagSource struct {
	flags *pflag.FlagSet
}

func (s *flagSource) Name() string  { return "flags" }
func (s *flagSource) Priority() int { return PriorityFlags }

func (s *flagSource) Load(k *koanf.Koanf) error {
	return k.Load(posflag.Provider(s.flags, ".", k), nil)
}

// debugSource forces verbose logging regardless of other layers.
type debugSource struct{}

func (s *debugSource) Name() string  { return "debug" }
func (s *debugSource) Priority() int { return PriorityDebug }

func (s *debugSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(map[string]any{"log.level": "debug"}, "."), nil)
}
