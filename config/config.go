// Package config loads the cache's Options struct from layered sources:
// struct defaults, a JSON/YAML file, environment variables, and CLI flags.
package config

import (
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Loader is a generic configuration loader for type T.
type Loader[T any] struct {
	k   *koanf.Koanf
	err error
}

// Option configures a Loader.
type Option[T any] func(*Loader[T])

// NewLoader creates a Loader for type T, applying opts in order. Each source
// added by an Option overrides any value it shares with a prior source.
func NewLoader[T any](opts ...Option[T]) *Loader[T] {
	loader := &Loader[T]{k: koanf.New(".")}

	for _, opt := range opts {
		opt(loader)
	}

	return loader
}

// Load returns the fully layered configuration, or the first error any
// Option encountered while adding its source.
//
//nolint:ireturn // returns the generic type T, which may itself be an interface
func (loader *Loader[T]) Load() (T, error) {
	var cfg T

	if loader.err != nil {
		return cfg, loader.err
	}

	if err := loader.k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// WithDefaults seeds the loader with a fully populated struct of defaults.
// Typically the first Option passed to NewLoader.
func WithDefaults[T any](defaults T) Option[T] {
	return func(loader *Loader[T]) {
		if loader.err != nil {
			return
		}

		if err := loader.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
			loader.err = err
		}
	}
}

// WithFile adds a file source, detecting JSON or YAML from the extension
// (defaulting to JSON for anything else).
func WithFile[T any](path string) Option[T] {
	return func(loader *Loader[T]) {
		if loader.err != nil {
			return
		}

		var parser koanf.Parser

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		default:
			parser = json.Parser()
		}

		if err := loader.k.Load(file.Provider(path), parser); err != nil {
			loader.err = err
		}
	}
}

// WithEnv adds an environment-variable source. Variables are matched by
// prefix, which is stripped, and lower-cased into keys, e.g. with prefix "CACHE_",
// CACHE_MAX_IDLE_TIME becomes "max_idle_time".
func WithEnv[T any](prefix string) Option[T] {
	return func(loader *Loader[T]) {
		if loader.err != nil {
			return
		}

		err := loader.k.Load(env.Provider(prefix, ".", func(s string) string {
			return strings.ToLower(strings.TrimPrefix(s, prefix))
		}), nil)
		if err != nil {
			loader.err = err
		}
	}
}

// WithFlags adds a parsed pflag.FlagSet as a source, useful for host
// binaries that embed the cache and want CLI overrides.
func WithFlags[T any](flags *pflag.FlagSet) Option[T] {
	return func(loader *Loader[T]) {
		if loader.err != nil {
			return
		}

		if err := loader.k.Load(posflag.Provider(flags, ".", loader.k), nil); err != nil {
			loader.err = err
		}
	}
}

// Load is a convenience wrapper equivalent to NewLoader(opts...).Load(), for
// callers that don't need to keep the Loader around.
//
//nolint:ireturn // returns the generic type T, which may itself be an interface
func Load[T any](opts ...Option[T]) (T, error) {
	return NewLoader(opts...).Load()
}
