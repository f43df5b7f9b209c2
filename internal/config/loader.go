package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "LUMINA_"

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(r io.Reader, target interface{}) error
	Extension() string
}

// Loader layers configuration sources, lowest priority first:
//
//	defaults
//	{dir}/base.{yaml,json}
//	{dir}/{environment}.{yaml,json}
//	{dir}/local.{yaml,json}  (development only)
//	LUMINA_* environment variables
type Loader struct {
	dir         string
	environ     map[string]string
	fileLoaders []FileLoader
}

// NewLoader reads files from dir. A nil environ means the process
// environment.
func NewLoader(dir string, environ map[string]string) *Loader {
	if dir == "" {
		dir = "config"
	}
	return &Loader{
		dir:         dir,
		environ:     environ,
		fileLoaders: []FileLoader{YAMLLoader{}, JSONLoader{}},
	}
}

// Dir is the directory files are read from.
func (l *Loader) Dir() string {
	return l.dir
}

func (l *Loader) lookup(key string) string {
	if l.environ != nil {
		return l.environ[key]
	}
	return os.Getenv(key)
}

// Environment resolves the deployment stage before any file is read, since
// it selects which files apply.
func (l *Loader) Environment() Environment {
	if e := l.lookup(EnvPrefix + "ENVIRONMENT"); e != "" {
		return Environment(e)
	}
	return Development
}

func (l *Loader) Load() (*Config, error) {
	environment := l.Environment()
	cfg := Default(environment)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	if err := l.loadFile("base", cfg); err != nil {
		return nil, err
	}
	if err := l.loadFile(string(environment), cfg); err != nil {
		return nil, err
	}
	if environment == Development {
		if err := l.loadFile("local", cfg); err != nil {
			return nil, err
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: l.environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "env")

	// A file may not move the config to another stage than the one that
	// chose the files.
	if cfg.Environment != environment {
		return nil, fmt.Errorf("config files set environment %q, but %s%s is %q",
			cfg.Environment, EnvPrefix, "ENVIRONMENT", environment)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile applies the first of name.yaml or name.json found. Missing files
// are skipped.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, fl := range l.fileLoaders {
		path := filepath.Join(l.dir, name+fl.Extension())
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		err = fl.Load(f, cfg)
		f.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
		return nil
	}
	return nil
}

// Load reads configuration from dir using the process environment.
func Load(dir string) (*Config, error) {
	return NewLoader(dir, nil).Load()
}

// MustLoad panics if the configuration cannot be loaded.
func MustLoad(dir string) *Config {
	cfg, err := Load(dir)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

type YAMLLoader struct{}

func (YAMLLoader) Load(r io.Reader, target interface{}) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (YAMLLoader) Extension() string { return ".yaml" }

type JSONLoader struct{}

func (JSONLoader) Load(r io.Reader, target interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func (JSONLoader) Extension() string { return ".json" }
