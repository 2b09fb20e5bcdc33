package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Paths tried by Load when no path is given.
var DefaultPaths = []string{"stopboard.yml", "config.yml"}

func Default() Config {
	return Config{
		Timezone: "Europe/Prague",
		Static: StaticConfig{
			Timeout:         60 * time.Second,
			MaxSize:         800 << 20,
			RefreshInterval: 12 * time.Hour,
		},
		Realtime: RealtimeConfig{
			TTL:     30 * time.Second,
			Timeout: 10 * time.Second,
			MaxSize: 16 << 20,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			StopIDTemplate: "U%sZ2",
			DefaultCount:   2,
			BoardInterval:  30 * time.Second,
		},
		Display: DisplayConfig{
			Width: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loads the config at path, or at the first of DefaultPaths that
// exists if path is empty.
func Load(path string) (*Config, error) {
	paths := DefaultPaths
	if path != "" {
		paths = []string{path}
	}

	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return Parse(data)
}

// Parses YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// The configured timezone. Validation guarantees it loads.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
