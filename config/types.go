package config

import "time"

type StaticConfig struct {
	URL             string            `yaml:"url" validate:"required,url"`
	Headers         map[string]string `yaml:"headers"`
	Timeout         time.Duration     `yaml:"timeout" validate:"gt=0"`
	MaxSize         int               `yaml:"max_size" validate:"gt=0"`
	RefreshInterval time.Duration     `yaml:"refresh_interval" validate:"gte=1m"`
}

// Realtime is disabled when URL is empty.
type RealtimeConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Headers  map[string]string `yaml:"headers"`
	TTL      time.Duration     `yaml:"ttl" validate:"gt=0"`
	Timeout  time.Duration     `yaml:"timeout" validate:"gt=0"`
	MaxSize  int               `yaml:"max_size" validate:"gt=0"`
	DumpPath string            `yaml:"dump_path"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// SQLite database directory. In-memory if empty.
	Directory string `yaml:"directory"`

	DSN string `yaml:"dsn" validate:"required_if=Backend postgres"`
}

type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory filesystem redis"`
	// Directory holding cached downloads.
	Path          string `yaml:"path" validate:"required_if=Backend filesystem"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// Expands the numeric id of /api/stop/:id into a stop_id
	StopIDTemplate string        `yaml:"stop_id_template" validate:"required,contains=%s"`
	DefaultCount   int           `yaml:"default_count" validate:"gt=0"`
	BoardInterval  time.Duration `yaml:"board_interval" validate:"gte=1s"`
}

type BoardStopConfig struct {
	StopID string `yaml:"stop_id" validate:"required"`
	Count  int    `yaml:"count" validate:"gt=0"`
}

type DisplayConfig struct {
	Width   int               `yaml:"width" validate:"gt=0"`
	Stops   []BoardStopConfig `yaml:"stops" validate:"dive"`
	LineMap map[string]string `yaml:"line_map"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type Config struct {
	// IANA name of the zone all service days are evaluated in
	Timezone string `yaml:"timezone" validate:"required,timezone"`

	Static   StaticConfig   `yaml:"static"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Server   ServerConfig   `yaml:"server"`
	Display  DisplayConfig  `yaml:"display"`
	Log      LogConfig      `yaml:"log"`
}
