package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Queue    QueueConfig    `koanf:"queue"`
	Executor ExecutorConfig `koanf:"executor"`
	Storage  StorageConfig  `koanf:"storage"`
}

// LogConfig controls logging behavior.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
	File   string `koanf:"file"`   // empty means stderr
}

// QueueConfig controls the job queue.
type QueueConfig struct {
	MaxSize int `koanf:"max_size"`
}

// ExecutorConfig controls the worker pool.
type ExecutorConfig struct {
	Workers     int           `koanf:"workers"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
	JobTimeout  time.Duration `koanf:"job_timeout"`
}

// StorageConfig controls the file store.
type StorageConfig struct {
	Root              string        `koanf:"root"`
	MaxBytes          int64         `koanf:"max_bytes"`
	MaxFiles          int           `koanf:"max_files"`
	RetentionDays     int           `koanf:"retention_days"`
	RetentionInterval time.Duration `koanf:"retention_interval"`
}
