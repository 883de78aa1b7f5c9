// Package config loads and validates the daemon configuration from JSON,
// with defaults for every field and a file watcher for the settings that
// are safe to change at runtime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the root configuration.
type Config struct {
	Worker      WorkerConfig      `json:"worker"`
	Coprocessor CoprocessorConfig `json:"coprocessor"`
	Server      ServerConfig      `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
}

// WorkerConfig sizes the request worker and its priority pools.
type WorkerConfig struct {
	ReadCriticalConcurrency int `json:"read_critical_concurrency"`
	ReadHighConcurrency     int `json:"read_high_concurrency"`
	ReadNormalConcurrency   int `json:"read_normal_concurrency"`
	ReadLowConcurrency      int `json:"read_low_concurrency"`

	// MaxReadTasks is the per-pool admission ceiling. It is the one worker
	// setting applied on hot reload.
	MaxReadTasks int `json:"max_read_tasks"`

	// StackSize is kept for compatibility with fixed-stack thread pools
	// and surfaced in status output; goroutine stacks are runtime-managed.
	StackSize int `json:"stack_size"`

	SchedulerQueueSize int `json:"scheduler_queue_size"`
}

// CoprocessorConfig bounds request handling.
type CoprocessorConfig struct {
	EndPointBatchRowLimit  int `json:"end_point_batch_row_limit"`
	EndPointRecursionLimit int `json:"end_point_recursion_limit"`
	ChunksPerStream        int `json:"chunks_per_stream"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns a configuration suitable for development.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			ReadCriticalConcurrency: 2,
			ReadHighConcurrency:     4,
			ReadNormalConcurrency:   4,
			ReadLowConcurrency:      2,
			MaxReadTasks:            2048,
			StackSize:               10 * 1024 * 1024,
			SchedulerQueueSize:      4096,
		},
		Coprocessor: CoprocessorConfig{
			EndPointBatchRowLimit:  64,
			EndPointRecursionLimit: 1000,
			ChunksPerStream:        8,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:20180",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path over the defaults, so a partial file only
// overrides what it names.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	w := c.Worker
	for _, pool := range []struct {
		name  string
		value int
	}{
		{"read_critical_concurrency", w.ReadCriticalConcurrency},
		{"read_high_concurrency", w.ReadHighConcurrency},
		{"read_normal_concurrency", w.ReadNormalConcurrency},
		{"read_low_concurrency", w.ReadLowConcurrency},
	} {
		if pool.value <= 0 {
			return fmt.Errorf("config: worker.%s must be positive, got %d", pool.name, pool.value)
		}
	}
	if w.MaxReadTasks <= 0 {
		return fmt.Errorf("config: worker.max_read_tasks must be positive, got %d", w.MaxReadTasks)
	}
	if w.StackSize < 0 {
		return fmt.Errorf("config: worker.stack_size must not be negative, got %d", w.StackSize)
	}
	if c.Coprocessor.EndPointBatchRowLimit <= 0 {
		return fmt.Errorf("config: coprocessor.end_point_batch_row_limit must be positive, got %d",
			c.Coprocessor.EndPointBatchRowLimit)
	}
	if c.Coprocessor.EndPointRecursionLimit <= 0 {
		return fmt.Errorf("config: coprocessor.end_point_recursion_limit must be positive, got %d",
			c.Coprocessor.EndPointRecursionLimit)
	}
	if c.Coprocessor.ChunksPerStream <= 0 {
		return fmt.Errorf("config: coprocessor.chunks_per_stream must be positive, got %d",
			c.Coprocessor.ChunksPerStream)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must not be empty")
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
