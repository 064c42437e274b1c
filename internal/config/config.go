// Package config loads the nested TOML runtime configuration, adapted
// from Tutu-Engine-tutuengine/internal/daemon/config.go's
// DefaultConfig/LoadConfig/SaveConfig shape and ~/.tutu home-directory
// convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level runtime configuration.
type Config struct {
	Pipeline PipelineConfig `toml:"pipeline"`
	Pool     PoolConfig     `toml:"pool"`
	Backend  BackendConfig  `toml:"backend"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Registry RegistryConfig `toml:"registry"`
}

// PipelineConfig sizes the inter-stage queues shared by every driver
// the process builds.
type PipelineConfig struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// PoolConfig sizes the buffer pool behind each driver.
type PoolConfig struct {
	Size int `toml:"size"`
}

// BackendConfig selects and configures the default inference backend.
type BackendConfig struct {
	Kind           string `toml:"kind"` // "onnx", "gpu", "npu", "mock"
	SharedLibPath  string `toml:"shared_lib_path"`  // onnxbackend
	ShaderPath     string `toml:"shader_path"`       // gpubackend
	ParallelCtxNum int    `toml:"parallel_ctx_num"`  // npubackend
}

// LoggingConfig controls the installed logging sink's level.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// RegistryConfig locates the sqlite-backed model descriptor store.
type RegistryConfig struct {
	DBPath string `toml:"db_path"`
}

// Default returns the configuration used when no config file is found,
// mirroring DefaultConfig()'s role in the teacher.
func Default() Config {
	home := inferrtHome()
	return Config{
		Pipeline: PipelineConfig{QueueCapacity: 100},
		Pool:     PoolConfig{Size: 4},
		Backend:  BackendConfig{Kind: "mock", ParallelCtxNum: 1},
		Logging:  LoggingConfig{Level: "info"},
		Metrics:  MetricsConfig{Enabled: false, Addr: "127.0.0.1:9191"},
		Registry: RegistryConfig{DBPath: filepath.Join(home, "models.db")},
	}
}

// Load reads path, falling back to Default if it does not exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func inferrtHome() string {
	if env := os.Getenv("INFERRT_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".inferrt")
}
