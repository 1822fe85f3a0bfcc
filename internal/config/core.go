package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RiskSampleRate pairs a HITL sample rate with the risk level it applies to,
// for SampleBased checkpoints (models.HITLSampleBased).
type RiskSampleRate struct {
	Low      float64 `yaml:"low"`
	Moderate float64 `yaml:"moderate"`
	High     float64 `yaml:"high"`
}

// CoreRecoveryConfig carries recovery defaults. The query command passes
// MaxRetries to the planner, whose annotateRecovery falls back to it when a
// plan node doesn't set its own; BackoffBase and BackoffMax are not read (the
// planner uses its own defaultBackoffBase/defaultBackoffMax).
type CoreRecoveryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// CoreConfig is the orchestrator-core's own layer of configuration:
// concurrency budget, per-task and per-tool timeouts, ReAct iteration
// defaults, HITL sampling rates, recovery defaults, and the StatusBus fan-out
// buffer size. LoadCoreConfig starts from DefaultCoreConfig(), merges a
// loaded YAML file over it and then applies CORERUN_* environment overrides;
// the query command applies its CLI flags over that.
//
// The query command reads RecordStorePath, TaskTimeout and
// Recovery.MaxRetries. The other fields are loaded and defaulted but no
// component reads them: the wave executor, ReAct loop, tools and StatusBus
// run with their own built-in defaults.
type CoreConfig struct {
	// MaxConcurrency is the per-wave concurrency budget W (§4.2). The wave
	// executor does not read it: each wave runs with the MaxConcurrency
	// computed by dag.CalculateWaves.
	MaxConcurrency int `yaml:"max_concurrency"`

	// TaskTimeout bounds one task's ReAct loop end to end.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// ToolTimeout bounds one tool invocation within a task.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ReactMaxIterations is the default iteration cap for a task that
	// doesn't set its own models.Task.MaxIterations.
	ReactMaxIterations int `yaml:"react_max_iterations"`

	// StatusBusBuffer sizes each subscriber's event channel.
	StatusBusBuffer int `yaml:"status_bus_buffer"`

	// HITLSampleRates configures HITLSampleBased checkpoints per risk level.
	HITLSampleRates RiskSampleRate `yaml:"hitl_sample_rates"`

	Recovery CoreRecoveryConfig `yaml:"recovery"`

	// RecordStorePath is where the Record Store's SQLite file lives.
	RecordStorePath string `yaml:"record_store_path"`
}

// DefaultCoreConfig returns the documented defaults: moderate-risk sampling
// at 10%, high-risk always sampled, low-risk never.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		MaxConcurrency:     0,
		TaskTimeout:        5 * time.Minute,
		ToolTimeout:        30 * time.Second,
		ReactMaxIterations: 5,
		StatusBusBuffer:    256,
		HITLSampleRates: RiskSampleRate{
			Low:      0,
			Moderate: 0.1,
			High:     1.0,
		},
		Recovery: CoreRecoveryConfig{
			MaxRetries:  3,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  30 * time.Second,
		},
		RecordStorePath: ".corerun/runs.db",
	}
}

// LoadCoreConfig reads .corerun/config.yaml at path, merging it over
// DefaultCoreConfig(). A missing file is not an error — it just means
// every field stays at its default (environment overrides still apply).
func LoadCoreConfig(path string) (*CoreConfig, error) {
	cfg := DefaultCoreConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyCoreEnvOverrides(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyCoreEnvOverrides(cfg)
	return cfg, nil
}

// applyCoreEnvOverrides lets CORERUN_MAX_CONCURRENCY, CORERUN_TASK_TIMEOUT
// and CORERUN_RECORD_STORE_PATH override the loaded file without editing it.
func applyCoreEnvOverrides(cfg *CoreConfig) {
	if val := os.Getenv("CORERUN_MAX_CONCURRENCY"); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			cfg.MaxConcurrency = n
		}
	}
	if val := os.Getenv("CORERUN_TASK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.TaskTimeout = d
		}
	}
	if val := os.Getenv("CORERUN_RECORD_STORE_PATH"); val != "" {
		cfg.RecordStorePath = val
	}
}

// WatchCoreConfig watches path for changes and invokes onChange with the
// freshly reloaded config whenever it's edited. It does not reload
// mid-run — models.DAG is immutable once an Orchestrator.Execute call has
// started — callers should only apply a reload between runs, e.g. to pick
// up a changed TaskTimeout for the next query.
func WatchCoreConfig(path string, onChange func(*CoreConfig)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: start watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadCoreConfig(path)
				if err != nil {
					continue
				}
				onChange(cfg)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
