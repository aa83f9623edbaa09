// Package config holds the process-wide configuration for a dogma
// replica: data directory layout, coordination store endpoints, worker
// pool sizes, and cron schedules. It follows the teacher's
// singleton-with-callbacks shape so the Replication Log can broadcast a
// read-only mode flip to every subsystem without each of them polling.
package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// Config is loaded once at startup and may be replaced at runtime by a
// replicated UPDATE_SERVER_STATUS command.
type Config struct {
	// DataDir is the root of the persisted state: the project manifest
	// (projects.json), the replication position (replication_state.json),
	// each repository's object store under <DataDir>/<project>/<repo>/objects,
	// and the _sessions, _credentials and _mirrors directories.
	DataDir string `yaml:"dataDir"`

	// ReplicaID identifies this process in the replication log.
	ReplicaID string `yaml:"replicaId"`

	// Zone optionally pins this replica for zone-scoped mirror tasks.
	Zone string `yaml:"zone,omitempty"`

	// CoordinationEndpoints are etcd client endpoints backing the
	// coordination store. Empty means use the in-memory store (a
	// single-replica deployment or a test).
	CoordinationEndpoints []string `yaml:"coordinationEndpoints,omitempty"`

	// ComputeWorkers bounds how many repositories' object stores the
	// server opens in parallel at startup. Defaults to runtime.NumCPU()
	// when zero. Commit and query calls are not pooled; they run on the
	// caller's goroutine.
	ComputeWorkers int `yaml:"computeWorkers,omitempty"`

	// MirrorWorkers sizes the mirror scheduler's worker pool.
	MirrorWorkers int `yaml:"mirrorWorkers,omitempty"`

	// SessionSweepCron is the cron expression for the session expiration
	// sweeper. Defaults to every minute.
	SessionSweepCron string `yaml:"sessionSweepCron,omitempty"`

	// ReadOnly puts the server in replication-only mode: non-administrative
	// pushes are rejected with ReadOnly. Mutated by UPDATE_SERVER_STATUS.
	ReadOnly bool `yaml:"readOnly,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:          "./data",
		ComputeWorkers:   0,
		MirrorWorkers:    4,
		SessionSweepCron: "0 * * * * *",
	}
}

// ReadFile loads a Config from a YAML file, applying defaults for any
// field the file leaves unset.
func ReadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	mu        sync.RWMutex
	current   *Config
	callbacks = map[int]func(*Config) error{}
	nextID    int
)

// Set installs cfg as the process-wide configuration without notifying
// OnChange callbacks. Used once at startup.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}

// Get returns the current process-wide configuration. It panics if Set
// has never been called, matching the teacher's fail-fast idiom for a
// config accessed before initialization.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		panic("config.Get() called before Set()")
	}
	return current
}

// OnChange registers f to run whenever SetAndTrigger installs a new
// Config, e.g. when a replicated UPDATE_SERVER_STATUS command flips
// ReadOnly. The registration is removed when id is unregistered via
// Unregister, or never, for process-lifetime observers.
func OnChange(f func(*Config) error) (id int) {
	mu.Lock()
	defer mu.Unlock()
	nextID++
	id = nextID
	callbacks[id] = f
	return id
}

// Unregister removes a callback registered with OnChange.
func Unregister(id int) {
	mu.Lock()
	defer mu.Unlock()
	delete(callbacks, id)
}

// SetAndTrigger installs cfg and runs every registered OnChange callback.
// The first callback error aborts the remaining callbacks and is returned;
// cfg is installed regardless, matching the log-already-committed
// semantics of a replayed command.
func SetAndTrigger(cfg *Config) error {
	mu.Lock()
	current = cfg
	cbs := make([]func(*Config) error, 0, len(callbacks))
	for _, f := range callbacks {
		cbs = append(cbs, f)
	}
	mu.Unlock()

	for _, f := range cbs {
		if err := f(cfg); err != nil {
			return err
		}
	}
	return nil
}
