package config

import (
	"fmt"
	"sync"
)

var (
	mu      sync.RWMutex
	current *Config
	once    sync.Once
)

// Initialize loads the process configuration from path, falling back to
// defaults when the file does not exist. Only the first call has an effect.
func Initialize(path string) error {
	var err error
	once.Do(func() {
		var cfg *Config
		if cfg, err = LoadOrDefault(path); err == nil {
			SetConfig(cfg)
		}
	})
	return err
}

// GetConfig returns the process configuration, or nil before Initialize.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetConfig installs cfg as the process configuration.
func SetConfig(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// Reload re-reads path and installs the result. It returns the configuration
// that was replaced alongside the new one. A file that fails to load or
// validate leaves the installed configuration in place.
func Reload(path string) (prev, next *Config, err error) {
	next, err = LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	mu.Lock()
	prev, current = current, next
	mu.Unlock()
	return prev, next, nil
}
