package configutil

import (
	"fmt"
	"sync"

	"github.com/theblitlabs/parity-ids/internal/config"
)

var (
	cachedConfig *config.Config
	cachedPath   string
	configMutex  sync.RWMutex
)

// GetConfig returns the built-in defaults, cached.
func GetConfig() (*config.Config, error) {
	return GetConfigWithPath("")
}

// GetConfigWithPath loads the configuration from a specific path. The result
// is cached per path; an empty path means defaults only.
func GetConfigWithPath(configPath string) (*config.Config, error) {
	configMutex.RLock()
	if cachedConfig != nil && cachedPath == configPath {
		defer configMutex.RUnlock()
		return cachedConfig, nil
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check after acquiring lock
	if cachedConfig != nil && cachedPath == configPath {
		return cachedConfig, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if configPath == "" {
			return nil, fmt.Errorf("failed to load default config: %w", err)
		}
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	cachedConfig = cfg
	cachedPath = configPath
	return cfg, nil
}

// ClearCache clears the cached configuration
func ClearCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	cachedConfig = nil
	cachedPath = ""
}
