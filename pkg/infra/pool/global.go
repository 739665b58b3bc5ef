package pool

import (
	"context"
	"sync"
	"time"
)

var (
	globalManager *Manager
	globalOnce    sync.Once
	globalMu      sync.RWMutex
)

// GlobalConfig configures the pools created by InitGlobalWithConfig.
type GlobalConfig struct {
	DefaultPool    *Config
	EmbeddingPool  *Config
	BackgroundPool *Config
	CustomPools    map[string]*Config
}

// DefaultGlobalConfig returns the standard three-pool configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		DefaultPool:    DefaultPoolConfig(),
		EmbeddingPool:  EmbeddingPoolConfig(),
		BackgroundPool: BackgroundPoolConfig(),
	}
}

// InitGlobal initializes the global manager with the default pools.
func InitGlobal() error {
	return InitGlobalWithConfig(DefaultGlobalConfig())
}

// InitGlobalWithConfig initializes the global manager once. Later calls
// return nil without reconfiguring.
func InitGlobalWithConfig(config *GlobalConfig) error {
	var initErr error

	globalOnce.Do(func() {
		globalMu.Lock()
		defer globalMu.Unlock()

		manager := NewManager()

		if config.DefaultPool != nil {
			if err := manager.RegisterWithType(DefaultPool, config.DefaultPool); err != nil {
				initErr = err
				return
			}
		}
		if config.EmbeddingPool != nil {
			if err := manager.RegisterWithType(EmbeddingPool, config.EmbeddingPool); err != nil {
				initErr = err
				return
			}
		}
		if config.BackgroundPool != nil {
			if err := manager.RegisterWithType(BackgroundPool, config.BackgroundPool); err != nil {
				initErr = err
				return
			}
		}
		for name, cfg := range config.CustomPools {
			if err := manager.Register(name, Type(name), cfg); err != nil {
				initErr = err
				return
			}
		}

		globalManager = manager
	})

	return initErr
}

// GetGlobal returns the global manager, or an error if not initialized.
func GetGlobal() (*Manager, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalManager == nil {
		return nil, ErrManagerNotInitialized
	}
	return globalManager, nil
}

// MustGetGlobal returns the global manager or panics.
func MustGetGlobal() *Manager {
	manager, err := GetGlobal()
	if err != nil {
		panic(err)
	}
	return manager
}

// CloseGlobal releases all global pools.
func CloseGlobal() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		return nil
	}

	err := globalManager.Close()
	globalManager = nil
	globalOnce = sync.Once{}
	return err
}

// CloseGlobalTimeout releases all global pools, waiting up to timeout each.
func CloseGlobalTimeout(timeout time.Duration) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		return nil
	}

	err := globalManager.ReleaseAllTimeout(timeout)
	globalManager = nil
	globalOnce = sync.Once{}
	return err
}

// ResetGlobal discards the global manager without releasing pools.
// Intended for tests.
func ResetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalManager = nil
	globalOnce = sync.Once{}
}

// Submit schedules a task on the global default pool.
func Submit(task func()) error {
	manager, err := GetGlobal()
	if err != nil {
		return err
	}
	return manager.Submit(string(DefaultPool), task)
}

// SubmitTo schedules a task on a named global pool.
func SubmitTo(poolName string, task func()) error {
	manager, err := GetGlobal()
	if err != nil {
		return err
	}
	return manager.Submit(poolName, task)
}

// SubmitToType schedules a task on the global pool for a type.
func SubmitToType(typ Type, task func()) error {
	return SubmitTo(string(typ), task)
}

// SubmitWithContext schedules a context-aware task on a named global pool.
func SubmitWithContext(ctx context.Context, poolName string, task func()) error {
	manager, err := GetGlobal()
	if err != nil {
		return err
	}
	return manager.SubmitWithContext(ctx, poolName, task)
}

// Register adds a pool to the global manager.
func Register(name string, typ Type, config *Config) error {
	manager, err := GetGlobal()
	if err != nil {
		return err
	}
	return manager.Register(name, typ, config)
}

// Get returns a named pool from the global manager.
func Get(name string) (*Pool, error) {
	manager, err := GetGlobal()
	if err != nil {
		return nil, err
	}
	return manager.Get(name)
}

// GetByType returns the global pool for a type.
func GetByType(typ Type) (*Pool, error) {
	return Get(string(typ))
}

// StatsGlobal returns stats for all global pools.
func StatsGlobal() (map[string]Info, error) {
	manager, err := GetGlobal()
	if err != nil {
		return nil, err
	}
	return manager.Stats(), nil
}
