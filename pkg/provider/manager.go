package provider

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderManager 提供商管理器
// 按名称注册数据点提供商，供服务端与调度器按配置选择
type ProviderManager struct {
	providers map[string]DatapointsProvider
	mu        sync.RWMutex
}

// NewProviderManager 创建新的提供商管理器
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		providers: make(map[string]DatapointsProvider),
	}
}

// Register 注册数据点提供商，同名覆盖
func (m *ProviderManager) Register(name string, p DatapointsProvider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[name] = p
	return nil
}

// Get 获取数据点提供商
func (m *ProviderManager) Get(name string) (DatapointsProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, exists := m.providers[name]; exists {
		return p, nil
	}
	return nil, fmt.Errorf("datapoints provider '%s' not found", name)
}

// List 列出所有已注册的提供商名称，按字母排序
func (m *ProviderManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Healthy 返回各提供商的健康状态
func (m *ProviderManager) Healthy() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.providers))
	for name, p := range m.providers {
		status[name] = p.IsHealthy()
	}
	return status
}

// Unregister 注销提供商
func (m *ProviderManager) Unregister(name string) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; !exists {
		return fmt.Errorf("provider '%s' not found", name)
	}
	delete(m.providers, name)
	return nil
}

// Close 关闭管理器，清理所有提供商资源
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errors []error
	for name, p := range m.providers {
		if closable, ok := p.(Closable); ok {
			if err := closable.Close(); err != nil {
				errors = append(errors, fmt.Errorf("error closing provider '%s': %w", name, err))
			}
		}
	}

	m.providers = make(map[string]DatapointsProvider)

	if len(errors) > 0 {
		return fmt.Errorf("errors occurred while closing providers: %v", errors)
	}
	return nil
}
