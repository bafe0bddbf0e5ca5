package service

import (
	"sync"

	"edu_insight_backend/internal/config"
)

// tunables 可热更新的分析参数。配置文件变更时由 app 层回调整体替换。
type tunables struct {
	mu  sync.RWMutex
	cfg config.AnalyticsConfig
}

func (t *tunables) Config() config.AnalyticsConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

func (t *tunables) SetConfig(cfg config.AnalyticsConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}
