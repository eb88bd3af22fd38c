package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"sable/internal/logger"
)

// ChangeListener 在配置热重载成功后触发。
type ChangeListener func(*Config)

// Watcher 持有当前配置快照并监听文件变更。
// 只有可热更的字段（权重、阈值、风控比例）会被引擎动态读取，
// 结构性字段（symbols、监听地址等）重载后仍需重启生效。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	loadedAt  time.Time
	listeners []ChangeListener
}

// NewWatcher 读取配置文件并监听更新。
func NewWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &Watcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed, keeping previous config: %v", err)
			return
		}
		logger.Infof("config reloaded from %s", w.path)
		w.notifyListeners()
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return err
	}
	cfg, err := decode(w.v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	w.loadedAt = time.Now()
	w.mu.Unlock()
	return nil
}

// Current 返回当前配置快照。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange 注册重载回调。
func (w *Watcher) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) notifyListeners() {
	w.mu.RLock()
	cfg := w.current
	listeners := make([]ChangeListener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}
