package universe

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kabuto/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Snapshot 是某一时刻的待分析股票清单。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Tickers  []string
}

type universeFile struct {
	Tickers []string `mapstructure:"tickers"`
}

// Universe 从 YAML 文件加载股票清单，可选热更新。
// 清单顺序即文件顺序；重复代码只保留第一次出现。
type Universe struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// Load 读取清单文件。watch=true 时监听文件变化，失败的热更新保留旧清单。
func Load(path string, watch bool) (*Universe, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("universe requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read universe file failed: %w", err)
	}
	u := &Universe{path: path, v: v}
	if err := u.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := u.reload(); err != nil {
				logger.Errorf("universe reload failed (%s): %v", evt.Name, err)
			}
		})
		v.WatchConfig()
	}
	return u, nil
}

// Snapshot 返回当前清单快照，切片为拷贝。
func (u *Universe) Snapshot() Snapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	snap := u.snapshot
	snap.Tickers = append([]string(nil), u.snapshot.Tickers...)
	return snap
}

// Size 返回当前清单长度。
func (u *Universe) Size() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.snapshot.Tickers)
}

func (u *Universe) reload() error {
	var file universeFile
	if err := u.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse universe file failed: %w", err)
	}
	tickers := normalizeTickers(file.Tickers)
	if len(tickers) == 0 {
		return fmt.Errorf("universe file lists no tickers")
	}
	u.mu.Lock()
	u.snapshot = Snapshot{
		Version:  u.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Tickers:  tickers,
	}
	u.mu.Unlock()
	logger.Infof("universe loaded %d tickers from %s", len(tickers), filepath.Base(u.path))
	return nil
}

func normalizeTickers(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
