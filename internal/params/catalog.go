package params

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kabuto/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Definition 描述一个调优参数：默认值、边界与说明。
// 目录定义"必须存在哪些参数"以及反馈回路允许写入的取值范围。
type Definition struct {
	Name        string  `mapstructure:"-"`
	Default     float64 `mapstructure:"default"`
	Min         float64 `mapstructure:"min"`
	Max         float64 `mapstructure:"max"`
	Description string  `mapstructure:"description"`
}

type catalogFile struct {
	Epoch      string                `mapstructure:"epoch"`
	Parameters map[string]Definition `mapstructure:"parameters"`
}

// CatalogSnapshot 对外暴露的只读快照。
type CatalogSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Epoch    time.Time
	Defs     map[string]Definition
}

// Names 返回目录内全部参数名，字典序。这也是快照解析的"必需名字集"。
func (s CatalogSnapshot) Names() []string {
	out := make([]string, 0, len(s.Defs))
	for name := range s.Defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definition 按名字取定义。
func (s CatalogSnapshot) Definition(name string) (Definition, bool) {
	def, ok := s.Defs[name]
	return def, ok
}

// Validate 校验一次写入：名字必须在目录内，值必须落在 [Min, Max]。
func (s CatalogSnapshot) Validate(name string, value float64) error {
	def, ok := s.Defs[name]
	if !ok {
		return &UnknownParameterError{Name: name}
	}
	if value < def.Min || value > def.Max {
		return &InvalidTuningValueError{Name: name, Value: value, Min: def.Min, Max: def.Max}
	}
	return nil
}

// Definitions 返回全部定义，按名字排序。用于种子写入。
func (s CatalogSnapshot) Definitions() []Definition {
	out := make([]Definition, 0, len(s.Defs))
	for _, name := range s.Names() {
		out = append(out, s.Defs[name])
	}
	return out
}

// CatalogListener 在目录热更新后被调用。
type CatalogListener func(CatalogSnapshot)

// Catalog 从 YAML 文件加载参数目录并监听热更新。
// 更新失败时保留旧快照，进程不中断。
type Catalog struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  CatalogSnapshot
	listeners []CatalogListener
}

// NewCatalog 读取目录文件。watch=true 时开始监听 FS 事件。
func NewCatalog(path string, watch bool) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("parameter catalog requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read parameter catalog failed: %w", err)
	}
	cat := &Catalog{path: path, v: v}
	if err := cat.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := cat.reload(); err != nil {
				logger.Errorf("parameter catalog reload failed (%s): %v", evt.Name, err)
				return
			}
			cat.notify()
		})
		v.WatchConfig()
	}
	return cat, nil
}

// Snapshot 返回当前目录快照。
func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneCatalogSnapshot(c.snapshot)
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (c *Catalog) Subscribe(fn CatalogListener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	snap := cloneCatalogSnapshot(c.snapshot)
	c.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("catalog listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (c *Catalog) notify() {
	c.mu.RLock()
	snap := cloneCatalogSnapshot(c.snapshot)
	listeners := append([]CatalogListener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb CatalogListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("catalog listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (c *Catalog) reload() error {
	var file catalogFile
	if err := c.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse parameter catalog failed: %w", err)
	}
	if len(file.Parameters) == 0 {
		return fmt.Errorf("parameter catalog is empty")
	}
	epoch, err := time.Parse("2006-01-02", strings.TrimSpace(file.Epoch))
	if err != nil {
		return fmt.Errorf("parameter catalog epoch invalid: %w", err)
	}
	defs := make(map[string]Definition, len(file.Parameters))
	for name, def := range file.Parameters {
		norm, err := normalizeDefinition(name, def)
		if err != nil {
			return err
		}
		defs[norm.Name] = norm
	}
	c.mu.Lock()
	c.snapshot = CatalogSnapshot{
		Version:  c.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Epoch:    epoch,
		Defs:     defs,
	}
	c.mu.Unlock()
	logger.Infof("parameter catalog loaded %d definitions from %s", len(defs), filepath.Base(c.path))
	return nil
}

func normalizeDefinition(name string, def Definition) (Definition, error) {
	def.Name = strings.TrimSpace(name)
	if def.Name == "" {
		return def, fmt.Errorf("parameter catalog contains unnamed entry")
	}
	if def.Min > def.Max {
		return def, fmt.Errorf("parameter %s: min %v > max %v", def.Name, def.Min, def.Max)
	}
	if def.Default < def.Min || def.Default > def.Max {
		return def, fmt.Errorf("parameter %s: default %v outside [%v, %v]", def.Name, def.Default, def.Min, def.Max)
	}
	def.Description = strings.TrimSpace(def.Description)
	return def, nil
}

func cloneCatalogSnapshot(src CatalogSnapshot) CatalogSnapshot {
	dst := CatalogSnapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Epoch:    src.Epoch,
		Defs:     make(map[string]Definition, len(src.Defs)),
	}
	for name, def := range src.Defs {
		dst.Defs[name] = def
	}
	return dst
}
