package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kataras/golog"
)

// ConfigPathEnv overrides the default config file location.
const ConfigPathEnv = "AGENTTRADER_CONFIG"

const defaultDebounce = 300 * time.Millisecond

// Manager owns the JSON config file. Changes made through Update and edits on
// disk are validated, then delivered to every listener registered by Watch.
type Manager struct {
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	cfg       Config
	listeners []func(Config)
	watching  bool

	// set while the manager itself writes the file, so the resulting fs
	// events are not treated as external edits
	selfWrite atomic.Bool
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
}

type ManagerOption func(*managerOptions)

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, "config.json")
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithInitialConfig seeds a config file that does not exist yet.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{debounce: defaultDebounce}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := loadOrCreateConfig(path, options.initialConfig)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cfg: cfg, debounce: options.debounce}, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON overlays a partial JSON document on the current config.
func (m *Manager) UpdateFromJSON(jsonStr string) error {
	cfg := m.Get()
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Update validates cfg, writes it to disk and notifies listeners. An
// unchanged config is a no-op.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return nil
	}

	m.selfWrite.Store(true)
	defer time.AfterFunc(m.debounce, func() { m.selfWrite.Store(false) })

	if err := writeConfigFile(m.path, cfg); err != nil {
		m.selfWrite.Store(false)
		return err
	}
	m.apply(cfg)
	return nil
}

// Watch registers fn for config changes and, on the first call, starts
// watching the file until ctx is done.
func (m *Manager) Watch(ctx context.Context, fn func(Config)) error {
	m.mu.Lock()
	if fn != nil {
		m.listeners = append(m.listeners, fn)
	}
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.setWatching(false)
		return err
	}
	// the directory is watched so atomic renames over the file are seen
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		m.setWatching(false)
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) setWatching(v bool) {
	m.mu.Lock()
	m.watching = v
	m.mu.Unlock()
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer m.setWatching(false)

	reload := newDebouncer(m.debounce, m.reloadFromDisk)
	defer reload.stop()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if m.isConfigEvent(evt) && !m.selfWrite.Load() {
				reload.trigger()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			golog.Warnf("config watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) isConfigEvent(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// reloadFromDisk re-reads the file after an external edit. A deleted file is
// recreated from defaults; an invalid one is ignored.
func (m *Manager) reloadFromDisk() {
	cfg, err := loadConfigFromFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		err = writeConfigFile(m.path, cfg)
	}
	if err != nil {
		golog.Errorf("config reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		golog.Warnf("config validation failed, keeping previous config: %v", err)
		return
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return
	}
	golog.Infof("config reloaded from %s", m.path)
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// debouncer runs fn once after calls to trigger stop arriving for delay.
type debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func loadOrCreateConfig(path string, initial *Config) (Config, error) {
	cfg, err := loadConfigFromFile(path)
	switch {
	case err == nil:
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if initial != nil {
		cfg = *initial
	} else {
		cfg = *DefaultConfigWithRoot(filepath.Dir(path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return Config{}, fmt.Errorf("write initial config: %w", err)
	}
	return cfg, nil
}

// defaultConfigPath is $AGENTTRADER_CONFIG, else agenttrader/config.json in
// the user config dir, else in the working directory.
func defaultConfigPath() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "agenttrader", "config.json"), nil
}

// loadConfigFromFile decodes the JSON file over the defaults and refreshes
// the env-only secrets, which are never serialized.
func loadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	base := DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, base); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	base.LoadSecrets()
	return *base, nil
}

// writeConfigFile replaces the file atomically through a temp file in the
// same directory.
func writeConfigFile(path string, cfg Config) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	cleanup := func(err error) error {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&cfg); err != nil {
		return cleanup(fmt.Errorf("encode config: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("flush config: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
