// Package config loads headloc configuration with viper and reloads it on change.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides, e.g. HEADLOC_LOCATOR_FUZZY_THRESHOLD.
const EnvPrefix = "HEADLOC"

// ${NAME} or ${NAME:-fallback}
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Manager owns the effective configuration: defaults, then the config
// file, then HEADLOC_* environment variables.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	logger    *slog.Logger
	callbacks []func(*Config)
	reloads   int
}

// NewManager reads cfgFile, or searches ./config.yaml and
// $HOME/.headloc/config.yaml when it is empty. A missing file is not an
// error; the defaults apply.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()
	for _, entry := range DefaultEntries() {
		v.SetDefault(entry.Key, entry.Value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.headloc")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cm := &Manager{v: v}
	cfg, err := cm.decode()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

func (cm *Manager) decode() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// SetLogger sets the logger used to report rejected reloads.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the config file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Reloads returns how many file changes were applied.
func (cm *Manager) Reloads() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.reloads
}

// OnChange registers fn to run after each applied reload.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the configuration whenever the file changes.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.apply(e.Name)
	})
	cm.v.WatchConfig()
}

// apply swaps in the re-read configuration. An edit that fails to decode or
// validate is logged and the previous configuration stays in effect.
func (cm *Manager) apply(name string) {
	cfg, err := cm.decode()

	cm.mu.Lock()
	logger := cm.logger
	if err != nil {
		cm.mu.Unlock()
		if logger != nil {
			logger.Warn("ignoring config change", "file", name, "error", err)
		}
		return
	}
	cm.config = cfg
	cm.reloads++
	callbacks := slices.Clone(cm.callbacks)
	cm.mu.Unlock()

	if logger != nil {
		logger.Info("config reloaded", "file", name)
	}
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// ResolveEnvVars expands ${NAME} and ${NAME:-fallback} references. An unset
// variable without a fallback expands to "".
func ResolveEnvVars(value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		m := envRef.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}

const defaultHeader = `# headloc configuration
# Every key can be overridden with HEADLOC_<SECTION>_<KEY>, e.g.
#   HEADLOC_LOCATOR_FUZZY_THRESHOLD=0.85
# Secrets use ${ENV_VAR} or ${ENV_VAR:-fallback}; export OPENAI_API_KEY
# before enabling semantic scoring. 'headloc config defaults' lists every key.

`

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
