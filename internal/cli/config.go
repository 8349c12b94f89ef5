package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tabshelf/internal/logging"
	"github.com/mesh-intelligence/tabshelf/internal/paths"
	"github.com/mesh-intelligence/tabshelf/internal/remote"
	"github.com/mesh-intelligence/tabshelf/internal/sqlite"
	"github.com/mesh-intelligence/tabshelf/internal/watch"
)

// Config keys read from config.yaml.
const (
	cfgKeyDataDir            = "data_dir"
	cfgKeyLogLevel           = "log.level"
	cfgKeyLogFile            = "log.file"
	cfgKeyLogMaxSizeMB       = "log.max_size_mb"
	cfgKeyLogMaxBackups      = "log.max_backups"
	cfgKeySyncQuota          = "storage.sync_quota_bytes"
	cfgKeySyncItemQuota      = "storage.sync_item_quota_bytes"
	cfgKeyLocalQuota         = "storage.local_quota_bytes"
	cfgKeyCacheTTL           = "cache.ttl"
	cfgKeyRemoteTimeout      = "remote.timeout"
	cfgKeyRemoteRetry        = "remote.retry_attempts"
	cfgKeyRemoteTable        = "remote.table"
	cfgKeyWatchDebounce      = "watch.debounce"
	envPrefix                = "TABSHELF"
	defaultRetryAttempts     = 1
	defaultCacheTTL          = 24 * time.Hour
	configFileType           = "yaml"
	configFileNameWithoutExt = "config"
)

// envKeys may be overridden by TABSHELF_<KEY> variables. data_dir is
// absent: TABSHELF_DATA_DIR ranks below config.yaml and is handled by
// paths.ResolveDataDir.
var envKeys = []string{
	cfgKeyLogLevel, cfgKeyLogFile, cfgKeyLogMaxSizeMB, cfgKeyLogMaxBackups,
	cfgKeySyncQuota, cfgKeySyncItemQuota, cfgKeyLocalQuota,
	cfgKeyCacheTTL, cfgKeyRemoteTimeout, cfgKeyRemoteRetry, cfgKeyRemoteTable,
	cfgKeyWatchDebounce,
}

// fileConfig is the layout of config.yaml written on first run.
type fileConfig struct {
	DataDir string `yaml:"data_dir"`
	Log     struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Storage struct {
		SyncQuotaBytes     int `yaml:"sync_quota_bytes"`
		SyncItemQuotaBytes int `yaml:"sync_item_quota_bytes"`
		LocalQuotaBytes    int `yaml:"local_quota_bytes"`
	} `yaml:"storage"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Remote struct {
		Timeout       string `yaml:"timeout"`
		RetryAttempts int    `yaml:"retry_attempts"`
		Table         string `yaml:"table"`
	} `yaml:"remote"`
	Watch struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"watch"`
}

func defaultFileConfig() fileConfig {
	var c fileConfig
	c.Log.Level = "info"
	c.Log.MaxSizeMB = logging.DefaultMaxSizeMB
	c.Log.MaxBackups = logging.DefaultMaxBackups
	c.Storage.SyncQuotaBytes = sqlite.DefaultSyncQuotaBytes
	c.Storage.SyncItemQuotaBytes = sqlite.DefaultSyncItemQuotaBytes
	c.Storage.LocalQuotaBytes = sqlite.DefaultLocalQuotaBytes
	c.Cache.TTL = defaultCacheTTL.String()
	c.Remote.Timeout = remote.DefaultTimeout.String()
	c.Remote.RetryAttempts = defaultRetryAttempts
	c.Remote.Table = remote.DefaultTable
	c.Watch.Debounce = watch.DefaultDebounce.String()
	return c
}

const configHeader = "# tabshelf configuration. Flags override these values; TABSHELF_<SECTION>_<KEY>\n" +
	"# environment variables override everything except data_dir.\n"

// loadConfig reads config.yaml from configDir, writing the defaults on
// first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileNameWithoutExt)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultFileConfig()
	v.SetDefault(cfgKeyLogLevel, d.Log.Level)
	v.SetDefault(cfgKeyLogMaxSizeMB, d.Log.MaxSizeMB)
	v.SetDefault(cfgKeyLogMaxBackups, d.Log.MaxBackups)
	v.SetDefault(cfgKeySyncQuota, d.Storage.SyncQuotaBytes)
	v.SetDefault(cfgKeySyncItemQuota, d.Storage.SyncItemQuotaBytes)
	v.SetDefault(cfgKeyLocalQuota, d.Storage.LocalQuotaBytes)
	v.SetDefault(cfgKeyCacheTTL, d.Cache.TTL)
	v.SetDefault(cfgKeyRemoteTimeout, d.Remote.Timeout)
	v.SetDefault(cfgKeyRemoteRetry, d.Remote.RetryAttempts)
	v.SetDefault(cfgKeyRemoteTable, d.Remote.Table)
	v.SetDefault(cfgKeyWatchDebounce, d.Watch.Debounce)
}

// ensureDefaultConfigFile writes config.yaml when it does not exist.
func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	body, err := yaml.Marshal(defaultFileConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), body...), 0o644)
}

// settings are the resolved runtime settings of one invocation.
type settings struct {
	DataDir       string
	Log           logging.Options
	Storage       sqlite.Config
	CacheTTL      time.Duration
	Remote        remote.Options
	RetryAttempts int
	WatchDebounce time.Duration
}

func (s *state) settings() (settings, error) {
	v := s.cfg
	dataDir, err := paths.ResolveDataDir(s.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}
	level := s.logLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	out := settings{
		DataDir: dataDir,
		Log: logging.Options{
			Level:      level,
			File:       v.GetString(cfgKeyLogFile),
			MaxSizeMB:  v.GetInt(cfgKeyLogMaxSizeMB),
			MaxBackups: v.GetInt(cfgKeyLogMaxBackups),
		},
		Storage: sqlite.Config{
			DataDir:            dataDir,
			SyncQuotaBytes:     v.GetInt(cfgKeySyncQuota),
			SyncItemQuotaBytes: v.GetInt(cfgKeySyncItemQuota),
			LocalQuotaBytes:    v.GetInt(cfgKeyLocalQuota),
		},
		CacheTTL: v.GetDuration(cfgKeyCacheTTL),
		Remote: remote.Options{
			Table:   v.GetString(cfgKeyRemoteTable),
			Timeout: v.GetDuration(cfgKeyRemoteTimeout),
		},
		RetryAttempts: v.GetInt(cfgKeyRemoteRetry),
		WatchDebounce: v.GetDuration(cfgKeyWatchDebounce),
	}
	// Zero in the file means no retries; the data manager reads zero as
	// its default.
	if out.RetryAttempts == 0 {
		out.RetryAttempts = -1
	}
	return out, nil
}
