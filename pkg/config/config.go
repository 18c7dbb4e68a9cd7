// Package config loads the process configuration from config.yaml and
// CTLBRIDGE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CTLBRIDGE_REMOTE_SEND_PORT.
const EnvPrefix = "CTLBRIDGE"

// File names inside the data directory.
const (
	FileName        = "config.yaml"
	LogFileName     = "ctlbridge.log"
	ProfilesDirName = "profiles"
)

// Config errors.
var (
	ErrInvalidWorkers = errors.New("workers must be at least 1")
	ErrInvalidPort    = errors.New("port out of range")
	ErrInvalidValue   = errors.New("invalid configuration value")
)

// Config holds the process configuration.
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	Workers   int    `mapstructure:"workers"`
	Language  string `mapstructure:"language"`
	Console   bool   `mapstructure:"console"`
	TraceFile string `mapstructure:"trace_file"`

	Log         LogConfig         `mapstructure:"log"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Instance    InstanceConfig    `mapstructure:"instance"`
	Version     VersionConfig     `mapstructure:"version"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Profile     ProfileConfig     `mapstructure:"profile"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// LogConfig configures the application log file.
type LogConfig struct {
	Path       string `mapstructure:"path"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RemoteConfig locates the host plugin sockets.
type RemoteConfig struct {
	Host        string `mapstructure:"host"`
	SendPort    int    `mapstructure:"send_port"`
	ReceivePort int    `mapstructure:"receive_port"`
}

// InstanceConfig configures the single-instance guard.
type InstanceConfig struct {
	Address string `mapstructure:"address"`
}

// VersionConfig configures the update check. An empty URL disables it.
type VersionConfig struct {
	URL         string        `mapstructure:"url"`
	CheckDelay  time.Duration `mapstructure:"check_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// DiagnosticsConfig configures the metrics and health endpoint. An empty
// address disables it.
type DiagnosticsConfig struct {
	Address string `mapstructure:"address"`
}

// ProfileConfig configures profile handling.
type ProfileConfig struct {
	// Directory is the initial profile directory when preferences name none.
	Directory string `mapstructure:"directory"`

	// Autosave is the interval for saving the default profile while
	// running. Zero disables it.
	Autosave time.Duration `mapstructure:"autosave"`
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ctlbridge")
	}
	return filepath.Join(os.TempDir(), "ctlbridge")
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("workers", 2)
	v.SetDefault("language", "en")
	v.SetDefault("console", false)
	v.SetDefault("trace_file", "")

	v.SetDefault("log.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 1)
	v.SetDefault("log.max_backups", 1)

	v.SetDefault("remote.host", "127.0.0.1")
	v.SetDefault("remote.send_port", 58763)
	v.SetDefault("remote.receive_port", 58764)

	v.SetDefault("instance.address", "127.0.0.1:58765")

	v.SetDefault("version.url", "")
	v.SetDefault("version.check_delay", "5s")
	v.SetDefault("version.max_attempts", 4)

	v.SetDefault("diagnostics.address", "")

	v.SetDefault("profile.directory", "")
	v.SetDefault("profile.autosave", "5m")
}

// Load reads configuration. path names an explicit file which must exist;
// empty means config.yaml in CTLBRIDGE_DATA_DIR or the default data
// directory, which may be absent.
func Load(path string) (Config, error) {
	v := viper.New()

	dataDir := os.Getenv(EnvPrefix + "_DATA_DIR")
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	setDefaults(v, dataDir)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(dataDir)
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.File = v.ConfigFileUsed()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	for name, p := range map[string]int{
		"remote.send_port":    c.Remote.SendPort,
		"remote.receive_port": c.Remote.ReceivePort,
	} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPort, name, p)
		}
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidValue)
	}
	if c.Version.CheckDelay < 0 || c.Profile.Autosave < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidValue)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("%w: negative log rotation limit", ErrInvalidValue)
	}
	return nil
}

// SendAddress is the plugin socket that receives our commands.
func (c Config) SendAddress() string {
	return net.JoinHostPort(c.Remote.Host, strconv.Itoa(c.Remote.SendPort))
}

// ReceiveAddress is the plugin socket that sends us updates.
func (c Config) ReceiveAddress() string {
	return net.JoinHostPort(c.Remote.Host, strconv.Itoa(c.Remote.ReceivePort))
}

// LogPath returns the application log file path.
func (c Config) LogPath() string {
	if c.Log.Path != "" {
		return c.Log.Path
	}
	return filepath.Join(c.DataDir, LogFileName)
}

// ProfileDirectory returns the initial profile directory.
func (c Config) ProfileDirectory() string {
	if c.Profile.Directory != "" {
		return c.Profile.Directory
	}
	return filepath.Join(c.DataDir, ProfilesDirName)
}

// Path joins name to the data directory.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}
