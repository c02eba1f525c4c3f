package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/publish"
	"github.com/danmuck/matterctl/internal/shell"
)

const (
	EnvNodeID     = "MATTERCTL_NODE_ID"
	EnvEndpointID = "MATTERCTL_ENDPOINT_ID"
	EnvSettleMS   = "MATTERCTL_SETTLE_MS"
	EnvShellPath  = "MATTERCTL_SHELL"
	EnvHTTPToken  = "MATTERCTL_HTTP_TOKEN"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved runtime configuration.
type Config struct {
	Shell  ShellConfig
	Device device.Config
	HTTP   HTTPConfig
	MQTT   MQTTConfig
}

type ShellConfig struct {
	Path     string
	Args     []string
	Env      []string
	Executor shell.Config
	SSH      SSHConfig
}

// SSHConfig runs the shell on a remote host when Host is set.
type SSHConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func (c SSHConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// HTTPConfig protects the /devices routes with Token when it is set.
// CORSOrigins lists the browser origins allowed to call the API.
type HTTPConfig struct {
	Addr        string
	Token       string
	CORSOrigins []string
}

// MQTTConfig publishes operation results when Broker is set.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         int
	QueueSize   int
}

func (c MQTTConfig) Enabled() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// Default leaves the noise markers unset; finalize derives them from
// whatever ready marker is in effect once the file and env are applied.
func Default() Config {
	executor := shell.DefaultConfig()
	executor.NoiseMarkers = nil
	return Config{
		Shell: ShellConfig{
			Path:     "chip-tool",
			Args:     []string{"interactive", "start"},
			Executor: executor,
			SSH:      SSHConfig{Timeout: 10 * time.Second},
		},
		Device: device.DefaultConfig(),
		HTTP:   HTTPConfig{Addr: "127.0.0.1:8080"},
		MQTT: MQTTConfig{
			TopicPrefix: "matterctl",
			ClientID:    "matterctl",
			QueueSize:   publish.DefaultQueueSize,
		},
	}
}

// Load reads a TOML file over the defaults, applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}
	if err := raw.applyTo(&cfg, meta); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return finalize(cfg)
}

// LoadOrDefault loads path when it exists. An empty path or a missing file
// yields the defaults with env overrides applied.
func LoadOrDefault(path string) (Config, error) {
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
	}
	return finalize(Default())
}

func finalize(cfg Config) (Config, error) {
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Shell.Executor.NoiseMarkers == nil {
		cfg.Shell.Executor.NoiseMarkers = shell.DefaultNoiseMarkers(cfg.Shell.Executor.ReadyMarker)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvNodeID)); v != "" {
		cfg.Device.DefaultAddress.NodeID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEndpointID)); v != "" {
		cfg.Device.DefaultAddress.EndpointID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSettleMS)); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvSettleMS, v, err)
		}
		cfg.Shell.Executor.SettleDelay = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv(EnvShellPath)); v != "" {
		cfg.Shell.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPToken)); v != "" {
		cfg.HTTP.Token = v
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Shell.Path) == "" {
		return fmt.Errorf("%w: shell path is required", ErrInvalidConfig)
	}
	exec := cfg.Shell.Executor
	if exec.ReadyMarker == "" {
		return fmt.Errorf("%w: shell ready_marker is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(exec.ExitCommand) == "" {
		return fmt.Errorf("%w: shell exit_command is required", ErrInvalidConfig)
	}
	if exec.SettleDelay < 0 || exec.StartupTimeout < 0 || exec.ExitGrace < 0 {
		return fmt.Errorf("%w: shell durations must not be negative", ErrInvalidConfig)
	}
	if cfg.Shell.SSH.Enabled() {
		if strings.TrimSpace(cfg.Shell.SSH.User) == "" {
			return fmt.Errorf("%w: ssh user is required when ssh host is set", ErrInvalidConfig)
		}
		if strings.TrimSpace(cfg.Shell.SSH.KeyPath) == "" {
			return fmt.Errorf("%w: ssh key_path is required when ssh host is set", ErrInvalidConfig)
		}
		if port := strings.TrimSpace(cfg.Shell.SSH.Port); port != "" {
			if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("%w: ssh port %q out of range", ErrInvalidConfig, port)
			}
		}
	}
	if err := cfg.Device.DefaultAddress.Validate(); err != nil {
		return fmt.Errorf("%w: [device] %v", ErrInvalidConfig, err)
	}
	if err := cfg.Device.Commands.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if cfg.MQTT.QueueSize < 0 {
		return fmt.Errorf("%w: mqtt queue_size must not be negative", ErrInvalidConfig)
	}
	for _, origin := range cfg.HTTP.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("%w: http cors_origins must not contain empty entries", ErrInvalidConfig)
		}
	}
	return nil
}
