package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk TOML shape shared by the loader and the template.
type fileConfig struct {
	Shell    fileShell    `toml:"shell"`
	Device   fileDevice   `toml:"device"`
	Commands fileCommands `toml:"commands"`
	HTTP     fileHTTP     `toml:"http"`
	MQTT     fileMQTT     `toml:"mqtt"`
}

type fileShell struct {
	Path           string   `toml:"path"`
	Args           []string `toml:"args"`
	Env            []string `toml:"env"`
	ReadyMarker    string   `toml:"ready_marker"`
	ExitCommand    string   `toml:"exit_command"`
	Settle         string   `toml:"settle"`
	SettleMS       int64    `toml:"settle_ms,omitempty"`
	StartupTimeout string   `toml:"startup_timeout"`
	ExitGrace      string   `toml:"exit_grace"`
	NoiseMarkers   []string `toml:"noise_markers,omitempty"`
	SSH            fileSSH  `toml:"ssh"`
}

type fileSSH struct {
	Host                     string `toml:"host"`
	Port                     string `toml:"port"`
	User                     string `toml:"user"`
	KeyPath                  string `toml:"key_path"`
	KnownHosts               string `toml:"known_hosts"`
	InsecureSkipHostKeyCheck bool   `toml:"insecure_skip_host_key_check"`
	Timeout                  string `toml:"timeout"`
}

type fileDevice struct {
	NodeID     string `toml:"node_id"`
	EndpointID string `toml:"endpoint_id"`
}

type fileCommands struct {
	On     string `toml:"on"`
	Off    string `toml:"off"`
	Toggle string `toml:"toggle"`
	Read   string `toml:"read"`
	List   string `toml:"list"`
}

type fileHTTP struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CORSOrigins []string `toml:"cors_origins"`
}

type fileMQTT struct {
	Broker      string `toml:"broker"`
	TopicPrefix string `toml:"topic_prefix"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	QoS         int    `toml:"qos"`
	QueueSize   int    `toml:"queue_size"`
}

// applyTo copies only the keys present in the file onto cfg.
func (raw fileConfig) applyTo(cfg *Config, meta toml.MetaData) error {
	s := raw.Shell
	setString(meta, &cfg.Shell.Path, s.Path, "shell", "path")
	if meta.IsDefined("shell", "args") {
		cfg.Shell.Args = s.Args
	}
	if meta.IsDefined("shell", "env") {
		cfg.Shell.Env = s.Env
	}
	if meta.IsDefined("shell", "ready_marker") {
		cfg.Shell.Executor.ReadyMarker = s.ReadyMarker
	}
	setString(meta, &cfg.Shell.Executor.ExitCommand, s.ExitCommand, "shell", "exit_command")
	if err := setDuration(meta, &cfg.Shell.Executor.SettleDelay, s.Settle, "shell", "settle"); err != nil {
		return err
	}
	if meta.IsDefined("shell", "settle_ms") {
		cfg.Shell.Executor.SettleDelay = time.Duration(s.SettleMS) * time.Millisecond
	}
	if err := setDuration(meta, &cfg.Shell.Executor.StartupTimeout, s.StartupTimeout, "shell", "startup_timeout"); err != nil {
		return err
	}
	if err := setDuration(meta, &cfg.Shell.Executor.ExitGrace, s.ExitGrace, "shell", "exit_grace"); err != nil {
		return err
	}
	if meta.IsDefined("shell", "noise_markers") {
		cfg.Shell.Executor.NoiseMarkers = nonNil(s.NoiseMarkers)
	}

	ssh := s.SSH
	setString(meta, &cfg.Shell.SSH.Host, ssh.Host, "shell", "ssh", "host")
	setString(meta, &cfg.Shell.SSH.Port, ssh.Port, "shell", "ssh", "port")
	setString(meta, &cfg.Shell.SSH.User, ssh.User, "shell", "ssh", "user")
	setString(meta, &cfg.Shell.SSH.KeyPath, ssh.KeyPath, "shell", "ssh", "key_path")
	setString(meta, &cfg.Shell.SSH.KnownHostsPath, ssh.KnownHosts, "shell", "ssh", "known_hosts")
	if meta.IsDefined("shell", "ssh", "insecure_skip_host_key_check") {
		cfg.Shell.SSH.InsecureSkipHostKeyChecking = ssh.InsecureSkipHostKeyCheck
	}
	if err := setDuration(meta, &cfg.Shell.SSH.Timeout, ssh.Timeout, "shell", "ssh", "timeout"); err != nil {
		return err
	}

	setString(meta, &cfg.Device.DefaultAddress.NodeID, raw.Device.NodeID, "device", "node_id")
	setString(meta, &cfg.Device.DefaultAddress.EndpointID, raw.Device.EndpointID, "device", "endpoint_id")

	cmds := raw.Commands
	setString(meta, &cfg.Device.Commands.On, cmds.On, "commands", "on")
	setString(meta, &cfg.Device.Commands.Off, cmds.Off, "commands", "off")
	setString(meta, &cfg.Device.Commands.Toggle, cmds.Toggle, "commands", "toggle")
	setString(meta, &cfg.Device.Commands.Read, cmds.Read, "commands", "read")
	setString(meta, &cfg.Device.Commands.List, cmds.List, "commands", "list")

	setString(meta, &cfg.HTTP.Addr, raw.HTTP.Addr, "http", "addr")
	setString(meta, &cfg.HTTP.Token, raw.HTTP.Token, "http", "token")
	if meta.IsDefined("http", "cors_origins") {
		cfg.HTTP.CORSOrigins = raw.HTTP.CORSOrigins
	}

	mqtt := raw.MQTT
	setString(meta, &cfg.MQTT.Broker, mqtt.Broker, "mqtt", "broker")
	setString(meta, &cfg.MQTT.TopicPrefix, mqtt.TopicPrefix, "mqtt", "topic_prefix")
	setString(meta, &cfg.MQTT.ClientID, mqtt.ClientID, "mqtt", "client_id")
	setString(meta, &cfg.MQTT.Username, mqtt.Username, "mqtt", "username")
	setString(meta, &cfg.MQTT.Password, mqtt.Password, "mqtt", "password")
	if meta.IsDefined("mqtt", "qos") {
		cfg.MQTT.QoS = mqtt.QoS
	}
	if meta.IsDefined("mqtt", "queue_size") {
		cfg.MQTT.QueueSize = mqtt.QueueSize
	}
	return nil
}

func setString(meta toml.MetaData, dst *string, v string, key ...string) {
	if meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(meta toml.MetaData, dst *time.Duration, v string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

// toFile renders cfg back into the on-disk shape.
func toFile(cfg Config) fileConfig {
	exec := cfg.Shell.Executor
	return fileConfig{
		Shell: fileShell{
			Path:           cfg.Shell.Path,
			Args:           cfg.Shell.Args,
			Env:            nonNil(cfg.Shell.Env),
			ReadyMarker:    exec.ReadyMarker,
			ExitCommand:    exec.ExitCommand,
			Settle:         exec.SettleDelay.String(),
			StartupTimeout: exec.StartupTimeout.String(),
			ExitGrace:      exec.ExitGrace.String(),
			NoiseMarkers:   exec.NoiseMarkers,
			SSH: fileSSH{
				Host:                     cfg.Shell.SSH.Host,
				Port:                     cfg.Shell.SSH.Port,
				User:                     cfg.Shell.SSH.User,
				KeyPath:                  cfg.Shell.SSH.KeyPath,
				KnownHosts:               cfg.Shell.SSH.KnownHostsPath,
				InsecureSkipHostKeyCheck: cfg.Shell.SSH.InsecureSkipHostKeyChecking,
				Timeout:                  cfg.Shell.SSH.Timeout.String(),
			},
		},
		Device: fileDevice{
			NodeID:     cfg.Device.DefaultAddress.NodeID,
			EndpointID: cfg.Device.DefaultAddress.EndpointID,
		},
		Commands: fileCommands{
			On:     cfg.Device.Commands.On,
			Off:    cfg.Device.Commands.Off,
			Toggle: cfg.Device.Commands.Toggle,
			Read:   cfg.Device.Commands.Read,
			List:   cfg.Device.Commands.List,
		},
		HTTP: fileHTTP{
			Addr:        cfg.HTTP.Addr,
			Token:       cfg.HTTP.Token,
			CORSOrigins: nonNil(cfg.HTTP.CORSOrigins),
		},
		MQTT: fileMQTT{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:         cfg.MQTT.QoS,
			QueueSize:   cfg.MQTT.QueueSize,
		},
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
