package config

import (
	"github.com/danmuck/matterctl/internal/publish"
	"github.com/danmuck/matterctl/internal/shell"
)

// Spawner builds the local or SSH spawner selected by the shell section.
func Spawner(cfg ShellConfig) shell.Spawner {
	if cfg.SSH.Enabled() {
		return shell.SSHSpawner{
			Host:                        cfg.SSH.Host,
			Port:                        cfg.SSH.Port,
			User:                        cfg.SSH.User,
			KeyPath:                     cfg.SSH.KeyPath,
			KnownHostsPath:              cfg.SSH.KnownHostsPath,
			InsecureSkipHostKeyChecking: cfg.SSH.InsecureSkipHostKeyChecking,
			Timeout:                     cfg.SSH.Timeout,
			Path:                        cfg.Path,
			Args:                        cfg.Args,
		}
	}
	return shell.LocalSpawner{
		Path: cfg.Path,
		Args: cfg.Args,
		Env:  cfg.Env,
	}
}

// PublishConfig maps the mqtt section onto the publisher settings.
func PublishConfig(cfg MQTTConfig) publish.Config {
	return publish.Config{
		Broker:      cfg.Broker,
		TopicPrefix: cfg.TopicPrefix,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		QoS:         byte(cfg.QoS),
		QueueSize:   cfg.QueueSize,
	}
}
