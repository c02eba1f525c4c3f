package config

import (
	"fmt"
	"os"

	gotoml "github.com/pelletier/go-toml/v2"
)

const templateHeader = `# matterctl configuration.
# Durations use Go syntax ("2s", "1500ms"). settle_ms overrides settle when set.
# Command templates expand {node} and {endpoint}.
# Set [shell.ssh].host to run the device shell on a remote border router.
# Set [mqtt].broker to publish operation results.
# [shell].noise_markers defaults to the chip-tool log prefixes plus ready_marker.

`

// Template renders the default configuration as TOML.
func Template() (string, error) {
	body, err := gotoml.Marshal(toFile(Default()))
	if err != nil {
		return "", fmt.Errorf("config template render failed: %w", err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
