package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/matterctl/internal/shell"
)

// NoDevicesMessage replaces empty list output.
const NoDevicesMessage = "No commissioned devices found"

// Operation names, also used as metric labels and MQTT topic leaves.
const (
	OpPowerOn   = "power_on"
	OpPowerOff  = "power_off"
	OpToggle    = "toggle"
	OpReadState = "read_state"
	OpList      = "list_devices"
)

// Result is the only value handed back to the tool, HTTP and CLI layers.
type Result struct {
	Operation  string `json:"operation"`
	NodeID     string `json:"nodeId,omitempty"`
	EndpointID string `json:"endpointId,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RawOutput  string `json:"rawOutput"`
	Error      string `json:"error,omitempty"`
	IsOn       *bool  `json:"isOn,omitempty"`
}

// Summary is the one-line human rendering used by the tool layer.
func (r Result) Summary() string {
	if r.Success {
		return r.Message
	}
	if r.Error == "" {
		return r.Message
	}
	return fmt.Sprintf("%s: %s", r.Message, r.Error)
}

// describeFailure renders an executor failure for humans.
func describeFailure(err error) string {
	var spawnErr *shell.SpawnError
	if errors.As(err, &spawnErr) {
		return fmt.Sprintf("Failed to spawn %s: %v", spawnErr.Shell, spawnErr.Err)
	}
	var exitErr *shell.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(exitErr.Stderr)
		if detail == "" {
			return fmt.Sprintf("Device shell exited with code %d", exitErr.Code)
		}
		return fmt.Sprintf("Device shell exited with code %d: %s", exitErr.Code, detail)
	}
	var startupErr *shell.StartupError
	if errors.As(err, &startupErr) {
		if startupErr.Exited {
			return "Device shell exited before it became ready"
		}
		return fmt.Sprintf("Device shell did not become ready within %s", startupErr.After)
	}
	return err.Error()
}
