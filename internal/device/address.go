package device

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAddress = errors.New("device: invalid address")

// Address names one controllable function on a commissioned device.
type Address struct {
	NodeID     string `json:"nodeId"`
	EndpointID string `json:"endpointId"`
}

func (a Address) String() string {
	return fmt.Sprintf("node %s endpoint %s", a.NodeID, a.EndpointID)
}

// Validate reports whether both ids are safe to place on one shell command
// line: non-empty and limited to [0-9A-Za-z_-].
func (a Address) Validate() error {
	if err := validateID("node id", a.NodeID); err != nil {
		return err
	}
	return validateID("endpoint id", a.EndpointID)
}

func validateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidAddress, field)
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalidAddress, field, id, r)
		}
	}
	return nil
}

// withDefaults fills empty fields from def, field by field.
func (a Address) withDefaults(def Address) Address {
	out := Address{
		NodeID:     strings.TrimSpace(a.NodeID),
		EndpointID: strings.TrimSpace(a.EndpointID),
	}
	if out.NodeID == "" {
		out.NodeID = strings.TrimSpace(def.NodeID)
	}
	if out.EndpointID == "" {
		out.EndpointID = strings.TrimSpace(def.EndpointID)
	}
	return out
}
