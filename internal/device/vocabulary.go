package device

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidVocabulary = errors.New("device: invalid command vocabulary")

const (
	placeholderNode     = "{node}"
	placeholderEndpoint = "{endpoint}"
)

// Vocabulary holds the shell command templates. {node} and {endpoint} are
// replaced with the resolved address.
type Vocabulary struct {
	On     string
	Off    string
	Toggle string
	Read   string
	List   string
}

// DefaultVocabulary matches chip-tool interactive mode.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		On:     "onoff on {node} {endpoint}",
		Off:    "onoff off {node} {endpoint}",
		Toggle: "onoff toggle {node} {endpoint}",
		Read:   "onoff read on-off {node} {endpoint}",
		List:   "storage list-nodes",
	}
}

func (v Vocabulary) Validate() error {
	addressed := map[string]string{"on": v.On, "off": v.Off, "toggle": v.Toggle, "read": v.Read}
	for _, name := range []string{"on", "off", "toggle", "read"} {
		tmpl := strings.TrimSpace(addressed[name])
		if tmpl == "" {
			return fmt.Errorf("%w: missing %s command", ErrInvalidVocabulary, name)
		}
		if !strings.Contains(tmpl, placeholderNode) {
			return fmt.Errorf("%w: %s command must reference %s", ErrInvalidVocabulary, name, placeholderNode)
		}
	}
	if strings.TrimSpace(v.List) == "" {
		return fmt.Errorf("%w: missing list command", ErrInvalidVocabulary)
	}
	return nil
}

func render(tmpl string, addr Address) string {
	r := strings.NewReplacer(placeholderNode, addr.NodeID, placeholderEndpoint, addr.EndpointID)
	return strings.TrimSpace(r.Replace(tmpl))
}
