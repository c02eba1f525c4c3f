package device

import "strings"

// ParseOnOff reads a power state out of unstructured attribute output.
// It reports true when the text contains "true" in any case, or contains a
// "1" outside every "endpoint 1" substring. Anything else reads as off,
// including output it does not understand.
func ParseOnOff(text string) bool {
	if strings.Contains(strings.ToLower(text), "true") {
		return true
	}
	return strings.Contains(strings.ReplaceAll(text, "endpoint 1", ""), "1")
}
