package shell

import "strings"

// DefaultReadyMarker is the prompt chip-tool prints once interactive mode accepts input.
const DefaultReadyMarker = ">>> "

// DefaultNoiseMarkers returns the shell diagnostic markers dropped from output,
// including the ready marker itself.
func DefaultNoiseMarkers(readyMarker string) []string {
	return []string{
		"[INFO]",
		"[WARN]",
		"[NOTICE]",
		readyMarker,
		"Node started",
		"Loaded module",
		"History loaded",
		"Opened file",
		"Storage path",
	}
}

// FilterOutput drops every line that contains one of markers or is blank,
// rejoins the rest with newlines and trims the result.
//
// The filter is substring based: a meaningful line that happens to contain a
// marker is dropped, and unrelated output that contains none is kept.
func FilterOutput(raw string, markers []string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || containsAny(line, markers) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func containsAny(line string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// shell helper that guarantees the ready marker is part of the noise set.
func noiseWithReady(markers []string, readyMarker string) []string {
	if len(markers) == 0 {
		return DefaultNoiseMarkers(readyMarker)
	}
	out := make([]string, 0, len(markers)+1)
	hasReady := false
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if marker == readyMarker {
			hasReady = true
		}
		out = append(out, marker)
	}
	if !hasReady && readyMarker != "" {
		out = append(out, readyMarker)
	}
	return out
}
