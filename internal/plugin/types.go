// Package plugin runs out-of-process scroll backends. A plugin is a
// directory holding a plugin.json manifest and an executable that reads one
// JSON request on stdin and writes one JSON response on stdout.
package plugin

// Actions a scroll plugin may implement.
const (
	ActionScroll    = "scroll"
	ActionIndicator = "indicator"
)

// Manifest describes a plugin.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
}

// Supports reports whether the manifest lists action.
func (m Manifest) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request is written to the plugin's stdin.
type Request struct {
	Action    string `json:"action"`
	Dy        int    `json:"dy,omitempty"`
	Direction string `json:"direction,omitempty"`
	Visible   bool   `json:"visible,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
