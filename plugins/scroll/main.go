// Package main is the scroll plugin. It scrolls whatever window has focus
// using the platform's input tools: xdotool on Linux and System Events on
// macOS.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request is read from stdin.
type Request struct {
	Action    string `json:"action"`
	Dy        int    `json:"dy,omitempty"`
	Direction string `json:"direction,omitempty"`
	Visible   bool   `json:"visible,omitempty"`
}

// Response is written to stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// pixelsPerNotch approximates one wheel click.
const pixelsPerNotch = 20

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	switch req.Action {
	case "scroll":
		writeResponse(scroll(req.Dy))
	default:
		writeResponse(fmt.Errorf("unknown action: %s", req.Action))
	}
}

func scroll(dy int) error {
	if dy == 0 {
		return nil
	}
	name, args, err := scrollCommand(runtime.GOOS, dy)
	if err != nil {
		return err
	}
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// scrollCommand builds the command that scrolls by dy pixels on goos.
func scrollCommand(goos string, dy int) (string, []string, error) {
	notches := dy / pixelsPerNotch
	if notches < 0 {
		notches = -notches
	}
	if notches == 0 {
		notches = 1
	}

	switch goos {
	case "linux":
		// Wheel buttons: 4 scrolls up, 5 scrolls down.
		button := "5"
		if dy < 0 {
			button = "4"
		}
		return "xdotool", []string{"click", "--repeat", strconv.Itoa(notches), button}, nil
	case "darwin":
		// Arrow key codes: 125 down, 126 up.
		code := 125
		if dy < 0 {
			code = 126
		}
		script := fmt.Sprintf(`tell application "System Events" to repeat %d times
key code %d
end repeat`, notches, code)
		return "osascript", []string{"-e", script}, nil
	default:
		return "", nil, fmt.Errorf("scrolling not supported on %s", goos)
	}
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
