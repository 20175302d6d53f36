package oauth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// browserCommand returns the platform launcher for opening a URL, or an
// error on platforms without one.
func browserCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	default:
		return nil, fmt.Errorf("no browser launcher for platform %s", runtime.GOOS)
	}
}

// OpenBrowser launches the system browser on the given URL without waiting
// for it to exit. Interactive login proceeds on the callback server either
// way; the authorize URL is also printed for manual use.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	return nil
}
