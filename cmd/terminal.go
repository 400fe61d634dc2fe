package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/wavesync/internal/config"
	"github.com/audiolibrelab/wavesync/internal/service"
)

var errProgressOnTerminal = errors.New("--progress cannot be used with the terminal surface (use --surface headless or websocket)")

// resolveSurface returns the surface a view will be shown on.
func resolveSurface(view service.ViewOptions) string {
	if view.Surface != "" {
		return view.Surface
	}
	return cfg.Display.Surface
}

// logFilePath returns where logs go while the terminal surface owns the screen.
func logFilePath() string {
	if logFile != "" {
		return config.ExpandPath(logFile)
	}
	return filepath.Join(os.TempDir(), "wavesync.log")
}

// prepareSurface moves logging off the tty while the terminal surface is
// active. The returned func restores logging on stderr.
func prepareSurface(surface string, progress bool) (func(), error) {
	if surface != config.SurfaceTerminal {
		return func() {}, nil
	}
	if progress {
		return nil, errProgressOnTerminal
	}

	f, err := tea.LogToFile(logFilePath(), "wavesync")
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	setupLogging(verboseLevel, f)
	return func() {
		setupLogging(verboseLevel, os.Stderr)
		f.Close()
	}, nil
}
