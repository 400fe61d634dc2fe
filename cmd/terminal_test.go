package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/wavesync/internal/config"
	"github.com/audiolibrelab/wavesync/internal/service"
)

func withConfig(t *testing.T, surface string) {
	t.Helper()
	prevCfg, prevLog := cfg, logFile
	cfg = config.Default()
	cfg.Display.Surface = surface
	logFile = filepath.Join(t.TempDir(), "wavesync.log")
	t.Cleanup(func() {
		cfg, logFile = prevCfg, prevLog
		setupLogging(0, os.Stderr)
	})
}

func TestPrepareSurface_RejectsProgressOnTerminal(t *testing.T) {
	withConfig(t, config.SurfaceTerminal)

	_, err := prepareSurface(resolveSurface(service.ViewOptions{}), true)
	if !errors.Is(err, errProgressOnTerminal) {
		t.Errorf("Expected progress to be rejected on the terminal surface, got %v", err)
	}
}

func TestPrepareSurface_TerminalLogsToFile(t *testing.T) {
	withConfig(t, config.SurfaceTerminal)

	restore, err := prepareSurface(config.SurfaceTerminal, false)
	if err != nil {
		t.Fatalf("prepareSurface failed: %v", err)
	}
	slog.Warn("Skipping undecodable packet", "packet", 7)
	restore()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "Skipping undecodable packet") {
		t.Errorf("Expected the warning in the log file, got %q", data)
	}
}

func TestPrepareSurface_OtherSurfacesKeepStderr(t *testing.T) {
	withConfig(t, config.SurfaceTerminal)

	view := service.ViewOptions{Surface: config.SurfaceHeadless}
	restore, err := prepareSurface(resolveSurface(view), true)
	if err != nil {
		t.Fatalf("Expected progress to be allowed on the headless surface, got %v", err)
	}
	restore()

	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Errorf("Expected no log file for the headless surface, got %v", err)
	}
}
