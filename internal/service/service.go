package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/wavesync/internal/analysis"
	"github.com/audiolibrelab/wavesync/internal/beat"
	"github.com/audiolibrelab/wavesync/internal/config"
	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/library"
	"github.com/audiolibrelab/wavesync/internal/metadata"
	"github.com/audiolibrelab/wavesync/internal/output"
	"github.com/audiolibrelab/wavesync/internal/pcm"
	"github.com/audiolibrelab/wavesync/internal/playback"
	"github.com/audiolibrelab/wavesync/internal/render"
	"github.com/audiolibrelab/wavesync/internal/server"
)

const progressInterval = 100 * time.Millisecond

// Service is the set of operations exposed to the command line.
type Service interface {
	// Playback operations
	Play(ctx context.Context, path string, opts PlayOptions) (*PlayResult, error)
	Show(ctx context.Context, path string, opts ViewOptions) error
	Render(path, out string, opts ViewOptions) error

	// Inspection operations
	Info(path string, names []string) (*FileInfo, error)
	Samples(path string) (*pcm.Buffer, error)
	LiveSamples(ctx context.Context, path string, fn func(analysis.Packet)) error
	Beats(path, algorithm string) ([]float64, error)

	// Library operations
	Library(root string) *library.Library

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config
	GetLastError() string
}

// ViewOptions override the display configuration for one call. Empty
// fields keep the configured value.
type ViewOptions struct {
	Surface string
	Mode    string
	// Beats names an onset algorithm; empty draws no beat markers.
	Beats string
}

// PlayOptions configure a playback session.
type PlayOptions struct {
	ViewOptions
	// Backend selects the audio output. Mute forces the pacer.
	Backend output.BackendType
	Mute    bool
	// Progress receives a status line while playing, when set.
	Progress io.Writer
}

// PlayResult summarizes a finished playback session.
type PlayResult struct {
	Reason   playback.StopReason
	Producer playback.ProducerStats
	Frames   int
	Skipped  int
}

// FileInfo is the metadata of one file.
type FileInfo struct {
	Path      string            `json:"path" yaml:"path"`
	Codec     string            `json:"codec" yaml:"codec"`
	Size      int64             `json:"size" yaml:"size"`
	SizeHuman string            `json:"size_human" yaml:"size_human"`
	Values    map[string]string `json:"values" yaml:"values"`
}

// WavesyncService is the main service implementation
type WavesyncService struct {
	cfg        *config.Config
	configFile string

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance
func New(cfg *config.Config, configFile string) Service {
	return &WavesyncService{
		cfg:        cfg,
		configFile: configFile,
	}
}

func (s *WavesyncService) decodeOptions() decode.Options {
	return decode.Options{
		SampleRate:      s.cfg.Audio.SampleRate,
		BlockFrames:     s.cfg.Audio.BlockFrames,
		ResampleQuality: s.cfg.Audio.ResampleQuality,
	}
}

func (s *WavesyncService) beatOptions(algorithm string) beat.Options {
	opts := beat.DefaultOptions()
	opts.Algorithm = s.cfg.Beats.Algorithm
	if algorithm != "" {
		opts.Algorithm = algorithm
	}
	opts.BufSize = s.cfg.Beats.BufSize
	opts.HopSize = s.cfg.Beats.HopSize
	opts.Threshold = s.cfg.Beats.Threshold
	return opts
}

func (s *WavesyncService) resolve(opts ViewOptions) ViewOptions {
	if opts.Surface == "" {
		opts.Surface = s.cfg.Display.Surface
	}
	if opts.Mode == "" {
		opts.Mode = s.cfg.Display.Mode
	}
	return opts
}

// overlay decodes path once and draws the static background. Samples are
// decoded with the playback options so overlay indices and clock positions
// share one axis.
func (s *WavesyncService) overlay(path string, opts ViewOptions) (*render.Overlay, *analysis.Analysis, error) {
	var beats []float64
	if opts.Beats != "" {
		var err error
		beats, err = s.Beats(path, opts.Beats)
		if err != nil {
			return nil, nil, err
		}
	}

	stream, err := decode.Open(path, s.decodeOptions())
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	a, err := analysis.Analyze(stream, beats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to analyze %s: %w", path, err)
	}

	o, err := render.NewOverlay(a.Samples, a.Beats, render.OverlayOptions{
		Width:  s.cfg.Display.Width,
		Height: s.cfg.Display.Height,
		Mode:   opts.Mode,
	})
	if err != nil {
		return nil, nil, err
	}
	return o, a, nil
}

func (s *WavesyncService) openSurface(kind, path string, o *render.Overlay, a *analysis.Analysis) (render.Surface, error) {
	switch kind {
	case config.SurfaceTerminal:
		return render.NewTerminal(filepath.Base(path)), nil
	case config.SurfaceHeadless:
		return render.NewHeadless(), nil
	case config.SurfaceWebsocket:
		srv, err := server.New(s.cfg.Display.Listen, o, server.TrackInfo{
			Title:      filepath.Base(path),
			SampleRate: a.SampleRate,
			Channels:   a.Channels,
			Duration:   playback.ElapsedOf(a.Frames, a.SampleRate).String(),
		})
		if err != nil {
			return nil, err
		}
		return srv, nil
	default:
		return nil, fmt.Errorf("unknown surface: %s", kind)
	}
}

// Play plays path while the cursor follows the decoded position.
func (s *WavesyncService) Play(ctx context.Context, path string, opts PlayOptions) (*PlayResult, error) {
	slog.Debug("Service.Play called", "path", path, "surface", opts.Surface, "mute", opts.Mute)
	s.clearLastError()

	view := s.resolve(opts.ViewOptions)
	o, a, err := s.overlay(path, view)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to prepare overlay: %v", err))
		return nil, err
	}

	stream, err := decode.Open(path, s.decodeOptions())
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	surface, err := s.openSurface(view.Surface, path, o, a)
	if err != nil {
		return nil, err
	}
	defer surface.Close()

	backend := opts.Backend
	if opts.Mute {
		backend = output.BackendTypePacer
	}
	opener := output.NewOpener(output.Options{Backend: backend, Buffer: s.cfg.OutputBuffer()})

	renderer := render.NewRenderer(o, surface, s.cfg.Cadence())
	orch := playback.NewOrchestrator(stream, opener, renderer, playback.Options{
		StopOnClose: s.cfg.Playback.StopOnClose,
	})

	var progress sync.WaitGroup
	if opts.Progress != nil {
		total := time.Duration(a.Duration() * float64(time.Second))
		progressCtx, cancel := context.WithCancel(ctx)
		progress.Add(1)
		go func() {
			defer progress.Done()
			if err := playback.Progress(progressCtx, opts.Progress, orch.Clock(), orch.Lifecycle(), total, progressInterval); err != nil {
				slog.Debug("Progress line stopped", "error", err)
			}
		}()
		defer progress.Wait()
		defer cancel()
	}

	err = orch.Run(ctx)
	result := &PlayResult{
		Reason:   orch.StopReason(),
		Producer: orch.ProducerStats(),
		Frames:   renderer.Frames(),
		Skipped:  renderer.Skipped(),
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Playback failed: %v", err))
		return result, fmt.Errorf("playback failed: %w", err)
	}
	slog.Debug("Service.Play completed", "reason", result.Reason, "frames", result.Frames, "skipped", result.Skipped)
	return result, nil
}

// Show presents the static overlay until the surface is closed or ctx is done.
func (s *WavesyncService) Show(ctx context.Context, path string, opts ViewOptions) error {
	view := s.resolve(opts)
	o, a, err := s.overlay(path, view)
	if err != nil {
		return err
	}
	surface, err := s.openSurface(view.Surface, path, o, a)
	if err != nil {
		return err
	}
	defer surface.Close()

	frame := render.NewFrame(o)
	if err := surface.Present(frame.Image(), frame.Image().Bounds()); err != nil {
		return fmt.Errorf("failed to present overlay: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-surface.Done():
	}
	return nil
}

// Render saves the overlay of path as a PNG file.
func (s *WavesyncService) Render(path, out string, opts ViewOptions) error {
	o, _, err := s.overlay(path, s.resolve(opts))
	if err != nil {
		return err
	}
	if err := o.SavePNG(out); err != nil {
		return fmt.Errorf("failed to save %s: %w", out, err)
	}
	slog.Info("Overlay saved", "path", out)
	return nil
}

// Info returns the requested metadata names, or every available one when
// names is empty.
func (s *WavesyncService) Info(path string, names []string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	m, err := metadata.Read(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		Path:      path,
		Codec:     m.Codec,
		Size:      st.Size(),
		SizeHuman: formatBytes(st.Size()),
	}
	if len(names) == 0 {
		info.Values = m.All()
		return info, nil
	}

	info.Values = make(map[string]string, len(names))
	for _, name := range names {
		v, err := m.Lookup(name)
		if errors.Is(err, metadata.ErrTagNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		info.Values[name] = v
	}
	return info, nil
}

// Samples decodes the whole file.
func (s *WavesyncService) Samples(path string) (*pcm.Buffer, error) {
	stream, err := decode.Open(path, s.decodeOptions())
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return analysis.FileSamples(stream)
}

// LiveSamples decodes path on a separate goroutine and calls fn for every
// packet in order.
func (s *WavesyncService) LiveSamples(ctx context.Context, path string, fn func(analysis.Packet)) error {
	stream, err := decode.Open(path, s.decodeOptions())
	if err != nil {
		return err
	}
	defer stream.Close()

	packets := make(chan analysis.Packet, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- analysis.StreamPackets(ctx, stream, packets)
	}()
	for p := range packets {
		fn(p)
	}
	return <-errc
}

// Beats detects onsets in path. An empty algorithm uses the configured one.
func (s *WavesyncService) Beats(path, algorithm string) ([]float64, error) {
	opts := s.beatOptions(algorithm)
	times, err := beat.DetectFile(path, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("Detected beats", "path", path, "algorithm", opts.Algorithm, "count", len(times))
	return times, nil
}

// Library returns the audio files under root matched by the configured extensions.
func (s *WavesyncService) Library(root string) *library.Library {
	return library.New(config.ExpandPath(root), s.cfg.HasExtension, metadata.FileReader{})
}

// LoadProfile loads a new configuration profile
func (s *WavesyncService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	s.cfg = newCfg
	return nil
}

// GetConfig returns the current configuration
func (s *WavesyncService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message (thread-safe)
func (s *WavesyncService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *WavesyncService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *WavesyncService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
