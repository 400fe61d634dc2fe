package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/wavesync/internal/config"
	"github.com/audiolibrelab/wavesync/internal/output"
	"github.com/audiolibrelab/wavesync/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play a file with a synchronized cursor",
	Long: `Play the file on the default audio device while a cursor follows the
decoded position across its waveform or spectrogram.

Closing the display (q or esc in the terminal, the close button in the web
page) stops playback unless playback.stop_on_close is false.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := viewOptions(cmd)
		if err != nil {
			return err
		}
		mute, _ := cmd.Flags().GetBool("mute")
		showProgress, _ := cmd.Flags().GetBool("progress")
		backendFlag, _ := cmd.Flags().GetString("output")
		backend, err := output.ParseBackend(backendFlag)
		if err != nil {
			return fmt.Errorf("%w (valid: %v)", err, output.GetAvailableBackends())
		}

		opts := service.PlayOptions{ViewOptions: view, Backend: backend, Mute: mute}
		if showProgress {
			opts.Progress = os.Stderr
		}

		restore, err := prepareSurface(resolveSurface(view), showProgress)
		if err != nil {
			return err
		}
		defer restore()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		result, err := newService().Play(ctx, args[0], opts)
		if err != nil {
			return err
		}
		slog.Info("Playback finished",
			"reason", result.Reason,
			"frames_played", result.Producer.Frames,
			"decode_errors", result.Producer.DecodeErrors,
			"rendered", result.Frames,
			"skipped", result.Skipped)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Display the static overlay until the display is closed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := viewOptions(cmd)
		if err != nil {
			return err
		}
		restore, err := prepareSurface(resolveSurface(view), false)
		if err != nil {
			return err
		}
		defer restore()

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return newService().Show(ctx, args[0], view)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Save the overlay as a PNG image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := viewOptions(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = trimExt(args[0]) + ".png"
		}
		if err := newService().Render(args[0], out, view); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func addViewFlags(c *cobra.Command, withSurface bool) {
	if withSurface {
		c.Flags().StringP("surface", "s", "", "display surface: terminal, headless, websocket (overrides config)")
	}
	c.Flags().StringP("mode", "m", "", "overlay: waveform or spectrum (overrides config)")
	c.Flags().StringP("beats", "b", "", "draw beat markers detected with this algorithm (e.g. SpecFlux)")
}

func viewOptions(cmd *cobra.Command) (service.ViewOptions, error) {
	var view service.ViewOptions
	if f := cmd.Flags().Lookup("surface"); f != nil {
		view.Surface = f.Value.String()
	}
	view.Mode, _ = cmd.Flags().GetString("mode")
	view.Beats, _ = cmd.Flags().GetString("beats")

	switch view.Surface {
	case "", config.SurfaceTerminal, config.SurfaceHeadless, config.SurfaceWebsocket:
	default:
		return view, fmt.Errorf("invalid surface %q (valid: terminal, headless, websocket)", view.Surface)
	}
	switch view.Mode {
	case "", config.ModeWaveform, config.ModeSpectrum:
	default:
		return view, fmt.Errorf("invalid mode %q (valid: waveform, spectrum)", view.Mode)
	}
	if view.Beats != "" && !config.IsBeatAlgorithm(view.Beats) {
		return view, fmt.Errorf("invalid beat algorithm %q (valid: %v)", view.Beats, config.BeatAlgorithms)
	}
	return view, nil
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	addViewFlags(playCmd, true)
	playCmd.Flags().String("output", "auto", "audio output: auto, speaker, pacer")
	playCmd.Flags().Bool("mute", false, "pace playback in real time without opening the audio device")
	playCmd.Flags().Bool("progress", false, "print a progress line on stderr")

	addViewFlags(showCmd, true)

	addViewFlags(renderCmd, false)
	renderCmd.Flags().StringP("output", "o", "", "output PNG path (default: input path with .png)")
}
