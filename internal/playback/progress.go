package playback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

const progressWidth = 30

// FormatProgress renders a status line such as
// "▶ 0:00:01.0 [###---] -0:00:09.0" for the given snapshot.
func FormatProgress(snap Snapshot, total time.Duration, width int) string {
	played := snap.Elapsed.Duration()
	ratio := 0.0
	if total > 0 {
		ratio = float64(played) / float64(total)
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	remaining := total - played
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("▶ %s [%s%s] -%s",
		snap.Elapsed,
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		elapsedOfDuration(remaining),
	)
}

func elapsedOfDuration(d time.Duration) Elapsed {
	whole := uint64(d / time.Second)
	frac := float64(d%time.Second) / float64(time.Second)
	return Elapsed{Hours: whole / 3600, Minutes: whole % 3600 / 60, Seconds: float64(whole%60) + frac}
}

// Progress rewrites a status line on w every interval until the producer
// finishes or ctx is cancelled.
func Progress(ctx context.Context, w io.Writer, clock *Clock, life *Lifecycle, total, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	show := func() error {
		snap, err := clock.Read()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "\r%s", FormatProgress(snap, total, progressWidth))
		return err
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil
		case <-life.Done():
			err := show()
			fmt.Fprintln(w)
			return err
		case <-ticker.C:
			if err := show(); err != nil {
				fmt.Fprintln(w)
				return err
			}
		}
	}
}
