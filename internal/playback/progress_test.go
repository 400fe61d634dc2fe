package playback

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestFormatProgress(t *testing.T) {
	snap := Snapshot{Position: 2500, Elapsed: ElapsedOf(2500, 1000)}
	got := FormatProgress(snap, 10*time.Second, 10)
	want := "▶ 0:00:02.5 [##--------] -0:00:07.5"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	over := FormatProgress(Snapshot{Elapsed: Elapsed{Seconds: 12}}, 10*time.Second, 4)
	if !strings.Contains(over, "[####]") || !strings.HasSuffix(over, "-0:00:00.0") {
		t.Errorf("Expected a full bar past the end, got %q", over)
	}
}

func TestProgress_PrintsFinalLine(t *testing.T) {
	clock := NewClock()
	life := NewLifecycle()
	clock.Write(1000, ElapsedOf(1000, 1000))
	life.Finish()

	var buf bytes.Buffer
	if err := Progress(context.Background(), &buf, clock, life, 2*time.Second, time.Hour); err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if !strings.Contains(buf.String(), "0:00:01.0") || !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("Unexpected progress output %q", buf.String())
	}
}
