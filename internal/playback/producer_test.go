package playback

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/output"
)

func runProducer(t *testing.T, s decode.Stream, out *fakeOutput) (*Producer, *Clock, *Lifecycle, error) {
	t.Helper()
	clock := NewClock()
	life := NewLifecycle()
	p := NewProducer(s, out.opener(), clock, life)
	err := p.Run(context.Background())
	if !life.Finished() {
		t.Fatal("Expected lifecycle to be finished after Run returned")
	}
	return p, clock, life, err
}

func TestProducer_TenSecondsInTenBlocks(t *testing.T) {
	const rate = 48000
	out := &fakeOutput{}
	p, clock, _, err := runProducer(t, newToneStream(rate, 1, 10, rate), out)
	if err != nil {
		t.Fatalf("Expected clean completion, got %v", err)
	}

	snap, err := clock.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if snap.Position != 10*rate {
		t.Errorf("Expected final position %d, got %d", 10*rate, snap.Position)
	}
	if snap.Elapsed.Hours != 0 || snap.Elapsed.Minutes != 0 || math.Abs(snap.Elapsed.Seconds-10) > 1e-9 {
		t.Errorf("Expected elapsed (0,0,10.0), got %+v", snap.Elapsed)
	}

	if out.opens != 1 {
		t.Errorf("Expected output to be opened once, got %d", out.opens)
	}
	if out.formats[0] != (output.Format{SampleRate: rate, Channels: 1}) {
		t.Errorf("Unexpected output format: %+v", out.formats[0])
	}
	if len(out.blocks) != 10 || !out.closed {
		t.Errorf("Expected 10 blocks and a closed output, got %d blocks closed=%v", len(out.blocks), out.closed)
	}
	if stats := p.Stats(); stats.Blocks != 10 || stats.Frames != 10*rate {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestProducer_SkipsForeignTracksAndDecodeErrors(t *testing.T) {
	s := newToneStream(1000, 2, 4, 100)
	s.tracks = append([]decode.Track{{ID: 9, Codec: "", SampleRate: 1000, Channels: 2}}, s.tracks...)
	s.packets = append(s.packets[:2], append([]decode.Packet{{Track: 9, Timestamp: 0, Frames: 100}}, s.packets[2:]...)...)
	s.decodeErrs = map[uint64]error{
		100: &decode.DecodeError{Timestamp: 100, Err: errors.New("bad crc")},
	}

	out := &fakeOutput{}
	p, clock, _, err := runProducer(t, s, out)
	if err != nil {
		t.Fatalf("Expected decode errors to be skipped, got %v", err)
	}

	stats := p.Stats()
	if stats.Packets != 5 || stats.Foreign != 1 || stats.DecodeErrors != 1 || stats.Blocks != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	snap, _ := clock.Read()
	if snap.Position != 400 {
		t.Errorf("Expected final position 400, got %d", snap.Position)
	}
	for i := 1; i < len(out.blocks); i++ {
		if out.blocks[i].Timestamp <= out.blocks[i-1].Timestamp {
			t.Errorf("Blocks written out of order: %d after %d", out.blocks[i].Timestamp, out.blocks[i-1].Timestamp)
		}
	}
}

func TestProducer_FatalDecodeError(t *testing.T) {
	s := newToneStream(1000, 1, 4, 100)
	s.decodeErrs = map[uint64]error{200: errBoom}

	out := &fakeOutput{}
	p, _, _, err := runProducer(t, s, out)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected decode error to be returned, got %v", err)
	}
	if p.Stats().Blocks != 2 {
		t.Errorf("Expected 2 blocks before the failure, got %d", p.Stats().Blocks)
	}
	if !out.closed {
		t.Error("Expected output to be closed on error")
	}
}

func TestProducer_FatalReadError(t *testing.T) {
	s := newToneStream(1000, 1, 2, 100)
	s.readErr = errBoom

	_, _, _, err := runProducer(t, s, &fakeOutput{})
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected read error to be returned, got %v", err)
	}
}

func TestProducer_OutputOpenFailure(t *testing.T) {
	out := &fakeOutput{openErr: errors.New("no device")}
	p, clock, _, err := runProducer(t, newToneStream(1000, 1, 3, 100), out)
	if err == nil || !strings.Contains(err.Error(), "open output") {
		t.Fatalf("Expected open failure, got %v", err)
	}
	if out.opens != 1 || p.Stats().Blocks != 0 {
		t.Errorf("Expected one open attempt and no blocks, got %d opens %d blocks", out.opens, p.Stats().Blocks)
	}
	select {
	case <-clock.Started():
		t.Error("Expected no clock write when the output never opened")
	default:
	}
}

func TestProducer_WriteFailure(t *testing.T) {
	out := &fakeOutput{writeErr: errBoom}
	_, _, _, err := runProducer(t, newToneStream(1000, 1, 3, 100), out)
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected write error, got %v", err)
	}
}

func TestProducer_NoSupportedTrack(t *testing.T) {
	s := newToneStream(1000, 1, 3, 100)
	s.tracks[0].Codec = ""

	out := &fakeOutput{}
	_, _, _, err := runProducer(t, s, out)
	if !errors.Is(err, decode.ErrNoSupportedTrack) {
		t.Errorf("Expected ErrNoSupportedTrack, got %v", err)
	}
	if out.opens != 0 {
		t.Error("Expected output not to be opened")
	}
}

func TestProducer_PanicPoisonsClock(t *testing.T) {
	s := newToneStream(1000, 1, 5, 100)
	s.panicAt = 2

	out := &fakeOutput{}
	_, clock, _, err := runProducer(t, s, out)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Expected panic to be returned as an error, got %v", err)
	}
	if _, err := clock.Read(); !errors.Is(err, ErrClockPoisoned) {
		t.Errorf("Expected poisoned clock, got %v", err)
	}
	if !out.closed {
		t.Error("Expected output to be closed after a panic")
	}
}

func TestProducer_StopsOnCancel(t *testing.T) {
	out := &fakeOutput{delay: 5 * time.Millisecond}
	clock := NewClock()
	life := NewLifecycle()
	p := NewProducer(newToneStream(1000, 1, 1000, 10), out.opener(), clock, life)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-clock.Started()
		cancel()
	}()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Expected cancellation to return nil, got %v", err)
	}
	if !life.Finished() {
		t.Error("Expected lifecycle to be finished")
	}
	if p.Stats().Blocks >= 1000 {
		t.Error("Expected producer to stop before the end of the stream")
	}
}

func TestProducer_NotBlockedByFrozenReader(t *testing.T) {
	clock := NewClock()
	life := NewLifecycle()
	p := NewProducer(newToneStream(1000, 1, 50, 10), (&fakeOutput{}).opener(), clock, life)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Producer did not finish without a reader")
	}
	if !life.Finished() {
		t.Error("Expected lifecycle to be finished")
	}
}
