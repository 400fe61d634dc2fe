package decode

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/wavesync/internal/pcm"
)

func writeTone(t *testing.T, rate int, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := pcm.CreateWAV(path, pcm.Sine(220, rate, seconds, 0.5)); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func TestOpen_ReadsAllPacketsInOrder(t *testing.T) {
	path := writeTone(t, 8000, 1)

	s, err := Open(path, Options{BlockFrames: 1000})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	track, err := s.DefaultTrack()
	if err != nil {
		t.Fatalf("DefaultTrack failed: %v", err)
	}
	if track.SampleRate != 8000 || track.Channels != 1 || track.Codec != "pcm" {
		t.Errorf("Unexpected track: %+v", track)
	}
	if track.Frames != 8000 {
		t.Errorf("Expected 8000 frames, got %d", track.Frames)
	}
	if track.Duration().Seconds() != 1 {
		t.Errorf("Expected 1s duration, got %v", track.Duration())
	}

	var next uint64
	packets := 0
	for {
		p, err := s.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadPacket failed: %v", err)
		}
		if p.Timestamp != next {
			t.Fatalf("Packet %d: expected timestamp %d, got %d", packets, next, p.Timestamp)
		}
		b, err := s.Decode(p)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(b.Samples) != b.Frames*b.Channels {
			t.Fatalf("Block has %d samples for %d frames x %d channels", len(b.Samples), b.Frames, b.Channels)
		}
		next = b.End()
		packets++
	}

	if packets != 8 {
		t.Errorf("Expected 8 packets, got %d", packets)
	}
	if next != 8000 {
		t.Errorf("Expected to end at frame 8000, got %d", next)
	}

	if _, err := s.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after end of stream, got %v", err)
	}
}

func TestOpen_Resamples(t *testing.T) {
	path := writeTone(t, 8000, 1)

	s, err := Open(path, Options{SampleRate: 16000, BlockFrames: 4096})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	track, _ := s.DefaultTrack()
	if track.SampleRate != 16000 {
		t.Errorf("Expected resampled rate 16000, got %d", track.SampleRate)
	}
	if s.Format().SampleRate != 8000 {
		t.Errorf("Expected native rate 8000, got %d", s.Format().SampleRate)
	}

	var total uint64
	for {
		p, err := s.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadPacket failed: %v", err)
		}
		total += uint64(p.Frames)
	}
	if math.Abs(float64(total)-16000) > 64 {
		t.Errorf("Expected about 16000 resampled frames, got %d", total)
	}
}

func TestOpen_UnsupportedFormat(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "song.aiff"), Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if Supported("song.aiff") {
		t.Error("Expected .aiff to be unsupported")
	}
	if !Supported("Song.MP3") {
		t.Error("Expected .MP3 to be supported")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.wav"), Options{}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDecode_ForeignTrackIsRecoverable(t *testing.T) {
	s, err := Open(writeTone(t, 8000, 0.1), Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	_, err = s.Decode(Packet{Track: 7, Frames: 0})
	if !IsRecoverable(err) {
		t.Errorf("Expected a recoverable *DecodeError, got %v", err)
	}
}

func TestSelectDefault(t *testing.T) {
	tracks := []Track{
		{ID: 1, Codec: "", SampleRate: 44100, Channels: 2},
		{ID: 2, Codec: "flac", SampleRate: 0, Channels: 2},
		{ID: 3, Codec: "flac", SampleRate: 44100, Channels: 2},
	}
	got, err := SelectDefault(tracks)
	if err != nil || got.ID != 3 {
		t.Errorf("Expected track 3, got %+v (err %v)", got, err)
	}
	if _, err := SelectDefault(tracks[:2]); !errors.Is(err, ErrNoSupportedTrack) {
		t.Errorf("Expected ErrNoSupportedTrack, got %v", err)
	}
}

func TestBlockChannel(t *testing.T) {
	b := Block{Frames: 3, Channels: 2, Samples: []float32{1, -1, 2, -2, 3, -3}}
	right := b.Channel(1)
	if len(right) != 3 || right[0] != -1 || right[2] != -3 {
		t.Errorf("Unexpected right channel: %v", right)
	}
	if len(b.Channel(2)) != 0 {
		t.Error("Expected empty slice for out-of-range channel")
	}
}
