// Package decode adapts audio containers to a packet/block stream consumed by
// the playback producer and the analysis tools.
package decode

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSupportedTrack is returned when a container has no track that can be decoded.
	ErrNoSupportedTrack = errors.New("no supported audio track")
	// ErrUnsupportedFormat is returned for containers no decoder is registered for.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

type TrackID uint32

// Track describes one audio track of a container.
type Track struct {
	ID         TrackID
	Codec      string
	SampleRate int
	Channels   int
	// Frames is the track length in frames at SampleRate, or -1 when unknown.
	Frames int64
}

// Duration returns the track length, or 0 when the length is unknown.
func (t Track) Duration() time.Duration {
	if t.Frames < 0 || t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(t.Frames) / float64(t.SampleRate) * float64(time.Second))
}

// Packet is one unit of undecoded data read from the container, in decode order.
type Packet struct {
	Track     TrackID
	Timestamp uint64 // in frames
	Frames    int
	Data      [][2]float64
}

// Block is a decoded run of interleaved samples.
type Block struct {
	Timestamp  uint64 // first frame of the block
	Frames     int
	Channels   int
	SampleRate int
	Samples    []float32 // len == Frames*Channels
}

// End is the timestamp just past the last frame of the block.
func (b Block) End() uint64 {
	return b.Timestamp + uint64(b.Frames)
}

// Channel returns the samples of channel c, one per frame.
func (b Block) Channel(c int) []float32 {
	out := make([]float32, 0, b.Frames)
	if c < 0 || c >= b.Channels {
		return out
	}
	for i := c; i < len(b.Samples); i += b.Channels {
		out = append(out, b.Samples[i])
	}
	return out
}

// Stream is the capability interface of a decoding engine.
//
// ReadPacket returns io.EOF at the end of the stream. Decode may return a
// *DecodeError for a single bad packet; the caller may skip it and continue.
// Any other error is fatal for the stream.
type Stream interface {
	Tracks() []Track
	DefaultTrack() (Track, error)
	ReadPacket() (Packet, error)
	Decode(p Packet) (Block, error)
	Close() error
}

// DecodeError reports a packet that could not be decoded. The stream stays usable.
type DecodeError struct {
	Timestamp uint64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode packet at frame %d: %v", e.Timestamp, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err only affects a single packet.
func IsRecoverable(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// SelectDefault returns the first track with a known codec and sample rate.
func SelectDefault(tracks []Track) (Track, error) {
	for _, t := range tracks {
		if t.Codec != "" && t.SampleRate > 0 && t.Channels > 0 {
			return t, nil
		}
	}
	return Track{}, ErrNoSupportedTrack
}
