package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const DefaultBlockFrames = 1024

// Options controls how a file is decoded.
type Options struct {
	// SampleRate resamples the stream to this rate. 0 keeps the native rate.
	SampleRate int
	// BlockFrames is the number of frames per packet.
	BlockFrames int
	// ResampleQuality is passed to beep.Resample, within [1, 64].
	ResampleQuality int
}

func (o Options) withDefaults() Options {
	if o.BlockFrames <= 0 {
		o.BlockFrames = DefaultBlockFrames
	}
	if o.ResampleQuality <= 0 {
		o.ResampleQuality = 4
	}
	return o
}

type decoderFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]struct {
	codec  string
	decode decoderFunc
}{
	".wav": {"pcm", func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(rc) }},
	".mp3": {"mp3", mp3.Decode},
	".flac": {"flac", func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(rc) }},
	".ogg": {"vorbis", vorbis.Decode},
}

// Supported reports whether a decoder is registered for the file extension of path.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// BeepStream decodes a single-track container with gopxl/beep.
type BeepStream struct {
	source beep.StreamSeekCloser
	stream beep.Streamer
	format beep.Format
	track  Track
	opts   Options
	pos    uint64
	eof    bool
}

// Open opens path and selects a decoder by its extension.
func Open(path string, opts Options) (*BeepStream, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := decoders[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s, err := NewBeepStream(f, ext, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// NewBeepStream decodes rc as the container type named by ext (".wav", ".mp3", ...).
// Closing the returned stream closes rc.
func NewBeepStream(rc io.ReadCloser, ext string, opts Options) (*BeepStream, error) {
	d, ok := decoders[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	opts = opts.withDefaults()

	source, format, err := d.decode(rc)
	if err != nil {
		return nil, err
	}

	channels := format.NumChannels
	if channels > 2 {
		channels = 2
	}
	frames := int64(source.Len())
	if frames <= 0 {
		frames = -1
	}

	var s beep.Streamer = source
	rate := int(format.SampleRate)
	if opts.SampleRate > 0 && opts.SampleRate != rate && rate > 0 {
		s = beep.Resample(opts.ResampleQuality, format.SampleRate, beep.SampleRate(opts.SampleRate), s)
		if frames > 0 {
			frames = frames * int64(opts.SampleRate) / int64(rate)
		}
		rate = opts.SampleRate
	}

	return &BeepStream{
		source: source,
		stream: s,
		format: format,
		opts:   opts,
		track: Track{
			ID:         0,
			Codec:      d.codec,
			SampleRate: rate,
			Channels:   channels,
			Frames:     frames,
		},
	}, nil
}

// Format returns the native format reported by the decoder.
func (s *BeepStream) Format() beep.Format {
	return s.format
}

func (s *BeepStream) Tracks() []Track {
	return []Track{s.track}
}

func (s *BeepStream) DefaultTrack() (Track, error) {
	return SelectDefault(s.Tracks())
}

// ReadPacket pulls up to BlockFrames frames from the decoder.
func (s *BeepStream) ReadPacket() (Packet, error) {
	if s.eof {
		return Packet{}, io.EOF
	}
	buf := make([][2]float64, s.opts.BlockFrames)
	n := 0
	for n < len(buf) {
		m, ok := s.stream.Stream(buf[n:])
		n += m
		if !ok {
			if err := s.stream.Err(); err != nil {
				return Packet{}, fmt.Errorf("read packet at frame %d: %w", s.pos, err)
			}
			s.eof = true
			break
		}
	}
	if n == 0 {
		return Packet{}, io.EOF
	}
	p := Packet{
		Track:     s.track.ID,
		Timestamp: s.pos,
		Frames:    n,
		Data:      buf[:n],
	}
	s.pos += uint64(n)
	return p, nil
}

// Decode converts a packet into interleaved float32 samples.
func (s *BeepStream) Decode(p Packet) (Block, error) {
	if p.Track != s.track.ID {
		return Block{}, &DecodeError{Timestamp: p.Timestamp, Err: fmt.Errorf("packet belongs to track %d", p.Track)}
	}
	if len(p.Data) != p.Frames {
		return Block{}, &DecodeError{Timestamp: p.Timestamp, Err: fmt.Errorf("packet holds %d frames, header says %d", len(p.Data), p.Frames)}
	}
	ch := s.track.Channels
	samples := make([]float32, p.Frames*ch)
	for i, frame := range p.Data {
		for c := 0; c < ch; c++ {
			samples[i*ch+c] = float32(frame[c])
		}
	}
	return Block{
		Timestamp:  p.Timestamp,
		Frames:     p.Frames,
		Channels:   ch,
		SampleRate: s.track.SampleRate,
		Samples:    samples,
	}, nil
}

func (s *BeepStream) Close() error {
	return s.source.Close()
}
