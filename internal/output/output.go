// Package output delivers decoded blocks to an audio device with blocking
// backpressure.
package output

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/wavesync/internal/decode"
)

// ErrClosed is returned when writing to an output that was already closed.
var ErrClosed = errors.New("output closed")

// Format is the sample format an output is opened with.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatOf returns the format of a decoded block.
func FormatOf(b decode.Block) Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// Output consumes decoded blocks. Write blocks until the device has room for
// the block. Close waits for queued audio to finish playing.
type Output interface {
	Write(b decode.Block) error
	Close() error
}

// Opener opens an output once the stream format is known.
type Opener func(f Format) (Output, error)

// BackendType names an output implementation.
type BackendType string

const (
	BackendTypeSpeaker BackendType = "speaker"
	BackendTypePacer   BackendType = "pacer"
	BackendTypeAuto    BackendType = "auto"
)

// Options configure the output backends.
type Options struct {
	Backend BackendType
	Buffer  time.Duration
}

// NewOpener returns an Opener for the configured backend.
func NewOpener(opts Options) Opener {
	switch determineBackend(opts.Backend) {
	case BackendTypePacer:
		return func(f Format) (Output, error) {
			p, err := NewPacer(f)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	default:
		return func(f Format) (Output, error) {
			s, err := OpenSpeaker(f, opts.Buffer)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
}

func determineBackend(b BackendType) BackendType {
	switch strings.ToLower(string(b)) {
	case string(BackendTypePacer):
		return BackendTypePacer
	default:
		return BackendTypeSpeaker
	}
}

// ParseBackend converts a flag value into a BackendType.
func ParseBackend(s string) (BackendType, error) {
	switch strings.ToLower(s) {
	case "", string(BackendTypeAuto):
		return BackendTypeAuto, nil
	case string(BackendTypeSpeaker):
		return BackendTypeSpeaker, nil
	case string(BackendTypePacer):
		return BackendTypePacer, nil
	}
	return "", fmt.Errorf("unknown output backend: %s", s)
}

// GetAvailableBackends returns the selectable backends.
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeSpeaker, BackendTypePacer}
}

func validateFormat(f Format) error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	return nil
}
