package beat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/wavesync/internal/analysis"
	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/pcm"
)

// DetectFile loads path at its native rate and runs Detect on the mono mix.
// WAV files are read directly; other formats go through the decoder.
func DetectFile(path string, opts Options) ([]float64, error) {
	var (
		buf *pcm.Buffer
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err = pcm.ReadWAV(path)
	} else {
		buf, err = decodeFile(path)
	}
	if err != nil {
		return nil, err
	}

	times, err := Detect(buf.Mono(), buf.SampleRate, opts)
	if err != nil {
		return nil, fmt.Errorf("beat detection failed for %s: %w", path, err)
	}
	return times, nil
}

func decodeFile(path string) (*pcm.Buffer, error) {
	stream, err := decode.Open(path, decode.Options{})
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return analysis.FileSamples(stream)
}
