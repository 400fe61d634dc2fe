// Package metadata looks up track properties and embedded tags by name.
package metadata

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/audiolibrelab/wavesync/internal/decode"
)

var (
	// ErrUnknownTag is returned for names outside Names.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrTagNotFound is returned when the file carries no value for a known name.
	ErrTagNotFound = errors.New("tag not found")
)

// Format properties, read from the decoder.
const (
	Duration       = "duration"
	FrameRate      = "frameRate"
	ChannelsNumber = "channelsNumber"
	TotalFrames    = "totalFrames"
)

// Embedded tags, read with dhowden/tag.
const (
	Artist      = "artist"
	Album       = "album"
	Bpm         = "bpm"
	Date        = "date"
	Genre       = "genre"
	Lyrics      = "lyrics"
	TrackNumber = "trackNumber"
	TrackName   = "trackName"
)

// Names lists every name accepted by Lookup.
var Names = []string{
	Artist, Album, Bpm, Date, Genre, Lyrics, TrackNumber, TrackName,
	Duration, FrameRate, ChannelsNumber, TotalFrames,
}

// IsKnown reports whether name is one of Names.
func IsKnown(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Metadata is the format description of a file plus its tags, if any.
type Metadata struct {
	Path       string
	Codec      string
	SampleRate int
	Channels   int
	Frames     int64 // -1 when unknown
	Tags       tag.Metadata
}

// FileReader looks names up in files on disk.
type FileReader struct{}

// Lookup reads path and returns the value for name.
func (FileReader) Lookup(path, name string) (string, error) {
	if !IsKnown(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, name)
	}
	m, err := Read(path)
	if err != nil {
		return "", err
	}
	return m.Lookup(name)
}

// Read opens path once for the decoder's format header and once for tags.
// A file without tags is not an error.
func Read(path string) (*Metadata, error) {
	stream, err := decode.Open(path, decode.Options{})
	if err != nil {
		return nil, err
	}
	format := stream.Format()
	track, err := stream.DefaultTrack()
	stream.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m := &Metadata{
		Path:       path,
		Codec:      track.Codec,
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Frames:     track.Frames,
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	switch {
	case err == nil:
		m.Tags = tags
	case errors.Is(err, tag.ErrNoTagsFound):
	default:
		slog.Debug("Unreadable tags", "path", path, "error", err)
	}
	return m, nil
}

// Lookup returns the value for name. Format properties are answered from
// the decoder before tags are consulted.
func (m *Metadata) Lookup(name string) (string, error) {
	if !IsKnown(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, name)
	}
	if v, ok := m.format(name); ok {
		return v, nil
	}
	if v := m.tag(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrTagNotFound, name)
}

// All returns every name that has a value.
func (m *Metadata) All() map[string]string {
	out := make(map[string]string)
	for _, n := range Names {
		if v, err := m.Lookup(n); err == nil {
			out[n] = v
		}
	}
	return out
}

func (m *Metadata) format(name string) (string, bool) {
	switch name {
	case Duration:
		if m.Frames < 0 || m.SampleRate <= 0 {
			return "", false
		}
		return formatDuration(m.Frames, m.SampleRate), true
	case FrameRate:
		if m.SampleRate <= 0 {
			return "", false
		}
		return strconv.Itoa(m.SampleRate), true
	case ChannelsNumber:
		if m.Channels <= 0 {
			return "", false
		}
		return strconv.Itoa(m.Channels), true
	case TotalFrames:
		if m.Frames < 0 {
			return "", false
		}
		return strconv.FormatInt(m.Frames, 10), true
	}
	return "", false
}

func (m *Metadata) tag(name string) string {
	t := m.Tags
	if t == nil {
		return ""
	}
	switch name {
	case Artist:
		return t.Artist()
	case Album:
		return t.Album()
	case Genre:
		return t.Genre()
	case Lyrics:
		return t.Lyrics()
	case TrackName:
		return t.Title()
	case TrackNumber:
		if n, _ := t.Track(); n > 0 {
			return strconv.Itoa(n)
		}
	case Date:
		if y := t.Year(); y > 0 {
			return strconv.Itoa(y)
		}
		return raw(t, "date", "TDRC", "TYER", "TYE", "©day")
	case Bpm:
		return raw(t, "bpm", "TBPM", "TBP", "tmpo")
	}
	return ""
}

// raw returns the first non-empty raw frame among keys. Vorbis comment keys
// are matched case-insensitively.
func raw(t tag.Metadata, keys ...string) string {
	frames := t.Raw()
	for _, k := range keys {
		for rk, v := range frames {
			if rk != k && !strings.EqualFold(rk, k) {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" && s != "0" {
				return s
			}
		}
	}
	return ""
}

func formatDuration(frames int64, rate int) string {
	secs := float64(frames) / float64(rate)
	h := int64(secs) / 3600
	m := (int64(secs) % 3600) / 60
	s := secs - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%06.3f", h, m, s)
}

// SortedKeys returns the keys of values in Names order.
func SortedKeys(values map[string]string) []string {
	order := make(map[string]int, len(Names))
	for i, n := range Names {
		order[n] = i
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })
	return keys
}
