package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SurfaceTerminal  = "terminal"
	SurfaceHeadless  = "headless"
	SurfaceWebsocket = "websocket"

	ModeWaveform = "waveform"
	ModeSpectrum = "spectrum"

	OriginInherited = "inherited"
	OriginProfile   = "profile-specific"
)

// BeatAlgorithms lists the onset detection functions understood by internal/beat.
var BeatAlgorithms = []string{"Energy", "Hfc", "Complex", "Phase", "WPhase", "SpecDiff", "Kl", "Mkl", "SpecFlux"}

type AudioConfig struct {
	SampleRate      int `mapstructure:"sample_rate" yaml:"sample_rate"` // 0 keeps the file's native rate
	BufferMs        int `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	BlockFrames     int `mapstructure:"block_frames" yaml:"block_frames"`
	ResampleQuality int `mapstructure:"resample_quality" yaml:"resample_quality"`
}

type DisplayConfig struct {
	Surface   string `mapstructure:"surface" yaml:"surface"` // "terminal", "headless", "websocket"
	Mode      string `mapstructure:"mode" yaml:"mode"`       // "waveform", "spectrum"
	Width     int    `mapstructure:"width" yaml:"width"`
	Height    int    `mapstructure:"height" yaml:"height"`
	CadenceUs int    `mapstructure:"cadence_us" yaml:"cadence_us"`
	Listen    string `mapstructure:"listen" yaml:"listen"`
}

type PlaybackConfig struct {
	StopOnClose bool `mapstructure:"stop_on_close" yaml:"stop_on_close"`
}

type BeatsConfig struct {
	Algorithm string  `mapstructure:"algorithm" yaml:"algorithm"`
	BufSize   int     `mapstructure:"buf_size" yaml:"buf_size"`
	HopSize   int     `mapstructure:"hop_size" yaml:"hop_size"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

type LibraryConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// Config is the resolved configuration handed to the rest of the program.
type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Beats    BeatsConfig    `mapstructure:"beats" yaml:"beats"`
	Library  LibraryConfig  `mapstructure:"library" yaml:"library"`

	// Profile is the name of the profile the config was resolved from.
	Profile string `mapstructure:"-" yaml:"-"`
	// Origins maps "section.key" to OriginInherited or OriginProfile.
	Origins map[string]string `mapstructure:"-" yaml:"-"`
}

// PlaybackProfile uses a pointer so an explicit false is distinguishable from "not set".
type PlaybackProfile struct {
	StopOnClose *bool `mapstructure:"stop_on_close,omitempty" yaml:"stop_on_close,omitempty"`
}

type ConfigProfile struct {
	Audio    AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Display  DisplayConfig   `mapstructure:"display" yaml:"display"`
	Playback PlaybackProfile `mapstructure:"playback" yaml:"playback"`
	Beats    BeatsConfig     `mapstructure:"beats" yaml:"beats"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
	Library      *LibraryConfig            `mapstructure:"library,omitempty" yaml:"library,omitempty"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate:      48000,
		BufferMs:        100,
		BlockFrames:     1024,
		ResampleQuality: 4,
	},
	Display: DisplayConfig{
		Surface:   SurfaceTerminal,
		Mode:      ModeWaveform,
		Width:     1024,
		Height:    768,
		CadenceUs: 16600,
		Listen:    "127.0.0.1:8765",
	},
	Playback: PlaybackConfig{
		StopOnClose: true,
	},
	Beats: BeatsConfig{
		Algorithm: "SpecFlux",
		BufSize:   512,
		HopSize:   256,
		Threshold: 1.5,
	},
	Library: LibraryConfig{
		Extensions: []string{"mp3", "flac", "wav", "ogg"},
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	cfg.Library.Extensions = append([]string(nil), defaultConfig.Library.Extensions...)
	cfg.Profile = "builtin"
	cfg.Origins = map[string]string{}
	return &cfg
}

// DefaultPath is where the config is looked up when --config is not given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/wavesync.yaml")
}

// Cadence is the minimum interval between two rendered frames.
func (c *Config) Cadence() time.Duration {
	return time.Duration(c.Display.CadenceUs) * time.Microsecond
}

// OutputBuffer is the audio device buffer length.
func (c *Config) OutputBuffer() time.Duration {
	return time.Duration(c.Audio.BufferMs) * time.Millisecond
}

// Load resolves the configuration. A missing file at the default path is not
// an error: the built-in defaults are used instead.
func Load(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
		if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if profile != "" && profile != "default" {
				return nil, fmt.Errorf("configuration profile '%s' not found (no config file at %s)", profile, configFile)
			}
			return cfg, cfg.Validate()
		}
	}
	return LoadWithProfile(configFile, profile)
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		if configName != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selectedProfile = &ConfigProfile{}
	}

	// Inherit from the "default" profile first, then from the built-in values.
	base := Default()
	if configName != "default" {
		if defaultProfile, ok := rootConfig.Configs["default"]; ok {
			base = mergeConfigs(base, defaultProfile)
		}
	}
	resolved := mergeConfigs(base, selectedProfile)
	resolved.Profile = configName

	if rootConfig.Library != nil && len(rootConfig.Library.Extensions) > 0 {
		resolved.Library.Extensions = normalizeExtensions(rootConfig.Library.Extensions)
		resolved.Origins["library.extensions"] = OriginProfile
	}

	if err := resolved.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// ReadRootConfig parses the config file without resolving any profile.
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("WAVESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, p := range rootConfig.Configs {
		if p == nil {
			return nil, fmt.Errorf("configs.%s: profile is empty", name)
		}
	}
	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// mergeConfigs overlays the non-zero fields of profile on top of base and
// records where each value came from.
func mergeConfigs(base *Config, profile *ConfigProfile) *Config {
	result := &Config{Origins: map[string]string{}}
	if base != nil {
		*result = *base
		result.Library.Extensions = append([]string(nil), base.Library.Extensions...)
		result.Origins = map[string]string{}
		for k, v := range base.Origins {
			result.Origins[k] = v
		}
	}
	if profile == nil {
		return result
	}

	setInt := func(key string, dst *int, v int) {
		if v != 0 {
			*dst = v
			result.Origins[key] = OriginProfile
		} else if _, ok := result.Origins[key]; !ok {
			result.Origins[key] = OriginInherited
		}
	}
	setString := func(key string, dst *string, v string) {
		if v != "" {
			*dst = v
			result.Origins[key] = OriginProfile
		} else if _, ok := result.Origins[key]; !ok {
			result.Origins[key] = OriginInherited
		}
	}

	setInt("audio.sample_rate", &result.Audio.SampleRate, profile.Audio.SampleRate)
	setInt("audio.buffer_ms", &result.Audio.BufferMs, profile.Audio.BufferMs)
	setInt("audio.block_frames", &result.Audio.BlockFrames, profile.Audio.BlockFrames)
	setInt("audio.resample_quality", &result.Audio.ResampleQuality, profile.Audio.ResampleQuality)

	setString("display.surface", &result.Display.Surface, strings.ToLower(profile.Display.Surface))
	setString("display.mode", &result.Display.Mode, strings.ToLower(profile.Display.Mode))
	setInt("display.width", &result.Display.Width, profile.Display.Width)
	setInt("display.height", &result.Display.Height, profile.Display.Height)
	setInt("display.cadence_us", &result.Display.CadenceUs, profile.Display.CadenceUs)
	setString("display.listen", &result.Display.Listen, profile.Display.Listen)

	if profile.Playback.StopOnClose != nil {
		result.Playback.StopOnClose = *profile.Playback.StopOnClose
		result.Origins["playback.stop_on_close"] = OriginProfile
	} else if _, ok := result.Origins["playback.stop_on_close"]; !ok {
		result.Origins["playback.stop_on_close"] = OriginInherited
	}

	setString("beats.algorithm", &result.Beats.Algorithm, profile.Beats.Algorithm)
	setInt("beats.buf_size", &result.Beats.BufSize, profile.Beats.BufSize)
	setInt("beats.hop_size", &result.Beats.HopSize, profile.Beats.HopSize)
	if profile.Beats.Threshold != 0 {
		result.Beats.Threshold = profile.Beats.Threshold
		result.Origins["beats.threshold"] = OriginProfile
	} else if _, ok := result.Origins["beats.threshold"]; !ok {
		result.Origins["beats.threshold"] = OriginInherited
	}

	return result
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("audio.sample_rate must be >= 0, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.BufferMs <= 0 {
		return fmt.Errorf("audio.buffer_ms must be > 0, got: %d", c.Audio.BufferMs)
	}
	if c.Audio.BlockFrames <= 0 {
		return fmt.Errorf("audio.block_frames must be > 0, got: %d", c.Audio.BlockFrames)
	}
	if c.Audio.ResampleQuality < 1 || c.Audio.ResampleQuality > 64 {
		return fmt.Errorf("audio.resample_quality must be within [1, 64], got: %d", c.Audio.ResampleQuality)
	}

	switch c.Display.Surface {
	case SurfaceTerminal, SurfaceHeadless, SurfaceWebsocket:
	default:
		return fmt.Errorf("display.surface must be '%s', '%s' or '%s', got: %s",
			SurfaceTerminal, SurfaceHeadless, SurfaceWebsocket, c.Display.Surface)
	}
	switch c.Display.Mode {
	case ModeWaveform, ModeSpectrum:
	default:
		return fmt.Errorf("display.mode must be '%s' or '%s', got: %s", ModeWaveform, ModeSpectrum, c.Display.Mode)
	}
	if c.Display.Width < 64 || c.Display.Height < 64 {
		return fmt.Errorf("display size must be at least 64x64, got: %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Display.CadenceUs <= 0 {
		return fmt.Errorf("display.cadence_us must be > 0, got: %d", c.Display.CadenceUs)
	}
	if c.Display.Surface == SurfaceWebsocket && c.Display.Listen == "" {
		return fmt.Errorf("display.listen is required for the websocket surface")
	}

	if !IsBeatAlgorithm(c.Beats.Algorithm) {
		return fmt.Errorf("beats.algorithm must be one of [%s], got: %s", strings.Join(BeatAlgorithms, ", "), c.Beats.Algorithm)
	}
	if c.Beats.BufSize <= 0 || c.Beats.BufSize&(c.Beats.BufSize-1) != 0 {
		return fmt.Errorf("beats.buf_size must be a power of two, got: %d", c.Beats.BufSize)
	}
	if c.Beats.HopSize <= 0 || c.Beats.HopSize > c.Beats.BufSize {
		return fmt.Errorf("beats.hop_size must be within (0, buf_size], got: %d", c.Beats.HopSize)
	}
	if c.Beats.Threshold <= 0 {
		return fmt.Errorf("beats.threshold must be > 0, got: %.2f", c.Beats.Threshold)
	}

	if len(c.Library.Extensions) == 0 {
		return fmt.Errorf("library.extensions cannot be empty")
	}
	return nil
}

// IsBeatAlgorithm reports whether name is a known onset function.
func IsBeatAlgorithm(name string) bool {
	for _, a := range BeatAlgorithms {
		if a == name {
			return true
		}
	}
	return false
}

// SortedOrigins returns the origin keys in a stable order for display.
func (c *Config) SortedOrigins() []string {
	keys := make([]string, 0, len(c.Origins))
	for k := range c.Origins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasExtension reports whether path has one of the configured library extensions.
func (c *Config) HasExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range c.Library.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// ExpandPath resolves a leading "~/" to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
