// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice   PracticeConfig   `toml:"practice"`
	Audio      AudioConfig      `toml:"audio"`
	Recognizer RecognizerConfig `toml:"recognizer"`
	Speech     SpeechConfig     `toml:"speech"`
	Session    SessionConfig    `toml:"session"`
	Log        LogConfig        `toml:"log"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Lang       *string  `toml:"lang"`
	Learner    *string  `toml:"learner"`
	Deck       *string  `toml:"deck"`
	Shuffle    *bool    `toml:"shuffle"`
	FocusWeak  *bool    `toml:"focus-weak"`
	WeakTop    *int     `toml:"weak-top"`
	WeakFactor *float64 `toml:"weak-factor"`
	WeakWindow *int     `toml:"weak-window"`
	Prompt     *bool    `toml:"prompt"`
}

// AudioConfig maps microphone and voice activity settings.
type AudioConfig struct {
	SampleRate       *int     `toml:"sample-rate"`
	ThresholdDB      *float64 `toml:"threshold-db"`
	MinSilenceMs     *int     `toml:"min-silence-ms"`
	SampleIntervalMs *int     `toml:"sample-interval-ms"`
	Device           *string  `toml:"device"`
}

// RecognizerConfig maps the transcription server settings.
type RecognizerConfig struct {
	URL               *string `toml:"url"`
	Model             *string `toml:"model"`
	TimeoutSec        *int    `toml:"timeout-sec"`
	EndpointSilenceMs *int    `toml:"endpoint-silence-ms"`
	MaxListenSec      *int    `toml:"max-listen-sec"`
}

// SpeechConfig maps prompt playback settings.
type SpeechConfig struct {
	Command  *string `toml:"command"`
	VoiceEn  *string `toml:"voice-en"`
	VoiceFil *string `toml:"voice-fil"`
}

// SessionConfig maps attempt lifecycle settings.
type SessionConfig struct {
	AttemptTimeoutSec *int  `toml:"attempt-timeout-sec"`
	PersistEach       *bool `toml:"persist-each"`
}

// LogConfig maps log output settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
// Unknown keys are rejected so typos do not pass silently.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return FileConfig{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}
