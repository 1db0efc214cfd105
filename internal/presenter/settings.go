package presenter

import (
	"time"

	"jajanin-relay/internal/models"
)

// Duration bounds in seconds.
const (
	MinDuration     = 3
	MaxDuration     = 10
	DefaultDuration = 5
)

// DefaultHideTransition is the pause between hiding an alert and showing the next one.
const DefaultHideTransition = 500 * time.Millisecond

// Settings control how each alert is presented.
type Settings struct {
	// Duration is how many seconds an alert stays visible.
	Duration     int    `json:"duration"`
	SoundEnabled bool   `json:"sound_enabled"`
	SoundFile    string `json:"sound_file"`
	SoundVolume  int    `json:"sound_volume"`
	TTSEnabled   bool   `json:"tts_enabled"`
}

// DefaultSettings returns the settings used before a creator's own are loaded.
func DefaultSettings() Settings {
	return Settings{
		Duration:    DefaultDuration,
		SoundFile:   "default",
		SoundVolume: 50,
		TTSEnabled:  true,
	}
}

// FromAlertSettings maps the backend's overlay settings onto presenter settings.
func FromAlertSettings(s models.AlertSettings, tts bool) Settings {
	return Settings{
		Duration:     s.Duration,
		SoundEnabled: s.SoundEnabled,
		SoundFile:    s.SoundFile,
		SoundVolume:  s.SoundVolume,
		TTSEnabled:   tts,
	}.Normalize()
}

// Normalize clamps the duration into range and the volume into 0-100. A zero duration
// means unset and becomes the default.
func (s Settings) Normalize() Settings {
	switch {
	case s.Duration == 0:
		s.Duration = DefaultDuration
	case s.Duration < MinDuration:
		s.Duration = MinDuration
	case s.Duration > MaxDuration:
		s.Duration = MaxDuration
	}
	if s.SoundVolume < 0 {
		s.SoundVolume = 0
	}
	if s.SoundVolume > 100 {
		s.SoundVolume = 100
	}
	if s.SoundFile == "" {
		s.SoundFile = "default"
	}
	return s
}
