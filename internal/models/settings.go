package models

// AlertSettings is the subset of a creator's overlay settings the presenter acts on.
// Visual fields (colors, fonts, animation) are passed through untouched for the browser source.
type AlertSettings struct {
	Duration     int    `json:"duration"`
	SoundEnabled bool   `json:"sound_enabled"`
	SoundFile    string `json:"sound_file"`
	SoundVolume  int    `json:"sound_volume"`
	Animation    string `json:"animation,omitempty"`
	Theme        string `json:"theme,omitempty"`
}

// DefaultAlertSettings mirrors the backend defaults for a creator who never saved settings.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		Duration:    5,
		SoundFile:   "default",
		SoundVolume: 50,
		Animation:   "slide",
		Theme:       "default",
	}
}
