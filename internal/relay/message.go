package relay

import "jajanin-relay/internal/presenter"

// Message types sent to browser sources.
const (
	TypeTransition   = "transition"
	TypeSound        = "sound"
	TypeSpeech       = "speech"
	TypeSpeechCancel = "speech_cancel"
	TypeSettings     = "settings"
)

// TypeAudioUnlocked is sent by a browser source after the first user gesture.
const TypeAudioUnlocked = "audio_unlocked"

// Message is one websocket frame.
type Message struct {
	Type       string                `json:"type"`
	Transition *presenter.Transition `json:"transition,omitempty"`
	Settings   *presenter.Settings   `json:"settings,omitempty"`
	File       string                `json:"file,omitempty"`
	Volume     int                   `json:"volume,omitempty"`
	Text       string                `json:"text,omitempty"`
}
