package relay

import (
	"context"
	"errors"
)

// ErrNoListeners is returned when no browser source is connected to play an effect.
var ErrNoListeners = errors.New("relay: no browser source connected")

// Effects plays sounds and speech in the connected browser sources.
type Effects struct {
	hub *Hub
}

func NewEffects(hub *Hub) *Effects {
	return &Effects{hub: hub}
}

// Play asks browser sources to play the alert sound.
func (e *Effects) Play(ctx context.Context, file string, volume int) error {
	if e.hub.Count() == 0 {
		return ErrNoListeners
	}
	e.hub.Broadcast(Message{Type: TypeSound, File: file, Volume: volume})
	return nil
}

// Speak asks browser sources to read text aloud and holds until ctx ends, at which
// point any speech still playing is cancelled.
func (e *Effects) Speak(ctx context.Context, text string) error {
	if e.hub.Count() == 0 {
		return ErrNoListeners
	}
	e.hub.Broadcast(Message{Type: TypeSpeech, Text: text})
	<-ctx.Done()
	e.hub.Broadcast(Message{Type: TypeSpeechCancel})
	return nil
}
