package presenter

import "sync"

// AudioGate records whether the viewer has made the one-time gesture that lets the
// browser play unprompted audio. Speech is skipped until it is unlocked.
type AudioGate struct {
	mu       sync.RWMutex
	unlocked bool
}

// NewAudioGate returns a locked gate.
func NewAudioGate() *AudioGate {
	return &AudioGate{}
}

// Unlock opens the gate and reports whether it was previously locked.
func (g *AudioGate) Unlock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.unlocked
	g.unlocked = true
	return !was
}

// Unlocked reports whether speech may play.
func (g *AudioGate) Unlocked() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unlocked
}
