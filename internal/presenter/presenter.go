// Package presenter shows donation alerts one at a time. Each alert runs show, sound,
// speech, hide and idle in order, and the sound or speech of the next alert never starts
// before the previous alert has gone idle.
package presenter

import (
	"context"
	"sync"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// State is the visible state of the overlay.
type State string

const (
	StateIdle    State = "idle"
	StateShowing State = "showing"
	StateHiding  State = "hiding"
)

// Transition is published every time the presenter changes state.
type Transition struct {
	Seq     uint64            `json:"seq"`
	State   State             `json:"state"`
	Alert   models.AlertEvent `json:"alert"`
	Display string            `json:"display"`
	At      time.Time         `json:"at"`
}

// SoundPlayer plays the alert sound effect.
type SoundPlayer interface {
	Play(ctx context.Context, file string, volume int) error
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Options configures a Presenter.
type Options struct {
	// Settings defaults to DefaultSettings when nil.
	Settings       *Settings
	HideTransition time.Duration
	// TimeUnit scales Settings.Duration. Defaults to a second.
	TimeUnit time.Duration
	History  *History
}

// Presenter owns the alert queue and the presentation state machine.
type Presenter struct {
	sound   SoundPlayer
	speaker Speaker
	gate    *AudioGate
	history *History
	hide    time.Duration
	unit    time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	settings  Settings
	queue     []models.AlertEvent
	state     State
	seq       uint64
	listeners []func(Transition)
	wake      chan struct{}
}

// New creates an idle presenter. sound and speaker may be nil to disable those effects.
func New(opts Options, sound SoundPlayer, speaker Speaker, gate *AudioGate) *Presenter {
	if opts.HideTransition <= 0 {
		opts.HideTransition = DefaultHideTransition
	}
	if opts.TimeUnit <= 0 {
		opts.TimeUnit = time.Second
	}
	if opts.History == nil {
		opts.History = NewHistory(HistoryCapacity)
	}
	if gate == nil {
		gate = NewAudioGate()
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	return &Presenter{
		sound:    sound,
		speaker:  speaker,
		gate:     gate,
		history:  opts.History,
		hide:     opts.HideTransition,
		unit:     opts.TimeUnit,
		logger:   util.ComponentLogger("presenter"),
		settings: settings.Normalize(),
		state:    StateIdle,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends an alert and records it in the recent-donations feed.
// Presentation starts immediately when the presenter is idle.
func (p *Presenter) Enqueue(alert models.AlertEvent) {
	p.history.Add(alert, time.Now())

	p.mu.Lock()
	p.queue = append(p.queue, alert)
	depth := len(p.queue)
	p.mu.Unlock()

	util.AlertQueueDepth.Set(float64(depth))
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// State returns the current presentation state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns how many alerts wait behind the current one.
func (p *Presenter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Settings returns the active settings.
func (p *Presenter) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the settings. The alert on screen keeps the settings it started with.
func (p *Presenter) SetSettings(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = s.Normalize()
}

// History returns the recent-donations feed.
func (p *Presenter) History() *History {
	return p.history
}

// OnTransition registers a listener called synchronously on every state change.
// Listeners must not block.
func (p *Presenter) OnTransition(fn func(Transition)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Run presents queued alerts until ctx is cancelled.
func (p *Presenter) Run(ctx context.Context) error {
	p.logger.Info("Presenter started")
	for {
		alert, ok := p.next(ctx)
		if !ok {
			p.logger.Info("Presenter stopped")
			return ctx.Err()
		}
		p.present(ctx, alert)
	}
}

func (p *Presenter) next(ctx context.Context) (models.AlertEvent, bool) {
	for {
		if ctx.Err() != nil {
			return models.AlertEvent{}, false
		}
		p.mu.Lock()
		if len(p.queue) > 0 {
			alert := p.queue[0]
			p.queue = p.queue[1:]
			depth := len(p.queue)
			p.mu.Unlock()
			util.AlertQueueDepth.Set(float64(depth))
			return alert, true
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.AlertEvent{}, false
		case <-p.wake:
		}
	}
}

func (p *Presenter) present(ctx context.Context, alert models.AlertEvent) {
	settings := p.Settings()

	p.transition(StateShowing, alert)

	fxCtx, cancelFx := context.WithCancel(ctx)
	fxDone := make(chan struct{})
	go func() {
		defer close(fxDone)
		p.effects(fxCtx, alert, settings)
	}()

	if sleep(ctx, time.Duration(settings.Duration)*p.unit) {
		p.transition(StateHiding, alert)
		sleep(ctx, p.hide)
	}

	cancelFx()
	<-fxDone
	p.transition(StateIdle, alert)
	util.AlertsPresentedTotal.Inc()
}

// effects plays the sound and then speaks. Both are cut off when the alert goes idle.
func (p *Presenter) effects(ctx context.Context, alert models.AlertEvent, settings Settings) {
	if settings.SoundEnabled && p.sound != nil {
		if err := p.sound.Play(ctx, settings.SoundFile, settings.SoundVolume); err != nil && ctx.Err() == nil {
			util.AlertEffectFailuresTotal.WithLabelValues("sound").Inc()
			p.logger.Warn("Alert sound failed", zap.String("file", settings.SoundFile), zap.Error(err))
		}
	}

	if !settings.TTSEnabled || p.speaker == nil {
		return
	}
	if !p.gate.Unlocked() {
		p.logger.Debug("Speech skipped, audio not unlocked")
		return
	}
	if err := p.speaker.Speak(ctx, alert.SpeechText()); err != nil && ctx.Err() == nil {
		util.AlertEffectFailuresTotal.WithLabelValues("speech").Inc()
	}
}

func (p *Presenter) transition(state State, alert models.AlertEvent) {
	p.mu.Lock()
	p.state = state
	p.seq++
	t := Transition{
		Seq:     p.seq,
		State:   state,
		Alert:   alert,
		Display: alert.DisplayText(),
		At:      time.Now(),
	}
	listeners := make([]func(Transition), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
