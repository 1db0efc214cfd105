package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/presenter"
	"jajanin-relay/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus stream.Status

func (f fixedStatus) Status() stream.Status { return stream.Status(f) }

type overlay struct {
	hub       *Hub
	gate      *presenter.AudioGate
	presenter *presenter.Presenter
	server    *Server
	http      *httptest.Server
}

func startOverlay(t *testing.T) *overlay {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	gate := presenter.NewAudioGate()
	fx := NewEffects(hub)
	p := presenter.New(presenter.Options{
		Settings:       &presenter.Settings{Duration: 3, SoundEnabled: true, SoundFile: "coin", SoundVolume: 80, TTSEnabled: true},
		TimeUnit:       10 * time.Millisecond,
		HideTransition: 5 * time.Millisecond,
	}, fx, fx, gate)
	go func() { _ = p.Run(ctx) }()

	srv := NewServer(hub, p, gate)
	router := gin.New()
	srv.SetupRoutes(router)
	hs := httptest.NewServer(router)
	t.Cleanup(hs.Close)

	return &overlay{hub: hub, gate: gate, presenter: p, server: srv, http: hs}
}

func (o *overlay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(o.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConnectSendsSettings(t *testing.T) {
	o := startOverlay(t)
	conn := o.dial(t)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSettings, msg.Type)
	require.NotNil(t, msg.Settings)
	assert.Equal(t, 3, msg.Settings.Duration)
	assert.Equal(t, "coin", msg.Settings.SoundFile)

	assert.Eventually(t, func() bool { return o.hub.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAlertRelayedWithEffects(t *testing.T) {
	o := startOverlay(t)
	conn := o.dial(t)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeAudioUnlocked}))
	require.Eventually(t, o.gate.Unlocked, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return o.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	o.presenter.Enqueue(models.AlertEvent{SupporterName: "Sari", Amount: 15000, Message: "semangat"})

	var types []string
	var texts []string
	for {
		msg := readMessage(t, conn)
		label := msg.Type
		if msg.Type == TypeTransition {
			label += ":" + string(msg.Transition.State)
		}
		types = append(types, label)
		if msg.Type == TypeSpeech {
			texts = append(texts, msg.Text)
		}
		if label == "transition:idle" {
			break
		}
	}

	index := func(label string) int {
		for i, l := range types {
			if l == label {
				return i
			}
		}
		return -1
	}
	assert.Equal(t, 0, index("transition:showing"))
	assert.Less(t, index("transition:showing"), index("sound"))
	assert.Less(t, index("sound"), index("speech"))
	assert.Less(t, index("transition:hiding"), index("speech_cancel"))
	assert.Equal(t, len(types)-1, index("transition:idle"))
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Sari")
}

func TestEffectsWithoutListeners(t *testing.T) {
	fx := NewEffects(NewHub())
	assert.ErrorIs(t, fx.Play(context.Background(), "default", 50), ErrNoListeners)
	assert.ErrorIs(t, fx.Speak(context.Background(), "halo"), ErrNoListeners)
}

func TestStatusAndRecent(t *testing.T) {
	o := startOverlay(t)
	o.server.SetSubscription(fixedStatus(stream.StatusConnected))

	resp, err := http.Get(o.http.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Stream        string `json:"stream"`
		Presenter     string `json:"presenter"`
		Clients       int    `json:"clients"`
		AudioUnlocked bool   `json:"audio_unlocked"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "connected", status.Stream)
	assert.Equal(t, "idle", status.Presenter)
	assert.False(t, status.AudioUnlocked)

	o.presenter.Enqueue(models.AlertEvent{SupporterName: "Budi", Amount: 5000})
	require.Eventually(t, func() bool { return len(o.presenter.History().Recent()) == 1 }, time.Second, 5*time.Millisecond)

	resp2, err := http.Get(o.http.URL + "/recent")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var recent struct {
		Donations []presenter.HistoryEntry `json:"donations"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&recent))
	require.Len(t, recent.Donations, 1)
	assert.Equal(t, "Budi", recent.Donations[0].Alert.SupporterName)
}

func TestApplySettingsBroadcasts(t *testing.T) {
	o := startOverlay(t)
	conn := o.dial(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return o.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	o.server.ApplySettings(presenter.Settings{Duration: 20, SoundFile: "bell", SoundVolume: 30})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSettings, msg.Type)
	require.NotNil(t, msg.Settings)
	assert.Equal(t, presenter.MaxDuration, msg.Settings.Duration)
	assert.Equal(t, "bell", msg.Settings.SoundFile)
}

func TestHubStopsClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	require.True(t, hub.add(client))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Count())
	assert.False(t, hub.add(&Client{hub: hub, send: make(chan []byte)}))
}
