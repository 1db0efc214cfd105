package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderParsesEvents(t *testing.T) {
	body := "event:connected\ndata:{\"username\":\"budi\"}\n\n" +
		": heartbeat\n\n" +
		"event: alert\r\ndata: {\"a\":1,\r\ndata: \"b\":2}\r\nid: 7\r\n\r\n" +
		"data: plain\n\n"
	rd := newReader(strings.NewReader(body))

	lines := 0
	ev, err := rd.next(func() { lines++ })
	require.NoError(t, err)
	assert.Equal(t, event{name: "connected", data: `{"username":"budi"}`}, ev)

	ev, err = rd.next(func() { lines++ })
	require.NoError(t, err)
	assert.Equal(t, "alert", ev.name)
	assert.Equal(t, "{\"a\":1,\n\"b\":2}", ev.data)

	ev, err = rd.next(nil)
	require.NoError(t, err)
	assert.Equal(t, event{name: "message", data: "plain"}, ev)

	_, err = rd.next(nil)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, lines)
}

func TestReaderIncompleteEventAtEOF(t *testing.T) {
	rd := newReader(strings.NewReader("event: alert\ndata: {}\n"))

	_, err := rd.next(nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderDropsOverlongEvent(t *testing.T) {
	huge := strings.Repeat("x", maxLineBytes+10)
	body := "event: alert\ndata: " + huge + "\n\n" +
		"event: alert\ndata: {\"ok\":true}\n\n"
	rd := newReader(strings.NewReader(body))

	ev, err := rd.next(nil)
	require.NoError(t, err)
	assert.Equal(t, event{name: "alert", data: `{"ok":true}`}, ev)

	_, err = rd.next(nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderDropsEventOverDataLimit(t *testing.T) {
	chunk := "data: " + strings.Repeat("y", 60<<10) + "\n"
	body := "event: alert\n" + strings.Repeat(chunk, 5) + "\n" +
		"data: small\n\n"
	rd := newReader(strings.NewReader(body))

	ev, err := rd.next(nil)
	require.NoError(t, err)
	assert.Equal(t, event{name: "message", data: "small"}, ev)
}

func TestDecodeAlert(t *testing.T) {
	alert, err := DecodeAlert([]byte(`{"supporter_name":"Sari","amount":30000,"product_name":"Kopi","product_emoji":"☕","quantity":3,"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "Sari", alert.SupporterName)
	assert.Equal(t, 3, alert.Quantity)

	for _, bad := range []string{
		`nope`,
		`{"amount":100}`,
		`{"supporter_name":"A","amount":-1}`,
		`{"supporter_name":"A","amount":1,"quantity":-2}`,
		`{"supporter_name":"A","amount":"100"}`,
	} {
		_, err := DecodeAlert([]byte(bad))
		assert.Error(t, err, bad)
	}
}
