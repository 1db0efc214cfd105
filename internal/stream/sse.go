package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"jajanin-relay/internal/util"
)

// Limits on a single event. A line or event over the limit is discarded whole.
const (
	maxLineBytes  = 64 << 10
	maxEventBytes = 256 << 10
)

// event is one dispatched server-sent event.
type event struct {
	name string
	data string
}

// reader parses a text/event-stream body incrementally. Comment lines and the id and
// retry fields are consumed without producing events.
type reader struct {
	r *bufio.Reader
}

func newReader(body io.Reader) *reader {
	return &reader{r: bufio.NewReaderSize(body, maxLineBytes)}
}

// next blocks until a complete event is read. onLine is called for every line received,
// heartbeats included. Events holding an over-long line are dropped and counted.
func (rd *reader) next(onLine func()) (event, error) {
	var (
		name    string
		data    strings.Builder
		hasData bool
		dropped bool
	)

	for {
		line, tooLong, err := rd.readLine()
		if err != nil {
			return event{}, err
		}
		if onLine != nil {
			onLine()
		}
		if tooLong {
			dropped = true
			continue
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if dropped {
				util.AlertsDroppedTotal.WithLabelValues("oversized").Inc()
				name, hasData, dropped = "", false, false
				data.Reset()
				continue
			}
			if !hasData {
				name = ""
				continue
			}
			if name == "" {
				name = "message"
			}
			return event{name: name, data: data.String()}, nil
		}
		if dropped || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
			if data.Len() > maxEventBytes {
				dropped = true
			}
		}
	}
}

// readLine returns the next line including its terminator. A line longer than the read
// buffer is skipped through its newline and reported as too long.
func (rd *reader) readLine() (string, bool, error) {
	line, err := rd.r.ReadSlice('\n')
	if err == nil {
		return string(line), false, nil
	}
	if !errors.Is(err, bufio.ErrBufferFull) {
		return "", false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = rd.r.ReadSlice('\n')
	}
	return "", true, err
}
