// ABOUTME: Server-Sent Events framing: a pull-based reader and a writer
// ABOUTME: Reader yields one Event per blank-line-terminated block of id/event/data fields

package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxFrameBytes caps a single SSE line.
const maxFrameBytes = 1024 * 1024

// Event is one dispatched SSE block.
type Event struct {
	ID   string // last event id seen on the stream, possibly from an earlier block
	Type string // "message" when the block had no event field
	Data []byte

	// HasID is set when this block carried its own id field.
	HasID bool
}

// Reader parses an SSE byte stream into Events.
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewReader wraps source, typically an HTTP response body.
func NewReader(source io.Reader) *Reader {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)
	return &Reader{scanner: scanner}
}

// Next blocks until a complete event is available. It returns io.EOF when
// the stream ends cleanly; a trailing block without its blank line is
// dropped. Blocks with no data lines are skipped.
func (r *Reader) Next() (Event, error) {
	if r == nil || r.scanner == nil {
		return Event{}, io.EOF
	}

	var (
		eventType string
		data      strings.Builder
		hasData   bool
		hasID     bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line dispatches the pending block
		if line == "" {
			if !hasData {
				eventType = ""
				hasID = false
				continue
			}
			if eventType == "" {
				eventType = "message"
			}
			return Event{ID: r.lastID, Type: eventType, Data: []byte(data.String()), HasID: hasID}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			// Ids containing NUL are ignored per the SSE rules
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
				hasID = true
			}
		default:
			// retry and unknown fields carry nothing we use
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("reading SSE stream: %w", err)
	}
	return Event{}, io.EOF
}

// splitField separates "name: value", dropping one optional leading space.
func splitField(line string) (string, string) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return name, strings.TrimPrefix(value, " ")
}

// WriteEvent writes one SSE block. Multi-line data is split across data lines.
func WriteEvent(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.Type != "" && ev.Type != "message" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteJSON marshals v and writes it as the data of an unnamed event.
func WriteJSON(w io.Writer, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling SSE data: %w", err)
	}
	return WriteEvent(w, Event{ID: id, Data: data})
}

// WriteComment writes a comment line, used as a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
