package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"lavalink-stats/internal/model"
)

// Frame is one decoded inbound message. Payload is the whole JSON object,
// with numbers kept as json.Number so it re-encodes unchanged.
type Frame struct {
	Op      string
	Payload map[string]any
}

func (f Frame) IsStats() bool {
	return f.Op == model.OpStats
}

// DecodeFrame parses a frame that must hold exactly one JSON object. A
// missing or non-string op yields an empty Op rather than an error.
func DecodeFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if payload == nil {
		return Frame{}, errors.New("decode frame: not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Frame{}, errors.New("decode frame: trailing data after object")
	}

	op, _ := payload["op"].(string)
	return Frame{Op: op, Payload: payload}, nil
}
