package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors. Decode failures are recoverable: the session surfaces them
// as diagnostic events and keeps reading.
var (
	ErrTruncated      = errors.New("wire: truncated frame")
	ErrBadCommandTag  = errors.New("wire: malformed command tag")
	ErrUnknownCommand = errors.New("wire: unknown command code")
	ErrMalformedJSON  = errors.New("wire: malformed payload")
)

// Command is one decoded protocol frame. Payload is nil for zero-argument
// commands.
type Command struct {
	Code    Code
	Payload json.RawMessage
}

// Encode serialises a command code and payload into wire text form. A nil
// payload produces a bare command tag.
func Encode(code Code, payload any) ([]byte, error) {
	if payload == nil {
		return []byte(code), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", code, err)
	}
	out := make([]byte, 0, len(code)+1+len(body))
	out = append(out, code...)
	out = append(out, ' ')
	out = append(out, body...)
	return out, nil
}

// Decode parses one wire frame. On ErrUnknownCommand the returned Command
// still carries the raw code and payload so callers can surface the frame
// as a diagnostic without terminating the decode loop.
func Decode(data []byte) (Command, error) {
	if len(data) < 3 {
		return Command{}, ErrTruncated
	}
	tag := data[:3]
	for _, b := range tag {
		if b < 'A' || b > 'Z' {
			return Command{}, fmt.Errorf("%w: %q", ErrBadCommandTag, tag)
		}
	}
	cmd := Command{Code: Code(tag)}

	rest := bytes.TrimLeft(data[3:], " ")
	if len(rest) > 0 {
		if !json.Valid(rest) {
			return cmd, fmt.Errorf("%w: %s", ErrMalformedJSON, tag)
		}
		cmd.Payload = json.RawMessage(rest)
	}
	if !knownCodes[cmd.Code] {
		return cmd, fmt.Errorf("%w: %s", ErrUnknownCommand, tag)
	}
	return cmd, nil
}
