// Package jsonutil wraps github.com/go-json-experiment/json with the
// options the scanner needs everywhere: evidence excerpts cut from raw
// response bodies may hold invalid UTF-8, which is replaced rather than
// rejected, and map keys are sorted so reports diff cleanly.
//
// Usage:
//
//	data, err := jsonutil.MarshalIndent(report, "  ")
//	enc := jsonutil.NewLineEncoder(w) // one value per line (JSONL)
package jsonutil

import (
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var (
	writeOpts = json.JoinOptions(
		jsontext.AllowInvalidUTF8(true),
		json.Deterministic(true),
	)
	readOpts = json.JoinOptions(
		jsontext.AllowInvalidUTF8(true),
		json.RejectUnknownMembers(false),
	)
)

// Marshal returns the compact JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v, writeOpts)
}

// MarshalIndent returns the JSON encoding of v, one member per line.
func MarshalIndent(v any, indent string) ([]byte, error) {
	return json.Marshal(v, writeOpts, jsontext.WithIndent(indent))
}

// Unmarshal parses data into v. Unknown members are ignored.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v, readOpts)
}

// UnmarshalRead parses one JSON value from r into v.
func UnmarshalRead(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v, readOpts)
}

// Valid reports whether data is a single valid JSON value.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// LineEncoder writes one compact JSON value per line.
type LineEncoder struct {
	w io.Writer
}

// NewLineEncoder returns an encoder writing JSONL to w.
func NewLineEncoder(w io.Writer) *LineEncoder {
	return &LineEncoder{w: w}
}

// Encode writes v followed by a newline.
func (e *LineEncoder) Encode(v any) error {
	if err := json.MarshalWrite(e.w, v, writeOpts); err != nil {
		return err
	}
	_, err := e.w.Write([]byte{'\n'})
	return err
}
