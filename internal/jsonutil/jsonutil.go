package jsonutil

import (
	"bytes"
	"errors"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// JSON is the standard-library compatible config with numbers decoded as
// json.Number, so int64 values above 2^53 survive a round trip.
var JSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

var ErrInvalidJSON = errors.New("jsonutil: invalid JSON")

var bufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

var indentOptions = &pretty.Options{Width: 80, Indent: "  "}

func MarshalIndent(v any) ([]byte, error) {
	b, err := encode(v)
	if err != nil {
		return nil, err
	}
	return prettify(b, false), nil
}

func Unmarshal(data []byte, v any) error { return JSON.Unmarshal(data, v) }

// WriteIndented writes v to w as two-space indented JSON with a trailing
// newline.
func WriteIndented(w io.Writer, v any) error {
	b, err := MarshalIndent(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// Indent reformats already encoded JSON, such as a record's REST payload,
// with object keys sorted. Numbers are copied verbatim.
func Indent(w io.Writer, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return ErrInvalidJSON
	}
	b := append(prettify(raw, true), '\n')
	_, err := w.Write(b)
	return err
}

func prettify(b []byte, sortKeys bool) []byte {
	opts := *indentOptions
	opts.SortKeys = sortKeys
	return bytes.TrimRight(pretty.PrettyOptions(b, &opts), "\n")
}

func encode(v any) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := JSON.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	b := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
