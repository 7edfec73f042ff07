package printer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// Decode turns one WebSocket frame into a key-value mapping.
//
// Binary frames and text frames not starting with '{' are rejected
// without parsing. Top-level string values that look numeric are coerced:
// a string containing '.' becomes a float64, any other becomes an int64.
// Strings that fail to parse are kept as they are. JSON numbers become
// int64 when integral and float64 otherwise, at every depth.
func Decode(messageType int, data []byte) (map[string]any, error) {
	if messageType == websocket.BinaryMessage {
		return nil, ErrBinaryFrame
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrNotJSONObject
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	// Reject trailing content such as `{"a":1} garbage`.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedJSON)
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = CoerceString(s)
			continue
		}
		out[k] = normalizeNumbers(v)
	}
	return out, nil
}

// CoerceString converts a numeric-looking string to int64 or float64.
// The input is returned unchanged when it does not parse. Only decimal
// notation is accepted; hex floats such as "0x1.8p1" stay strings.
func CoerceString(s string) any {
	if strings.Contains(s, ".") {
		if strings.ContainsAny(s, "xXpP") {
			return s
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// normalizeNumbers replaces json.Number values with int64 or float64.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	default:
		return v
	}
}
