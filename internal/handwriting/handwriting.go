// Package handwriting encodes and decodes handwritten message payloads.
// A handwritten message travels through the normal message pipeline as plain
// text content carrying a recognizable prefix; the core never interprets the
// stroke data itself.
package handwriting

import (
	"encoding/json"
	"errors"
	"strings"
)

// Prefix marks message content that carries an encoded handwriting payload.
const Prefix = "__HANDWRITING__:"

// Size is the canvas size the strokes were captured on. Dimensions are
// pointers because older clients omit them.
type Size struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// Payload is the serialized form embedded in message content. Type is either
// "strokes" or "image"; stroke data stays opaque to the core.
type Payload struct {
	Version int             `json:"version"`
	Type    string          `json:"type"`
	Strokes json.RawMessage `json:"strokes,omitempty"`
	Size    *Size           `json:"size,omitempty"`
	DataURL string          `json:"dataUrl,omitempty"`
}

// EncodeImage wraps a rendered image data URL as message content.
func EncodeImage(dataURL string) (string, error) {
	if dataURL == "" {
		return "", errors.New("handwriting payload is required")
	}
	return encode(Payload{Version: 1, Type: "image", DataURL: dataURL})
}

// EncodeStrokes wraps captured stroke data as message content.
func EncodeStrokes(strokes json.RawMessage, size *Size) (string, error) {
	if len(strokes) == 0 {
		return "", errors.New("handwriting payload is required")
	}
	return encode(Payload{Version: 1, Type: "strokes", Strokes: strokes, Size: size})
}

func encode(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return Prefix + string(data), nil
}

// Is reports whether message content carries a handwriting payload.
func Is(content string) bool {
	return strings.HasPrefix(content, Prefix)
}

// Extract decodes the payload from message content. Bare (unversioned)
// payloads from legacy clients are treated as image data URLs.
func Extract(content string) (*Payload, bool) {
	if !Is(content) {
		return nil, false
	}
	raw := strings.TrimSpace(content[len(Prefix):])
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(raw, "{") {
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, false
		}
		return &p, true
	}
	return &Payload{Version: 0, Type: "image", DataURL: content[len(Prefix):]}, true
}

// Preview returns the list-row preview for message content.
func Preview(content string) string {
	if Is(content) {
		return "Handwritten message"
	}
	return content
}
