// Package codec provides the reversible at-rest encodings used for content
// stored in the intermediate store. The codec is selected by configuration;
// all codecs produce text-safe output suitable for a TEXT column.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
)

// Codec encodes content before it is written to the store and decodes it on
// the way back out. Decode never fails hard: a value that cannot be decoded
// degrades to a truncated preview so a corrupt row cannot abort a run.
type Codec interface {
	// Name returns the configuration name of the codec.
	Name() string
	// Encode returns the at-rest representation of s.
	Encode(s string) string
	// Decode reverses Encode. On failure it returns a partial value.
	Decode(s string) string
}

// ForName returns the codec registered under the given configuration name.
func ForName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "identity":
		return Identity{}, nil
	case "base64":
		return Base64{}, nil
	case "xz":
		return XZ{}, nil
	default:
		return nil, fmt.Errorf("unknown content encoding %q", name)
	}
}

// degrade returns the fallback value for undecodable data: data that is
// already plain ASCII is passed through, anything else is truncated.
func degrade(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}

// Identity stores content verbatim.
type Identity struct{}

func (Identity) Name() string           { return "identity" }
func (Identity) Encode(s string) string { return s }
func (Identity) Decode(s string) string { return s }

// Base64 stores content base64-encoded, matching the store's default.
type Base64 struct{}

func (Base64) Name() string { return "base64" }

func (Base64) Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func (Base64) Decode(s string) string {
	if s == "" {
		return ""
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return degrade(s)
	}
	return string(out)
}

// XZ compresses content with xz and base64-encodes the result so it remains
// text-safe at rest. Useful when modlets carry large config files.
type XZ struct{}

func (XZ) Name() string { return "xz" }

func (XZ) Encode(s string) string {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		// Writer construction only fails on invalid options; fall back to
		// storing the raw value rather than losing content.
		return base64.StdEncoding.EncodeToString([]byte(s))
	}
	if _, err := io.WriteString(w, s); err != nil {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}
	if err := w.Close(); err != nil {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (XZ) Decode(s string) string {
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return degrade(s)
	}
	r, err := xz.NewReader(bytes.NewReader(raw))
	if err != nil {
		// Not an xz stream; the value may have been stored by the base64
		// fallback in Encode.
		return string(raw)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return degrade(string(raw))
	}
	return string(out)
}
