package source

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
)

// minEncodedLen is the shortest string the sniffer will consider an encoded image.
const minEncodedLen = 20

// Encoded prefixes of common image formats: JPEG, PNG, GIF, WebP (RIFF).
var encodedPrefixes = []string{"/9j/", "iVBORw0KGgo", "R0lGOD", "UklGR"}

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// LooksEncoded reports whether s is plausibly a base64-encoded JPEG, PNG, GIF or WebP image.
// Short strings and anything outside the standard alphabet are rejected before decoding.
func LooksEncoded(s string) bool {
	if len(s) < minEncodedLen || len(s)%4 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(base64Alphabet, s[i]) < 0 {
			return false
		}
	}
	for _, p := range encodedPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return MagicFormat(decoded) != ""
}

// MagicFormat returns "jpeg", "png", "gif" or "webp" when b starts with that format's
// signature, or "" otherwise.
func MagicFormat(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	switch {
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(b, []byte{0x89, 'P', 'N', 'G'}):
		return "png"
	case bytes.HasPrefix(b, []byte("GIF8")), bytes.HasPrefix(b, []byte("GIF9")):
		return "gif"
	case bytes.HasPrefix(b, []byte("RIFF")) && len(b) >= 12 && string(b[8:12]) == "WEBP":
		return "webp"
	}
	return ""
}

// decodeLenient drops characters outside the alphabet and accepts missing padding.
func decodeLenient(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r < 128 && strings.IndexByte(base64Alphabet, byte(r)) >= 0 {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return nil, errors.New("no base64 characters in input")
	}
	if b, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
}

// Preview shortens an encoded payload for logs.
func Preview(s string) string {
	if len(s) <= minEncodedLen {
		return s
	}
	return s[:minEncodedLen] + "..."
}
