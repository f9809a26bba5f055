// Package source decides what an image reference string points at: a URL, a file on disk,
// or an image embedded as base64 text.
package source

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joseph-ayodele/cardscan/constants"
	"github.com/joseph-ayodele/cardscan/internal/common"
)

// fallbackMinLen is the length above which a missing, separator-free path is retried as base64.
const fallbackMinLen = 100

type Kind int

const (
	KindURL Kind = iota + 1
	KindFilePath
	KindEncoded
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return constants.SourceURL
	case KindFilePath:
		return constants.SourceFile
	case KindEncoded:
		return constants.SourceEncoded
	}
	return "UNKNOWN"
}

// Source is a classified image reference. Exactly one variant is set.
// File sources carry both the path and the bytes read from it.
type Source struct {
	kind Kind
	url  string
	path string
	data []byte
}

func FromURL(u string) Source { return Source{kind: KindURL, url: u} }

func FromFile(path string, data []byte) Source {
	return Source{kind: KindFilePath, path: path, data: data}
}

func FromBytes(data []byte) Source { return Source{kind: KindEncoded, data: data} }

func (s Source) Kind() Kind     { return s.kind }
func (s Source) URL() string    { return s.url }
func (s Source) Path() string   { return s.path }
func (s Source) Bytes() []byte  { return s.data }
func (s Source) IsZero() bool   { return s.kind == 0 }
func (s Source) HasBytes() bool { return s.kind == KindFilePath || s.kind == KindEncoded }

// String describes the source without dumping image bytes.
func (s Source) String() string {
	switch s.kind {
	case KindURL:
		return s.url
	case KindFilePath:
		return s.path
	case KindEncoded:
		return fmt.Sprintf("<%d bytes>", len(s.data))
	}
	return "<empty>"
}

// IsURL reports whether text parses as a URL with a scheme longer than one character,
// so Windows drive letters ("C:\...") are not URLs.
func IsURL(text string) bool {
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return len(u.Scheme) > 1
}

// Classify maps input to exactly one Source variant.
//
// Order: URL, then base64 image (trusting isEncoded, otherwise sniffing), then file path.
// A missing path longer than 100 characters with no path separator is retried as lenient
// base64 before giving up.
func Classify(input string, isEncoded bool) (Source, error) {
	if IsURL(input) {
		slog.Info("reading image from URL", "url", input)
		return FromURL(input), nil
	}

	if isEncoded || LooksEncoded(input) {
		slog.Info("reading image as base64", "length", len(input), "preview", Preview(input))
		data, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			return Source{}, common.DecodeError("decode base64 image data", err)
		}
		return FromBytes(data), nil
	}

	info, statErr := os.Stat(input)
	if statErr == nil && info.Mode().IsRegular() {
		slog.Info("reading image from file", "path", input)
		data, err := os.ReadFile(input)
		if err != nil {
			return Source{}, common.NewAppError(common.CodeSourceNotFound,
				"read image file "+input, fmt.Errorf("%w: %w", common.ErrSourceNotFound, err))
		}
		return FromFile(input, data), nil
	}
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		slog.Debug("stat image path failed", "error", statErr)
	}

	if len(input) > fallbackMinLen && !strings.ContainsRune(input, os.PathSeparator) {
		slog.Warn("image looks like base64 but detection failed, attempting base64 decode",
			"length", len(input), "preview", Preview(input))
		data, err := decodeLenient(input)
		if err != nil {
			return Source{}, common.NewAppError(common.CodeSourceNotFound,
				"file not found and base64 decode failed: "+Preview(input),
				fmt.Errorf("%w: %w: %w", common.ErrSourceNotFound, common.ErrDecode, err))
		}
		return FromBytes(data), nil
	}

	return Source{}, common.NewAppError(common.CodeSourceNotFound, "image file not found: "+input, common.ErrSourceNotFound)
}
