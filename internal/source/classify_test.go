package source

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/cardscan/internal/common"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	return buf.Bytes()
}

func webpBytes() []byte {
	b := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
	return append(b, make([]byte, 24)...)
}

func TestClassifyURL(t *testing.T) {
	for _, in := range []string{
		"https://xqimg.imedao.com/18b2a6cf9b7b81063fdb0127.jpg",
		"http://localhost:8080/card.png",
		"s3://bucket/deck.jpeg",
	} {
		t.Run(in, func(t *testing.T) {
			src, err := Classify(in, true)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if src.Kind() != KindURL || src.URL() != in {
				t.Fatalf("got %v %q, want URL %q", src.Kind(), src.URL(), in)
			}
			if src.Bytes() != nil {
				t.Fatalf("URL source must not carry bytes")
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/a.jpg": true,
		"ftp://example.com/a.jpg":   true,
		`C:\cards\a.png`:            false,
		"cards/a.png":               false,
		"./a.png":                   false,
		"":                          false,
	}
	for in, want := range cases {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestClassifyEncodedRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{name: "png", data: pngBytes(t)},
		{name: "jpeg", data: jpegBytes(t)},
		{name: "gif", data: gifBytes(t)},
		{name: "webp", data: webpBytes()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := base64.StdEncoding.EncodeToString(tc.data)
			if !LooksEncoded(enc) {
				t.Fatalf("LooksEncoded(%s) = false", Preview(enc))
			}
			src, err := Classify(enc, false)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if src.Kind() != KindEncoded {
				t.Fatalf("kind = %v, want %v", src.Kind(), KindEncoded)
			}
			if !bytes.Equal(src.Bytes(), tc.data) {
				t.Fatalf("decoded bytes differ from original")
			}
		})
	}
}

func TestLooksEncoded(t *testing.T) {
	pngNoCRLF := append([]byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}, make([]byte, 16)...)
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "short valid base64", in: "QUJD", want: false},
		{name: "19 chars with jpeg prefix", in: "/9j/AAAAAAAAAAAAAAA", want: false},
		{name: "plain text payload", in: base64.StdEncoding.EncodeToString([]byte("hello world, this is text")), want: false},
		{name: "not multiple of four", in: "/9j/" + strings.Repeat("A", 17), want: false},
		{name: "outside alphabet", in: "/9j/" + strings.Repeat("A", 15) + "-", want: false},
		{name: "gif9 magic via decode", in: base64.StdEncoding.EncodeToString([]byte("GIF9xxxxxxxxxxxxxxxx")), want: true},
		{name: "png magic via decode", in: base64.StdEncoding.EncodeToString(pngNoCRLF), want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LooksEncoded(tc.in); got != tc.want {
				t.Fatalf("LooksEncoded(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassifyShortStringIsNeverEncoded(t *testing.T) {
	_, err := Classify("QUJD", false)
	if !errors.Is(err, common.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	if errors.Is(err, common.ErrDecode) {
		t.Fatalf("short string must not reach the decoder: %v", err)
	}
}

func TestClassifyHintWithInvalidPayload(t *testing.T) {
	_, err := Classify("definitely not base64!!", true)
	if !errors.Is(err, common.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	var cie base64.CorruptInputError
	if !errors.As(err, &cie) {
		t.Fatalf("original decode cause not reachable: %v", err)
	}
}

func TestClassifyFile(t *testing.T) {
	data := pngBytes(t)
	path := filepath.Join(t.TempDir(), "deck.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := Classify(path, false)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if src.Kind() != KindFilePath || src.Path() != path {
		t.Fatalf("got %v %q", src.Kind(), src.Path())
	}
	if !bytes.Equal(src.Bytes(), data) {
		t.Fatalf("file bytes differ")
	}
}

func TestSourcePayloadKinds(t *testing.T) {
	url, err := Classify("https://images.example/a.png", false)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	cases := []struct {
		name     string
		src      Source
		zero     bool
		hasBytes bool
	}{
		{"zero", Source{}, true, false},
		{"url", url, false, false},
		{"encoded", FromBytes([]byte("x")), false, true},
	}
	for _, tc := range cases {
		if got := tc.src.IsZero(); got != tc.zero {
			t.Errorf("%s: IsZero() = %v, want %v", tc.name, got, tc.zero)
		}
		if got := tc.src.HasBytes(); got != tc.hasBytes {
			t.Errorf("%s: HasBytes() = %v, want %v", tc.name, got, tc.hasBytes)
		}
	}
}

func TestInfoWarningsWithoutHeader(t *testing.T) {
	w := Info{Bytes: MaxBytes + 1}.Warnings()
	if len(w) != 1 || !strings.Contains(w[0], "bytes") {
		t.Errorf("warnings = %v, want one size warning", w)
	}
}

func TestClassifyMissingPath(t *testing.T) {
	for _, in := range []string{
		filepath.Join(t.TempDir(), "missing.jpg"),
		t.TempDir(),
		"nope.png",
	} {
		_, err := Classify(in, false)
		if !errors.Is(err, common.ErrSourceNotFound) {
			t.Fatalf("Classify(%q) err = %v, want ErrSourceNotFound", in, err)
		}
		if common.CodeOf(err) != common.CodeSourceNotFound {
			t.Fatalf("CodeOf = %q", common.CodeOf(err))
		}
	}
}

func TestClassifyLongSeparatorFreeFallback(t *testing.T) {
	padded := []byte(strings.Repeat("abc", 30))
	unpadded := []byte(strings.Repeat("abc", 30) + "a")
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{name: "padded", in: base64.StdEncoding.EncodeToString(padded), want: padded},
		{name: "unpadded", in: base64.RawStdEncoding.EncodeToString(unpadded), want: unpadded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if LooksEncoded(tc.in) {
				t.Fatalf("fixture must fail sniffing")
			}
			src, err := Classify(tc.in, false)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if src.Kind() != KindEncoded || !bytes.Equal(src.Bytes(), tc.want) {
				t.Fatalf("unexpected source %v", src)
			}
		})
	}
}

func TestClassifyFallbackDecodeFailure(t *testing.T) {
	_, err := Classify(strings.Repeat("A", 101), false)
	if !errors.Is(err, common.ErrSourceNotFound) || !errors.Is(err, common.ErrDecode) {
		t.Fatalf("err = %v, want ErrSourceNotFound and ErrDecode", err)
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect(pngBytes(t))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != "png" || info.Width != 64 || info.Height != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if w := info.Warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings %v", w)
	}

	small := Info{Format: "gif", Width: 10, Height: 10}
	if w := small.Warnings(); len(w) != 2 {
		t.Fatalf("expected format and size warnings, got %v", w)
	}

	if _, err := Inspect([]byte("not an image")); err == nil {
		t.Fatalf("expected error for non-image bytes")
	}
}
