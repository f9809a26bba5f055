package constants

import "strings"

// Values of the source_kind column of recognition_jobs.
const (
	SourceURL     = "URL"
	SourceFile    = "FILE"
	SourceEncoded = "ENCODED"
)

// AllowedExtensions holds the default image extensions picked up by directory scans.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsImageExt reports whether ext (with or without dot) is in AllowedExtensions.
func IsImageExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
