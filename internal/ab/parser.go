// Package ab detects and groups A/B comparison tracks based on filename
// conventions. Recognized suffixes immediately before the extension,
// separated by '-', '_' or a space:
//
//	mix_A.mp3, mix-B.wav, mix C.flac  -> variants A/B/C
//	mix_v1.mp3 .. mix_v4.mp3          -> mapped to A..D
package ab

import (
	"net/url"
	"regexp"
	"strings"

	"tonewiki/pkg/models"
)

// abPattern captures base name, variant identifier and extension.
var abPattern = regexp.MustCompile(`(?i)^(.+?)[-_\s]([ABCD]|v[1-4])\.(\w+)$`)

// versionToVariant maps v1..v4 suffixes to variant letters.
var versionToVariant = map[string]models.ABVariant{
	"v1": models.VariantA,
	"v2": models.VariantB,
	"v3": models.VariantC,
	"v4": models.VariantD,
}

// ParseResult holds the outcome of parsing a filename for variant info.
// BaseName, Variant and Extension are only meaningful when IsABTrack is true.
type ParseResult struct {
	IsABTrack bool
	BaseName  string
	Variant   models.ABVariant
	Extension string
}

// ParseFilename inspects a URL or bare filename for an A/B variant suffix.
// Only the final path segment is considered and any query string is
// stripped before matching. Extensions are lowercased, base names trimmed.
func ParseFilename(urlOrName string) ParseResult {
	filename := urlOrName
	if u, err := url.Parse(urlOrName); err == nil && u.Path != "" {
		filename = u.Path
	}
	if idx := strings.LastIndex(filename, "/"); idx >= 0 {
		filename = filename[idx+1:]
	}
	if idx := strings.Index(filename, "?"); idx >= 0 {
		filename = filename[:idx]
	}

	match := abPattern.FindStringSubmatch(filename)
	if match == nil {
		return ParseResult{}
	}

	baseName, variantRaw, extension := match[1], match[2], match[3]

	var variant models.ABVariant
	upper := strings.ToUpper(variantRaw)
	switch upper {
	case "A", "B", "C", "D":
		variant = models.ABVariant(upper)
	default:
		variant = versionToVariant[strings.ToLower(variantRaw)]
	}

	return ParseResult{
		IsABTrack: true,
		BaseName:  strings.TrimSpace(baseName),
		Variant:   variant,
		Extension: strings.ToLower(extension),
	}
}

// IsSameGroup reports whether two URLs are counterpart variants of the same
// recording: both parse as A/B tracks, share base name and extension, and
// carry different variant letters.
func IsSameGroup(url1, url2 string) bool {
	p1 := ParseFilename(url1)
	p2 := ParseFilename(url2)

	if !p1.IsABTrack || !p2.IsABTrack {
		return false
	}

	return p1.BaseName == p2.BaseName &&
		p1.Extension == p2.Extension &&
		p1.Variant != p2.Variant
}
