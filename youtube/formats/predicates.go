// Package formats picks the stream to hand out from the candidates an
// extractor reports.
package formats

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/streamproxy/types"
)

var heightRe = regexp.MustCompile(`([0-9]{3,4})p`)

var manifestExts = []string{".m3u8", ".m3u", ".mpd", ".f4m", ".ism"}

// ParseHeight extracts the pixel height from a quality label like "720p60".
// Returns 0 when the label carries none.
func ParseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// hasDirectURL returns true when the candidate carries a non-blank URL.
func hasDirectURL(f types.FormatCandidate) bool {
	return strings.TrimSpace(f.URL()) != ""
}

// IsManifestURL reports whether raw points at an HLS/DASH manifest or a
// segmented delivery endpoint rather than a single progressive file.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}

	p := strings.ToLower(u.Path)
	ext := path.Ext(p)
	for _, m := range manifestExts {
		if ext == m {
			return true
		}
	}
	if strings.Contains(p, "/manifest/") || strings.Contains(p, "/hls_playlist/") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(u.Hostname()), "manifest.")
}

// isManifest checks the protocol hint first, then the URL shape.
func isManifest(f types.FormatCandidate) bool {
	proto := strings.ToLower(f.Protocol)
	if strings.Contains(proto, "m3u8") || strings.Contains(proto, "dash") ||
		strings.Contains(proto, "f4m") || strings.Contains(proto, "ism") {
		return true
	}
	return IsManifestURL(f.URL())
}

// containerEquals compares the container case-insensitively; a leading dot
// on want is ignored.
func containerEquals(f types.FormatCandidate, want string) bool {
	want = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(want)), ".")
	return want != "" && strings.ToLower(strings.TrimSpace(f.Container)) == want
}

// heightDistance is |height - target|, or -1 when height is unknown.
func heightDistance(f types.FormatCandidate, target int) int {
	h, ok := f.Height.Get()
	if !ok {
		return -1
	}
	if d := h - target; d >= 0 {
		return d
	}
	return target - h
}

// betterByHeightThenBitrate reports whether candidate outranks current.
// Unknown heights lose to any known height.
func betterByHeightThenBitrate(candidate, current types.FormatCandidate) bool {
	ch, cur := candidate.Height.OrElse(-1), current.Height.OrElse(-1)
	if ch != cur {
		return ch > cur
	}
	return candidate.Bitrate.OrElse(0) > current.Bitrate.OrElse(0)
}
