// Package mimeext derives container and track information from the
// MIME types YouTube reports for its streams.
package mimeext

import (
	"mime"
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
)

var audioCodecPrefixes = []string{"mp4a", "opus", "vorbis", "ac-3", "ec-3", "flac", "mp3"}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mimeType string) string {
	base := baseType(mimeType)
	if base == "" {
		return DefaultExt
	}
	switch base {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	}
	if _, sub, ok := strings.Cut(base, "/"); ok && sub != "" {
		return sub
	}
	return DefaultExt
}

// Codecs returns the entries of the codecs parameter, trimmed.
func Codecs(mimeType string) []string {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil
	}
	raw := params["codecs"]
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Tracks reports whether a stream of this MIME type carries video and/or
// audio. A video/* type with an audio codec listed carries both.
func Tracks(mimeType string) (hasVideo, hasAudio bool) {
	base := baseType(mimeType)
	major, _, _ := strings.Cut(base, "/")

	switch major {
	case "audio":
		return false, true
	case "video":
		hasVideo = true
	default:
		return false, false
	}

	for _, c := range Codecs(mimeType) {
		if IsAudioCodec(c) {
			hasAudio = true
		}
	}
	return hasVideo, hasAudio
}

// IsAudioCodec reports whether codec names an audio codec ("mp4a.40.2").
func IsAudioCodec(codec string) bool {
	codec = strings.ToLower(strings.TrimSpace(codec))
	for _, p := range audioCodecPrefixes {
		if strings.HasPrefix(codec, p) {
			return true
		}
	}
	return false
}

func baseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
