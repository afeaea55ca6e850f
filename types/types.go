package types

import "github.com/samber/mo"

// Defaults substituted for metadata the extractor did not report.
const (
	DefaultTitle    = "Unknown"
	DefaultUploader = "Unknown"
)

// FormatCandidate is one stream variant reported by an extractor.
type FormatCandidate struct {
	FormatID  string
	Container string
	HasVideo  bool
	HasAudio  bool
	Height    mo.Option[int]
	Bitrate   mo.Option[int]
	DirectURL mo.Option[string]
	// Protocol is the extractor's transport hint ("https", "m3u8_native",
	// "http_dash_segments"). Empty when unknown.
	Protocol string
}

// Progressive reports whether the candidate carries both video and audio.
func (f FormatCandidate) Progressive() bool {
	return f.HasVideo && f.HasAudio
}

// URL returns the direct URL or "".
func (f FormatCandidate) URL() string {
	return f.DirectURL.OrElse("")
}

// Metadata is what an extractor returns for one video.
type Metadata struct {
	ID        string
	Title     mo.Option[string]
	Duration  mo.Option[int]
	Thumbnail mo.Option[string]
	Uploader  mo.Option[string]
	ViewCount mo.Option[int64]
	// URL is set when the extractor already picked a single stream.
	URL      mo.Option[string]
	FormatID string
	Formats  []FormatCandidate
}

// ResolvedStream is the normalized result of resolving a video.
type ResolvedStream struct {
	VideoID   string
	URL       string
	Title     string
	Duration  int
	Thumbnail string
	Uploader  string
	ViewCount int64
	FormatID  string
}

// ExtractOptions are passed to every extraction.
type ExtractOptions struct {
	// Quality is a backend-neutral hint, "best" unless configured.
	Quality            string
	NoCheckCertificate bool
	GeoBypass          bool
}

// DefaultExtractOptions returns the options every resolve uses.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Quality:            "best",
		NoCheckCertificate: true,
		GeoBypass:          true,
	}
}
