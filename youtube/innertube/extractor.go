package innertube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/internal/mimeext"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/cipher"
	"github.com/ytget/streamproxy/youtube/formats"
)

// Name is the backend name used in configuration.
const Name = "innertube"

// geoBypassCountry is sent as gl when geo bypass is requested.
const geoBypassCountry = "US"

// Extractor resolves videos through the InnerTube player endpoint.
type Extractor struct {
	client *Client
	cipher *cipher.Decipherer
	log    *logger.ComponentLogger
}

// NewExtractor wires an InnerTube client and a decipherer together. A nil
// decipherer drops every format that needs one.
func NewExtractor(client *Client, d *cipher.Decipherer, l *logger.Logger) *Extractor {
	if l == nil {
		l = logger.Nop()
	}
	return &Extractor{
		client: client,
		cipher: d,
		log:    l.WithComponent(logger.ComponentExtractor),
	}
}

// Name implements the extractor contract.
func (e *Extractor) Name() string { return Name }

// Extract fetches the player response for videoURL and converts it.
func (e *Extractor) Extract(ctx context.Context, videoURL string, opts types.ExtractOptions) (*types.Metadata, error) {
	id, err := VideoID(videoURL)
	if err != nil {
		return nil, err
	}

	in := PlayerRequest{VideoID: id}
	if opts.GeoBypass {
		in.GL = geoBypassCountry
	}

	pr, err := e.client.GetPlayerResponse(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := playabilityError(pr.PlayabilityStatus); err != nil {
		return nil, err
	}

	md := metadataFromDetails(id, pr.VideoDetails)
	md.Formats = e.candidates(ctx, pr.StreamingData)

	e.log.Debug("innertube extraction done", map[string]interface{}{
		"video_id": id,
		"formats":  len(md.Formats),
	})
	return md, nil
}

// VideoID returns the v parameter of a watch URL, or the input itself when
// it is already a bare id.
func VideoID(videoURL string) (string, error) {
	s := strings.TrimSpace(videoURL)
	if s == "" {
		return "", errs.ErrInvalidID
	}
	if !strings.Contains(s, "/") {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidID, err)
	}
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}
	if u.Host == "youtu.be" {
		if id := strings.Trim(u.Path, "/"); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errs.ErrInvalidID, s)
}

// Reason phrases matched whole so that words like "moderate" or "usage"
// do not trip them.
var (
	rateLimitReasons = []string{"too many requests", "rate limit", "unusual traffic"}
	ageReasons       = []string{"confirm your age", "age-restricted", "age restricted", "inappropriate"}
)

func mentions(reason string, phrases []string) bool {
	return lo.SomeBy(phrases, func(p string) bool { return strings.Contains(reason, p) })
}

// playabilityError maps a non-OK playability status to a sentinel.
func playabilityError(ps PlayabilityStatus) error {
	status := strings.ToUpper(strings.TrimSpace(ps.Status))
	if status == "" || status == "OK" {
		return nil
	}

	reason := strings.ToLower(ps.Reason)
	wrap := func(sentinel error) error {
		if ps.Reason == "" {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, ps.Reason)
	}

	switch status {
	case "ERROR":
		switch {
		case strings.Contains(reason, "country"):
			return wrap(errs.ErrGeoBlocked)
		case mentions(reason, rateLimitReasons):
			return wrap(errs.ErrRateLimited)
		}
		return wrap(errs.ErrVideoUnavailable)
	case "LOGIN_REQUIRED":
		switch {
		case strings.Contains(reason, "private"):
			return wrap(errs.ErrPrivate)
		case mentions(reason, ageReasons):
			return wrap(errs.ErrAgeRestricted)
		}
		return wrap(errs.ErrLoginRequired)
	case "AGE_CHECK_REQUIRED", "AGE_VERIFICATION_REQUIRED", "CONTENT_CHECK_REQUIRED":
		return wrap(errs.ErrAgeRestricted)
	case "UNPLAYABLE":
		switch {
		case strings.Contains(reason, "country"):
			return wrap(errs.ErrGeoBlocked)
		case strings.Contains(reason, "private"):
			return wrap(errs.ErrPrivate)
		}
		return wrap(errs.ErrVideoUnavailable)
	case "LIVE_STREAM_OFFLINE":
		return wrap(errs.ErrVideoUnavailable)
	}
	return fmt.Errorf("innertube playability %s: %s", status, ps.Reason)
}

func metadataFromDetails(id string, d VideoDetails) *types.Metadata {
	md := &types.Metadata{
		ID:       lo.Ternary(d.VideoID != "", d.VideoID, id),
		Title:    mo.EmptyableToOption(d.Title),
		Uploader: mo.EmptyableToOption(d.Author),
	}
	if n, err := strconv.Atoi(d.LengthSeconds); err == nil {
		md.Duration = mo.Some(n)
	}
	if n, err := strconv.ParseInt(d.ViewCount, 10, 64); err == nil {
		md.ViewCount = mo.Some(n)
	}
	if len(d.Thumbnail.Thumbnails) > 0 {
		best := lo.MaxBy(d.Thumbnail.Thumbnails, func(a, b Thumbnail) bool {
			return a.Width*a.Height > b.Width*b.Height
		})
		md.Thumbnail = mo.EmptyableToOption(best.URL)
	}
	return md
}

// candidates converts streaming data. Formats whose URL cannot be resolved
// are kept without one so selection drops them.
func (e *Extractor) candidates(ctx context.Context, sd StreamingData) []types.FormatCandidate {
	all := append(append([]Format{}, sd.Formats...), sd.AdaptiveFormats...)
	out := make([]types.FormatCandidate, 0, len(all)+1)

	resolve := e.urlResolver(ctx)
	for _, f := range all {
		c := candidateFromFormat(f)
		if u, err := resolve(f); err == nil {
			c.DirectURL = mo.EmptyableToOption(u)
		} else {
			e.log.Debug("format url unresolved", map[string]interface{}{
				"itag":  f.Itag,
				"error": err.Error(),
			})
		}
		out = append(out, c)
	}

	if sd.HLSManifestURL != "" {
		out = append(out, types.FormatCandidate{
			FormatID:  "hls",
			Container: mimeext.DefaultExt,
			HasVideo:  true,
			HasAudio:  true,
			DirectURL: mo.Some(sd.HLSManifestURL),
			Protocol:  "m3u8_native",
		})
	}
	return out
}

func candidateFromFormat(f Format) types.FormatCandidate {
	hasVideo, hasAudio := mimeext.Tracks(f.MimeType)
	if f.AudioChannels > 0 {
		hasAudio = true
	}

	c := types.FormatCandidate{
		FormatID:  strconv.Itoa(f.Itag),
		Container: mimeext.ExtFromMime(f.MimeType),
		HasVideo:  hasVideo,
		HasAudio:  hasAudio,
		Protocol:  "https",
	}
	height := f.Height
	if height == 0 {
		height = formats.ParseHeight(f.QualityLabel)
	}
	if hasVideo && height > 0 {
		c.Height = mo.Some(height)
	}
	if f.Bitrate > 0 {
		c.Bitrate = mo.Some(f.Bitrate)
	}
	return c
}

// urlResolver returns the URL resolution for one Extract call. Every format
// shares a single cipher session, opened on first use.
func (e *Extractor) urlResolver(ctx context.Context) func(Format) (string, error) {
	playerJS := e.client.PlayerJSURL()
	var (
		session *cipher.Session
		openErr error
		opened  bool
	)

	return func(f Format) (string, error) {
		sc := lo.Ternary(f.SignatureCipher != "", f.SignatureCipher, f.Cipher)
		if e.cipher == nil {
			if f.URL == "" {
				return "", cipher.NewError(cipher.ErrCodeSignatureNotFound, "no decipherer for signatureCipher")
			}
			return f.URL, nil
		}
		if playerJS == "" {
			return e.cipher.ResolveURL(ctx, f.URL, sc, "")
		}

		if !opened {
			opened = true
			session, openErr = e.cipher.Session(ctx, playerJS)
			if openErr != nil {
				e.log.Warn("player script unavailable", map[string]interface{}{
					"url":   playerJS,
					"error": openErr.Error(),
				})
			}
		}
		if openErr != nil {
			if f.URL != "" {
				return e.cipher.ResolveURL(ctx, f.URL, "", "")
			}
			return "", openErr
		}
		return session.ResolveURL(f.URL, sc)
	}
}
