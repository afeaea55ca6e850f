// Package kkdai extracts stream information with github.com/kkdai/youtube.
package kkdai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/internal/mimeext"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/formats"
)

// Name is the backend name used in configuration.
const Name = "kkdai"

// videoSource is the part of youtube.Client the extractor calls.
type videoSource interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// Extractor wraps a kkdai youtube.Client.
type Extractor struct {
	client videoSource
	log    *logger.ComponentLogger
}

// New returns an Extractor using httpClient for every request.
func New(httpClient *http.Client, l *logger.Logger) *Extractor {
	if l == nil {
		l = logger.Nop()
	}
	return &Extractor{
		client: &youtube.Client{HTTPClient: httpClient},
		log:    l.WithComponent(logger.ComponentExtractor),
	}
}

// Name implements the extractor contract.
func (e *Extractor) Name() string { return Name }

// Extract loads the video and maps its formats. Formats without a plain URL
// are resolved through the client's decipherer; failures leave them
// without a URL.
func (e *Extractor) Extract(ctx context.Context, videoURL string, _ types.ExtractOptions) (*types.Metadata, error) {
	video, err := e.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, mapError(err)
	}

	md := metadata(video)
	md.Formats = make([]types.FormatCandidate, 0, len(video.Formats)+1)
	for i := range video.Formats {
		f := &video.Formats[i]
		c := candidate(f)
		if f.URL == "" {
			u, err := e.client.GetStreamURLContext(ctx, video, f)
			if err != nil {
				e.log.Debug("stream url unresolved", map[string]interface{}{
					"itag":  f.ItagNo,
					"error": err.Error(),
				})
			} else {
				c.DirectURL = mo.EmptyableToOption(u)
			}
		}
		md.Formats = append(md.Formats, c)
	}
	if video.HLSManifestURL != "" {
		md.Formats = append(md.Formats, types.FormatCandidate{
			FormatID:  "hls",
			Container: mimeext.DefaultExt,
			HasVideo:  true,
			HasAudio:  true,
			DirectURL: mo.Some(video.HLSManifestURL),
			Protocol:  "m3u8_native",
		})
	}

	e.log.Debug("kkdai extraction done", map[string]interface{}{
		"video_id": video.ID,
		"formats":  len(md.Formats),
	})
	return md, nil
}

func metadata(v *youtube.Video) *types.Metadata {
	md := &types.Metadata{
		ID:       v.ID,
		Title:    mo.EmptyableToOption(v.Title),
		Uploader: mo.EmptyableToOption(v.Author),
	}
	if v.Duration > 0 {
		md.Duration = mo.Some(int(v.Duration.Seconds()))
	}
	if v.Views > 0 {
		md.ViewCount = mo.Some(int64(v.Views))
	}
	if len(v.Thumbnails) > 0 {
		best := lo.MaxBy(v.Thumbnails, func(a, b youtube.Thumbnail) bool {
			return a.Width*a.Height > b.Width*b.Height
		})
		md.Thumbnail = mo.EmptyableToOption(best.URL)
	}
	return md
}

func candidate(f *youtube.Format) types.FormatCandidate {
	hasVideo, hasAudio := mimeext.Tracks(f.MimeType)
	if f.AudioChannels > 0 {
		hasAudio = true
	}
	c := types.FormatCandidate{
		FormatID:  strconv.Itoa(f.ItagNo),
		Container: mimeext.ExtFromMime(f.MimeType),
		HasVideo:  hasVideo,
		HasAudio:  hasAudio,
		DirectURL: mo.EmptyableToOption(f.URL),
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

// mapError translates kkdai errors into errs sentinels.
func mapError(err error) error {
	var ps youtube.ErrPlayabiltyStatus
	var code youtube.ErrUnexpectedStatusCode

	switch {
	case errors.Is(err, youtube.ErrVideoPrivate):
		return fmt.Errorf("%w: %v", errs.ErrPrivate, err)
	case errors.Is(err, youtube.ErrLoginRequired):
		return fmt.Errorf("%w: %v", errs.ErrAgeRestricted, err)
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return fmt.Errorf("%w: %v", errs.ErrInvalidID, err)
	case errors.As(err, &ps):
		return playabilityError(ps)
	case errors.As(err, &code):
		switch int(code) {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", errs.ErrVideoUnavailable, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", errs.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("kkdai: %w", err)
}

var ageReasons = []string{"confirm your age", "age-restricted", "age restricted", "inappropriate"}

func playabilityError(ps youtube.ErrPlayabiltyStatus) error {
	reason := strings.ToLower(ps.Reason)
	var sentinel error
	switch strings.ToUpper(ps.Status) {
	case "LOGIN_REQUIRED":
		switch {
		case strings.Contains(reason, "private"):
			sentinel = errs.ErrPrivate
		case lo.SomeBy(ageReasons, func(p string) bool { return strings.Contains(reason, p) }):
			sentinel = errs.ErrAgeRestricted
		default:
			sentinel = errs.ErrLoginRequired
		}
	case "UNPLAYABLE", "ERROR":
		switch {
		case strings.Contains(reason, "country"):
			sentinel = errs.ErrGeoBlocked
		case strings.Contains(reason, "private"):
			sentinel = errs.ErrPrivate
		default:
			sentinel = errs.ErrVideoUnavailable
		}
	case "AGE_CHECK_REQUIRED", "AGE_VERIFICATION_REQUIRED":
		sentinel = errs.ErrAgeRestricted
	default:
		return fmt.Errorf("kkdai: %w", ps)
	}
	return fmt.Errorf("%w: %s", sentinel, ps.Reason)
}
