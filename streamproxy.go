package streamproxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/extractor"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/formats"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Version is reported by the info endpoint and the version command.
const Version = "1.0.0"

// Client-facing messages for classified failures.
const (
	MsgNotFound     = "Video not found or unavailable"
	MsgNoStream     = "No playable stream URL found"
	MsgAccessDenied = "Video requires sign-in or age verification"
	MsgGeoBlocked   = "Video is not available in this region"
	MsgInternal     = "Internal server error"
)

// Logger is the structured logger the resolver writes to.
// *logger.ComponentLogger satisfies it.
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
	Error(message string, fields ...map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...map[string]interface{}) {}
func (nopLogger) Info(string, ...map[string]interface{})  {}
func (nopLogger) Warn(string, ...map[string]interface{})  {}
func (nopLogger) Error(string, ...map[string]interface{}) {}

// Resolver turns video ids into ResolvedStreams. It holds no per-request
// state and is safe for concurrent use.
type Resolver struct {
	extractor extractor.Extractor
	policy    formats.Policy
	opts      types.ExtractOptions
	timeout   time.Duration
	log       Logger
	formatLog Logger
}

// New returns a Resolver using ex with the default policy and options.
func New(ex extractor.Extractor) *Resolver {
	return &Resolver{
		extractor: ex,
		policy:    formats.DefaultPolicy(),
		opts:      types.DefaultExtractOptions(),
		log:       nopLogger{},
	}
}

// WithPolicy sets the format selection policy.
func (r *Resolver) WithPolicy(p formats.Policy) *Resolver {
	r.policy = p
	return r
}

// WithLogger sets the logger. Nil restores the silent default.
func (r *Resolver) WithLogger(l Logger) *Resolver {
	if l == nil {
		l = nopLogger{}
	}
	r.log = l
	return r
}

// WithFormatLogger routes format selection entries to l instead of the
// resolver logger.
func (r *Resolver) WithFormatLogger(l Logger) *Resolver {
	r.formatLog = l
	return r
}

// WithTimeout bounds each Resolve call. Zero means no bound beyond the
// caller's context.
func (r *Resolver) WithTimeout(d time.Duration) *Resolver {
	r.timeout = d
	return r
}

// WithExtractOptions overrides the options passed to the extractor.
func (r *Resolver) WithExtractOptions(o types.ExtractOptions) *Resolver {
	r.opts = o
	return r
}

// Policy returns the active selection policy.
func (r *Resolver) Policy() formats.Policy { return r.policy }

// ExtractorName returns the backend name.
func (r *Resolver) ExtractorName() string { return r.extractor.Name() }

// CanonicalURL returns the watch URL for videoID.
func CanonicalURL(videoID string) string {
	return watchURLPrefix + url.QueryEscape(videoID)
}

// Resolve extracts videoID and picks one playable stream.
//
// Every error is an *errs.Error. Panics raised while resolving are
// recovered and reported as KindInternal.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (stream *types.ResolvedStream, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while resolving", map[string]interface{}{
				"video_id": videoID,
				"panic":    fmt.Sprint(p),
				"stack":    string(debug.Stack()),
			})
			stream = nil
			err = errs.New(errs.KindInternal, MsgInternal, fmt.Errorf("panic: %v", p))
		}
	}()

	if strings.TrimSpace(videoID) == "" {
		return nil, errs.New(errs.KindNotFound, MsgNotFound, errs.ErrInvalidID)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	r.log.Info("resolving stream", map[string]interface{}{
		"video_id":  videoID,
		"extractor": r.extractor.Name(),
	})

	md, err := r.extractor.Extract(ctx, CanonicalURL(videoID), r.opts)
	if err != nil {
		e := classify(err)
		r.log.Warn("extraction failed", map[string]interface{}{
			"video_id": videoID,
			"kind":     e.Kind.String(),
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return nil, e
	}
	if md == nil {
		return nil, errs.New(errs.KindNotFound, MsgNoStream, errs.ErrNoStream)
	}

	streamURL, formatID, ok := r.pick(md)
	if !ok {
		r.log.Warn("no playable stream", map[string]interface{}{
			"video_id": videoID,
			"formats":  len(md.Formats),
		})
		return nil, errs.New(errs.KindNotFound, MsgNoStream, errs.ErrNoStream)
	}

	stream = &types.ResolvedStream{
		VideoID:   videoID,
		URL:       streamURL,
		Title:     md.Title.OrElse(types.DefaultTitle),
		Duration:  md.Duration.OrElse(0),
		Thumbnail: md.Thumbnail.OrElse(""),
		Uploader:  md.Uploader.OrElse(types.DefaultUploader),
		ViewCount: md.ViewCount.OrElse(0),
		FormatID:  formatID,
	}

	r.log.Info("stream resolved", map[string]interface{}{
		"video_id":  videoID,
		"format_id": formatID,
		"duration":  time.Since(start).String(),
	})
	return stream, nil
}

// pick prefers the extractor's own choice when it is a direct URL, then
// falls back to the policy.
func (r *Resolver) pick(md *types.Metadata) (string, string, bool) {
	if u, ok := md.URL.Get(); ok && strings.TrimSpace(u) != "" && !formats.IsManifestURL(u) {
		return u, md.FormatID, true
	}

	f, ok := formats.Select(md.Formats, r.policy)
	if !ok {
		return "", "", false
	}
	log := r.formatLog
	if log == nil {
		log = r.log
	}
	log.Debug("format selected", map[string]interface{}{
		"format_id": f.FormatID,
		"container": f.Container,
		"height":    f.Height.OrElse(0),
		"policy":    r.policy.String(),
	})
	return f.URL(), f.FormatID, true
}

// classify wraps an extractor error into an *errs.Error with a
// client-facing message.
func classify(err error) *errs.Error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}

	kind := errs.Classify(err)
	var msg string
	switch {
	case errors.Is(err, errs.ErrNoStream):
		msg = MsgNoStream
	case kind == errs.KindNotFound:
		msg = MsgNotFound
	case errors.Is(err, errs.ErrGeoBlocked):
		msg = MsgGeoBlocked
	case kind == errs.KindAccessDenied:
		msg = MsgAccessDenied
	default:
		msg = err.Error()
	}
	return errs.New(kind, msg, err)
}
