// Package ytdlpcli extracts stream information by running the yt-dlp program.
//
// Every extraction runs yt-dlp once per format selector until one succeeds.
// yt-dlp's stderr is classified into the errs sentinels here and nowhere
// else.
package ytdlpcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/types"
)

// Name is the backend name used in configuration.
const Name = "ytdlp"

// DefaultFormats are the selectors tried in order.
var DefaultFormats = []string{
	"best[ext=mp4]",
	"bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
	"best",
}

// runFunc executes yt-dlp for one selector and returns its output streams.
type runFunc func(ctx context.Context, inv invocation) (stdout, stderr string, err error)

type invocation struct {
	URL      string
	Selector string
	Proxy    string
	Opts     types.ExtractOptions
}

// Extractor runs yt-dlp.
type Extractor struct {
	formats []string
	proxy   string
	run     runFunc
	log     *logger.ComponentLogger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFormats replaces the selector list. An empty list keeps the default.
func WithFormats(selectors ...string) Option {
	return func(e *Extractor) {
		selectors = lo.Compact(lo.Map(selectors, func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
		if len(selectors) > 0 {
			e.formats = selectors
		}
	}
}

// WithProxy routes yt-dlp through proxy.
func WithProxy(proxy string) Option {
	return func(e *Extractor) {
		e.proxy = strings.TrimSpace(proxy)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l.WithComponent(logger.ComponentExtractor)
		}
	}
}

func withRunner(run runFunc) Option {
	return func(e *Extractor) {
		e.run = run
	}
}

// New returns a yt-dlp backed Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		formats: DefaultFormats,
		run:     runYtdlp,
		log:     logger.Nop().WithComponent(logger.ComponentExtractor),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements the extractor contract.
func (e *Extractor) Name() string { return Name }

// Formats returns the selectors tried in order.
func (e *Extractor) Formats() []string {
	return append([]string(nil), e.formats...)
}

// Extract tries each selector in order. Only unclassified failures move on
// to the next one.
func (e *Extractor) Extract(ctx context.Context, videoURL string, opts types.ExtractOptions) (*types.Metadata, error) {
	var lastErr error
	for _, selector := range e.formats {
		start := time.Now()
		md, err := e.extractWith(ctx, videoURL, selector, opts)
		if err == nil {
			e.log.Debug("yt-dlp extraction done", map[string]interface{}{
				"url":      videoURL,
				"format":   selector,
				"formats":  len(md.Formats),
				"duration": time.Since(start).String(),
			})
			return md, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yt-dlp: %w", ctxErr)
		}
		if errs.Classify(err) != errs.KindExtractionFailure {
			return nil, err
		}

		e.log.Warn("format failed", map[string]interface{}{
			"format": selector,
			"error":  err.Error(),
		})
		lastErr = err
	}
	if lastErr == nil {
		return nil, errors.New("no format selectors configured")
	}
	return nil, fmt.Errorf("All format options failed. Last error: %w", lastErr)
}

func (e *Extractor) extractWith(ctx context.Context, videoURL, selector string, opts types.ExtractOptions) (*types.Metadata, error) {
	stdout, stderr, err := e.run(ctx, invocation{
		URL:      videoURL,
		Selector: selector,
		Proxy:    e.proxy,
		Opts:     opts,
	})
	if err != nil {
		if classified := classifyStderr(stderr); classified != nil {
			return nil, classified
		}
		if msg := lastErrorLine(stderr); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("run yt-dlp: %w", err)
	}

	md, err := parseInfo([]byte(stdout))
	if err != nil {
		return nil, err
	}
	return md, nil
}

func runYtdlp(ctx context.Context, inv invocation) (string, string, error) {
	cmd := ytdlp.New().
		SkipDownload().
		PrintJSON().
		NoPlaylist().
		NoWarnings().
		Format(inv.Selector)

	if inv.Opts.NoCheckCertificate {
		cmd = cmd.NoCheckCertificates()
	}
	if inv.Opts.GeoBypass {
		cmd = cmd.GeoBypass()
	}
	if inv.Proxy != "" {
		cmd = cmd.Proxy(inv.Proxy)
	}

	res, err := cmd.Run(ctx, inv.URL)
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

// infoJSON is the subset of yt-dlp's info dict that is used.
type infoJSON struct {
	ID        string       `json:"id"`
	Title     *string      `json:"title"`
	Duration  *float64     `json:"duration"`
	Thumbnail *string      `json:"thumbnail"`
	Uploader  *string      `json:"uploader"`
	ViewCount *int64       `json:"view_count"`
	URL       string       `json:"url"`
	FormatID  string       `json:"format_id"`
	Formats   []formatJSON `json:"formats"`
}

type formatJSON struct {
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	URL      string   `json:"url"`
	Height   *int     `json:"height"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
	TBR      *float64 `json:"tbr"`
	Protocol string   `json:"protocol"`
}

// parseInfo decodes the JSON yt-dlp printed. Only the last non-empty line
// is read; anything before it is progress noise.
func parseInfo(stdout []byte) (*types.Metadata, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, errors.New("yt-dlp printed no JSON")
	}

	var info infoJSON
	if err := json.Unmarshal([]byte(last), &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp JSON: %w", err)
	}

	md := &types.Metadata{
		ID:        info.ID,
		Title:     mo.PointerToOption(info.Title),
		Thumbnail: mo.PointerToOption(info.Thumbnail),
		Uploader:  mo.PointerToOption(info.Uploader),
		ViewCount: mo.PointerToOption(info.ViewCount),
		URL:       mo.EmptyableToOption(info.URL),
		FormatID:  info.FormatID,
	}
	if info.Duration != nil {
		md.Duration = mo.Some(int(*info.Duration))
	}
	md.Formats = lo.Map(info.Formats, func(f formatJSON, _ int) types.FormatCandidate {
		return candidate(f)
	})
	return md, nil
}

func candidate(f formatJSON) types.FormatCandidate {
	c := types.FormatCandidate{
		FormatID:  f.FormatID,
		Container: strings.ToLower(f.Ext),
		HasVideo:  hasCodec(f.VCodec),
		HasAudio:  hasCodec(f.ACodec),
		Height:    mo.PointerToOption(f.Height),
		DirectURL: mo.EmptyableToOption(f.URL),
		Protocol:  f.Protocol,
	}
	if f.TBR != nil {
		// tbr is in kbit/s.
		c.Bitrate = mo.Some(int(math.Round(*f.TBR * 1000)))
	}
	return c
}

func hasCodec(codec string) bool {
	codec = strings.TrimSpace(codec)
	return codec != "" && !strings.EqualFold(codec, "none")
}
