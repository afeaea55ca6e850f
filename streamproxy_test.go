package streamproxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/formats"
)

type fakeExtractor struct {
	md   *types.Metadata
	err  error
	hook func(ctx context.Context)

	mu   sync.Mutex
	urls []string
	opts []types.ExtractOptions
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(ctx context.Context, videoURL string, opts types.ExtractOptions) (*types.Metadata, error) {
	f.mu.Lock()
	f.urls = append(f.urls, videoURL)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(ctx)
	}
	return f.md, f.err
}

func mp4(id string, height int, url string) types.FormatCandidate {
	return types.FormatCandidate{
		FormatID:  id,
		Container: "mp4",
		HasVideo:  true,
		HasAudio:  true,
		Height:    mo.Some(height),
		DirectURL: mo.EmptyableToOption(url),
		Protocol:  "https",
	}
}

func TestCanonicalURL(t *testing.T) {
	if got := CanonicalURL("dQw4w9WgXcQ"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("CanonicalURL = %q", got)
	}
}

func TestResolveSuccess(t *testing.T) {
	ex := &fakeExtractor{md: &types.Metadata{
		ID:        "abc",
		Title:     mo.Some("Clip"),
		Duration:  mo.Some(61),
		Thumbnail: mo.Some("https://i.ytimg.com/vi/abc/hq.jpg"),
		Uploader:  mo.Some("Chan"),
		ViewCount: mo.Some[int64](99),
		Formats: []types.FormatCandidate{
			mp4("18", 360, "https://cdn/360"),
			mp4("22", 720, "https://cdn/720"),
			mp4("37", 1080, "https://cdn/1080"),
		},
	}}

	got, err := New(ex).Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := types.ResolvedStream{
		VideoID:   "abc",
		URL:       "https://cdn/720",
		Title:     "Clip",
		Duration:  61,
		Thumbnail: "https://i.ytimg.com/vi/abc/hq.jpg",
		Uploader:  "Chan",
		ViewCount: 99,
		FormatID:  "22",
	}
	if *got != want {
		t.Errorf("got %+v\nwant %+v", *got, want)
	}

	if len(ex.urls) != 1 || ex.urls[0] != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("extractor called with %v", ex.urls)
	}
	if ex.opts[0] != types.DefaultExtractOptions() {
		t.Errorf("extractor options = %+v", ex.opts[0])
	}
}

func TestResolveDefaults(t *testing.T) {
	ex := &fakeExtractor{md: &types.Metadata{
		Formats: []types.FormatCandidate{mp4("18", 360, "https://cdn/360")},
	}}

	got, err := New(ex).Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Unknown" || got.Uploader != "Unknown" || got.Duration != 0 || got.Thumbnail != "" || got.ViewCount != 0 {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestResolveTopLevelURL(t *testing.T) {
	t.Run("direct url wins", func(t *testing.T) {
		ex := &fakeExtractor{md: &types.Metadata{
			URL:      mo.Some("https://cdn/top"),
			FormatID: "18",
			Formats:  []types.FormatCandidate{mp4("22", 720, "https://cdn/720")},
		}}
		got, err := New(ex).Resolve(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.URL != "https://cdn/top" || got.FormatID != "18" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("manifest url is ignored", func(t *testing.T) {
		ex := &fakeExtractor{md: &types.Metadata{
			URL:     mo.Some("https://manifest.googlevideo.com/api/manifest/hls_variant/index.m3u8"),
			Formats: []types.FormatCandidate{mp4("22", 720, "https://cdn/720")},
		}}
		got, err := New(ex).Resolve(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.URL != "https://cdn/720" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestResolveNotFound(t *testing.T) {
	tests := []struct {
		name    string
		videoID string
		ex      *fakeExtractor
		msg     string
	}{
		{
			name:    "empty id",
			videoID: "",
			ex:      &fakeExtractor{},
			msg:     MsgNotFound,
		},
		{
			name:    "unavailable",
			videoID: "nope",
			ex:      &fakeExtractor{err: fmt.Errorf("%w: Video unavailable", errs.ErrVideoUnavailable)},
			msg:     MsgNotFound,
		},
		{
			name:    "private",
			videoID: "priv",
			ex:      &fakeExtractor{err: errs.ErrPrivate},
			msg:     MsgNotFound,
		},
		{
			name:    "only manifests",
			videoID: "live",
			ex: &fakeExtractor{md: &types.Metadata{Formats: []types.FormatCandidate{
				{FormatID: "hls", Container: "mp4", HasVideo: true, HasAudio: true, DirectURL: mo.Some("https://cdn/index.m3u8"), Protocol: "m3u8_native"},
				{FormatID: "dash", Container: "mp4", HasVideo: true, DirectURL: mo.Some("https://cdn/manifest.mpd"), Protocol: "http_dash_segments"},
			}}},
			msg: MsgNoStream,
		},
		{
			name:    "no urls",
			videoID: "nourl",
			ex: &fakeExtractor{md: &types.Metadata{Formats: []types.FormatCandidate{
				mp4("18", 360, ""),
			}}},
			msg: MsgNoStream,
		},
		{
			name:    "nil metadata",
			videoID: "nil",
			ex:      &fakeExtractor{},
			msg:     MsgNoStream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.ex).Resolve(context.Background(), tt.videoID)
			if got != nil {
				t.Errorf("expected no stream, got %+v", got)
			}
			if errs.KindOf(err) != errs.KindNotFound {
				t.Fatalf("kind = %v, err = %v", errs.KindOf(err), err)
			}
			if errs.MessageOf(err) != tt.msg {
				t.Errorf("message = %q, want %q", errs.MessageOf(err), tt.msg)
			}
		})
	}
}

func TestResolveEmptyIDSkipsExtractor(t *testing.T) {
	ex := &fakeExtractor{}
	_, _ = New(ex).Resolve(context.Background(), "   ")
	if len(ex.urls) != 0 {
		t.Errorf("extractor should not be called, got %v", ex.urls)
	}
}

func TestResolveAccessDenied(t *testing.T) {
	tests := []struct {
		err error
		msg string
	}{
		{err: errs.ErrAgeRestricted, msg: MsgAccessDenied},
		{err: fmt.Errorf("%w: Sign in to confirm you're not a bot", errs.ErrLoginRequired), msg: MsgAccessDenied},
		{err: errs.ErrGeoBlocked, msg: MsgGeoBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			_, err := New(&fakeExtractor{err: tt.err}).Resolve(context.Background(), "abc")
			if errs.KindOf(err) != errs.KindAccessDenied {
				t.Fatalf("kind = %v", errs.KindOf(err))
			}
			if errs.MessageOf(err) != tt.msg {
				t.Errorf("message = %q", errs.MessageOf(err))
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("cause lost: %v", err)
			}
		})
	}
}

func TestResolveExtractionFailurePassesMessage(t *testing.T) {
	cause := errors.New("All format options failed. Last error: Requested format is not available")
	_, err := New(&fakeExtractor{err: cause}).Resolve(context.Background(), "abc")
	if errs.KindOf(err) != errs.KindExtractionFailure {
		t.Fatalf("kind = %v", errs.KindOf(err))
	}
	if errs.MessageOf(err) != cause.Error() {
		t.Errorf("message = %q", errs.MessageOf(err))
	}
}

func TestResolveKeepsTypedError(t *testing.T) {
	typed := errs.New(errs.KindAccessDenied, "custom", nil)
	_, err := New(&fakeExtractor{err: typed}).Resolve(context.Background(), "abc")
	if err != typed {
		t.Errorf("expected the typed error to pass through, got %v", err)
	}
}

func TestResolvePanicIsInternal(t *testing.T) {
	ex := &fakeExtractor{hook: func(context.Context) { panic("boom") }}
	got, err := New(ex).Resolve(context.Background(), "abc")
	if got != nil {
		t.Errorf("expected nil stream, got %+v", got)
	}
	if errs.KindOf(err) != errs.KindInternal {
		t.Fatalf("kind = %v, err = %v", errs.KindOf(err), err)
	}
	if errs.MessageOf(err) != MsgInternal {
		t.Errorf("message = %q", errs.MessageOf(err))
	}
}

func TestResolveTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	ex := &fakeExtractor{
		hook: func(ctx context.Context) { deadline, hasDeadline = ctx.Deadline() },
		md:   &types.Metadata{Formats: []types.FormatCandidate{mp4("18", 360, "https://cdn/360")}},
	}

	if _, err := New(ex).Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasDeadline {
		t.Error("no deadline expected without a timeout")
	}

	if _, err := New(ex).WithTimeout(time.Minute).Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasDeadline || time.Until(deadline) > time.Minute {
		t.Errorf("deadline = %v (set %v)", deadline, hasDeadline)
	}
}

func TestResolvePolicy(t *testing.T) {
	md := &types.Metadata{Formats: []types.FormatCandidate{
		mp4("18", 360, "https://cdn/360"),
		mp4("22", 720, "https://cdn/720"),
		mp4("37", 1080, "https://cdn/1080"),
	}}

	p, err := formats.ParsePolicy("highest")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	r := New(&fakeExtractor{md: md}).WithPolicy(p)
	if r.Policy().Strategy != formats.StrategyHighest {
		t.Errorf("policy = %v", r.Policy())
	}
	got, err := r.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FormatID != "37" {
		t.Errorf("format = %q, want 37", got.FormatID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	md := &types.Metadata{Formats: []types.FormatCandidate{
		{FormatID: "243", Container: "webm", HasVideo: true, Height: mo.Some(360), DirectURL: mo.Some("https://cdn/webm")},
		mp4("a", 640, "https://cdn/640"),
		mp4("b", 800, "https://cdn/800"),
		mp4("c", 800, "https://cdn/800b"),
	}}
	r := New(&fakeExtractor{md: md})

	var first string
	for i := 0; i < 20; i++ {
		got, err := r.Resolve(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i == 0 {
			first = got.URL
			continue
		}
		if got.URL != first {
			t.Fatalf("run %d picked %q, first run picked %q", i, got.URL, first)
		}
	}
	if first != "https://cdn/800" {
		t.Errorf("picked %q, want the higher of the equidistant heights in extractor order", first)
	}
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...map[string]interface{}) { l.add(msg) }
func (l *recordingLogger) Info(msg string, _ ...map[string]interface{})  { l.add(msg) }
func (l *recordingLogger) Warn(msg string, _ ...map[string]interface{})  { l.add(msg) }
func (l *recordingLogger) Error(msg string, _ ...map[string]interface{}) { l.add(msg) }

func TestResolveLogs(t *testing.T) {
	log := &recordingLogger{}
	ex := &fakeExtractor{md: &types.Metadata{Formats: []types.FormatCandidate{mp4("18", 360, "https://cdn/360")}}}
	if _, err := New(ex).WithLogger(log).Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"resolving stream", "format selected", "stream resolved"}
	if len(log.messages) != len(want) {
		t.Fatalf("messages = %v", log.messages)
	}
	for i := range want {
		if log.messages[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, log.messages[i], want[i])
		}
	}

	// A nil logger must not break resolving.
	if _, err := New(ex).WithLogger(nil).Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveFormatLogger(t *testing.T) {
	log, formatLog := &recordingLogger{}, &recordingLogger{}
	ex := &fakeExtractor{md: &types.Metadata{Formats: []types.FormatCandidate{mp4("18", 360, "https://cdn/360")}}}
	if _, err := New(ex).WithLogger(log).WithFormatLogger(formatLog).Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(formatLog.messages) != 1 || formatLog.messages[0] != "format selected" {
		t.Errorf("format messages = %v", formatLog.messages)
	}
	if len(log.messages) != 2 {
		t.Errorf("resolver messages = %v", log.messages)
	}
}
