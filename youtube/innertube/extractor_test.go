package innertube

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/filesystem"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/cipher"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "   ", wantErr: true},
		{in: "https://www.youtube.com/watch", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := VideoID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrInvalidID) {
					t.Errorf("expected ErrInvalidID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlayabilityError(t *testing.T) {
	tests := []struct {
		name   string
		status PlayabilityStatus
		want   error
		kind   errs.Kind
	}{
		{name: "ok", status: PlayabilityStatus{Status: "OK"}},
		{name: "empty", status: PlayabilityStatus{}},
		{name: "error unavailable", status: PlayabilityStatus{Status: "ERROR", Reason: "Video unavailable"}, want: errs.ErrVideoUnavailable, kind: errs.KindNotFound},
		{name: "error geo", status: PlayabilityStatus{Status: "ERROR", Reason: "The uploader has not made this video available in your country"}, want: errs.ErrGeoBlocked, kind: errs.KindAccessDenied},
		{name: "error rate", status: PlayabilityStatus{Status: "ERROR", Reason: "Too many requests"}, want: errs.ErrRateLimited, kind: errs.KindExtractionFailure},
		{name: "error rate limit", status: PlayabilityStatus{Status: "ERROR", Reason: "Rate limit exceeded"}, want: errs.ErrRateLimited, kind: errs.KindExtractionFailure},
		{name: "error moderated", status: PlayabilityStatus{Status: "ERROR", Reason: "This video was removed by a moderator for violating community guidelines"}, want: errs.ErrVideoUnavailable, kind: errs.KindNotFound},
		{name: "error separate", status: PlayabilityStatus{Status: "ERROR", Reason: "This video is available in a separate region"}, want: errs.ErrVideoUnavailable, kind: errs.KindNotFound},
		{name: "login age", status: PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "Sign in to confirm your age"}, want: errs.ErrAgeRestricted, kind: errs.KindAccessDenied},
		{name: "login private", status: PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "This video is private"}, want: errs.ErrPrivate, kind: errs.KindNotFound},
		{name: "login age restricted", status: PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "This video is age-restricted"}, want: errs.ErrAgeRestricted, kind: errs.KindAccessDenied},
		{name: "login page", status: PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "Sign in on the page to continue"}, want: errs.ErrLoginRequired, kind: errs.KindAccessDenied},
		{name: "login bot", status: PlayabilityStatus{Status: "LOGIN_REQUIRED", Reason: "Sign in to confirm you're not a bot"}, want: errs.ErrLoginRequired, kind: errs.KindAccessDenied},
		{name: "age check", status: PlayabilityStatus{Status: "AGE_CHECK_REQUIRED"}, want: errs.ErrAgeRestricted, kind: errs.KindAccessDenied},
		{name: "unplayable", status: PlayabilityStatus{Status: "UNPLAYABLE", Reason: "Playback on other websites has been disabled"}, want: errs.ErrVideoUnavailable, kind: errs.KindNotFound},
		{name: "unplayable private", status: PlayabilityStatus{Status: "UNPLAYABLE", Reason: "This video is private"}, want: errs.ErrPrivate, kind: errs.KindNotFound},
		{name: "offline", status: PlayabilityStatus{Status: "LIVE_STREAM_OFFLINE"}, want: errs.ErrVideoUnavailable, kind: errs.KindNotFound},
		{name: "unknown", status: PlayabilityStatus{Status: "WEIRD", Reason: "?"}, kind: errs.KindExtractionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := playabilityError(tt.status)
			if tt.status.Status == "" || tt.status.Status == "OK" {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if got := errs.Classify(err); got != tt.kind {
				t.Errorf("Classify = %v, want %v", got, tt.kind)
			}
			if tt.status.Reason != "" && !strings.Contains(err.Error(), tt.status.Reason) {
				t.Errorf("reason missing from %q", err.Error())
			}
		})
	}
}

func TestCandidateFromFormat(t *testing.T) {
	tests := []struct {
		name      string
		in        Format
		container string
		video     bool
		audio     bool
		height    int
	}{
		{
			name:      "progressive mp4",
			in:        Format{Itag: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Height: 360, Bitrate: 500000},
			container: "mp4", video: true, audio: true, height: 360,
		},
		{
			name:      "adaptive video from label",
			in:        Format{Itag: 137, MimeType: `video/mp4; codecs="avc1.640028"`, QualityLabel: "1080p"},
			container: "mp4", video: true, height: 1080,
		},
		{
			name:      "adaptive audio",
			in:        Format{Itag: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2},
			container: "webm", audio: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidateFromFormat(tt.in)
			if c.Container != tt.container {
				t.Errorf("container = %q, want %q", c.Container, tt.container)
			}
			if c.HasVideo != tt.video || c.HasAudio != tt.audio {
				t.Errorf("tracks = %v/%v, want %v/%v", c.HasVideo, c.HasAudio, tt.video, tt.audio)
			}
			if got := c.Height.OrElse(0); got != tt.height {
				t.Errorf("height = %d, want %d", got, tt.height)
			}
			if c.URL() != "" {
				t.Errorf("unexpected url %q", c.URL())
			}
		})
	}
}

func TestMetadataFromDetails(t *testing.T) {
	d := VideoDetails{Title: "Title", Author: "Author", LengthSeconds: "212", ViewCount: "1000"}
	d.Thumbnail.Thumbnails = []Thumbnail{
		{URL: "small", Width: 120, Height: 90},
		{URL: "large", Width: 1280, Height: 720},
		{URL: "medium", Width: 640, Height: 480},
	}
	md := metadataFromDetails("id", d)

	if md.ID != "id" {
		t.Errorf("ID = %q", md.ID)
	}
	if md.Title.OrElse("") != "Title" || md.Uploader.OrElse("") != "Author" {
		t.Errorf("title/uploader = %v/%v", md.Title, md.Uploader)
	}
	if md.Duration.OrElse(0) != 212 || md.ViewCount.OrElse(0) != 1000 {
		t.Errorf("duration/views = %v/%v", md.Duration, md.ViewCount)
	}
	if md.Thumbnail.OrElse("") != "large" {
		t.Errorf("thumbnail = %v", md.Thumbnail)
	}

	empty := metadataFromDetails("id", VideoDetails{})
	if empty.Title.IsPresent() || empty.Duration.IsPresent() || empty.Thumbnail.IsPresent() {
		t.Errorf("expected absent fields, got %+v", empty)
	}
}

const playerBody = `{
	"playabilityStatus":{"status":"OK"},
	"videoDetails":{"videoId":"abc","title":"Clip","lengthSeconds":"61","author":"Chan","viewCount":"7",
		"thumbnail":{"thumbnails":[{"url":"https://i.ytimg.com/vi/abc/hq.jpg","width":480,"height":360}]}},
	"streamingData":{
		"formats":[
			{"itag":18,"url":"https://cdn.example/18?n=abc","mimeType":"video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"","height":360,"bitrate":500000}
		],
		"adaptiveFormats":[
			{"itag":22,"signatureCipher":"s=gfedcba&sp=sig&url=https%3A%2F%2Fcdn.example%2F22","mimeType":"video/mp4; codecs=\"avc1.64001F, mp4a.40.2\"","height":720,"bitrate":1500000},
			{"itag":251,"url":"https://cdn.example/251","mimeType":"audio/webm; codecs=\"opus\"","bitrate":130000}
		],
		"hlsManifestUrl":"https://manifest.googlevideo.com/api/manifest/hls_variant/index.m3u8"
	}
}`

func TestExtract(t *testing.T) {
	newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, playerBody)
	})
	filesystem.SetMemMapFs()
	t.Cleanup(filesystem.SetOsFs)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	ex := NewExtractor(New(httpClient), cipher.New(httpClient, cipher.WithCacheDir("/cache")), nil)

	if ex.Name() != "innertube" {
		t.Errorf("Name = %q", ex.Name())
	}

	md, err := ex.Extract(context.Background(), "https://www.youtube.com/watch?v=abc", types.DefaultExtractOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.ID != "abc" || md.Title.OrElse("") != "Clip" || md.Uploader.OrElse("") != "Chan" {
		t.Errorf("metadata = %+v", md)
	}
	if len(md.Formats) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(md.Formats))
	}

	byID := map[string]types.FormatCandidate{}
	for _, f := range md.Formats {
		byID[f.FormatID] = f
	}

	u, err := url.Parse(byID["18"].URL())
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Query().Get("n") != "abc_ok" || u.Query().Get("ratebypass") != "yes" {
		t.Errorf("direct url not finished: %s", u)
	}

	u, err = url.Parse(byID["22"].URL())
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "cdn.example" || u.Query().Get("sig") != "abcdefg" {
		t.Errorf("ciphered url not resolved: %s", u)
	}

	hls := byID["hls"]
	if hls.Protocol != "m3u8_native" || !strings.HasSuffix(hls.URL(), ".m3u8") {
		t.Errorf("hls candidate = %+v", hls)
	}
}

func TestExtractWithoutDecipherer(t *testing.T) {
	newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, playerBody)
	})

	ex := NewExtractor(New(&http.Client{Timeout: 5 * time.Second}), nil, nil)
	md, err := ex.Extract(context.Background(), "abc", types.ExtractOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range md.Formats {
		if f.FormatID == "22" && f.URL() != "" {
			t.Errorf("ciphered format should stay without url, got %q", f.URL())
		}
		if f.FormatID == "18" && f.URL() != "https://cdn.example/18?n=abc" {
			t.Errorf("direct url changed: %q", f.URL())
		}
	}
}

func TestExtractPlayability(t *testing.T) {
	newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video is private"}}`)
	})

	ex := NewExtractor(New(&http.Client{Timeout: 5 * time.Second}), nil, nil)
	_, err := ex.Extract(context.Background(), "https://www.youtube.com/watch?v=abc", types.DefaultExtractOptions())
	if !errors.Is(err, errs.ErrPrivate) {
		t.Fatalf("expected ErrPrivate, got %v", err)
	}
}
