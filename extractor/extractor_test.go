package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ytget/streamproxy/extractor/ytdlpcli"
	"github.com/ytget/streamproxy/internal/botguard"
	"github.com/ytget/streamproxy/internal/filesystem"
)

func TestNew(t *testing.T) {
	tests := []struct {
		backend  string
		wantName string
		wantType string
	}{
		{backend: "", wantName: "ytdlp", wantType: "*ytdlpcli.Extractor"},
		{backend: "ytdlp", wantName: "ytdlp", wantType: "*ytdlpcli.Extractor"},
		{backend: " InnerTube ", wantName: "innertube", wantType: "*innertube.Extractor"},
		{backend: "kkdai", wantName: "kkdai", wantType: "*kkdai.Extractor"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			ex, err := New(tt.backend, Deps{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ex.Name() != tt.wantName {
				t.Errorf("Name = %q, want %q", ex.Name(), tt.wantName)
			}
			if got := fmt.Sprintf("%T", ex); got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := New("youtube-dl", Deps{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range Names() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should list %q", err.Error(), name)
		}
	}
}

func TestYtdlpFormats(t *testing.T) {
	ex, err := New("ytdlp", Deps{Formats: []string{"worst"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ex.(*ytdlpcli.Extractor).Formats(); len(got) != 1 || got[0] != "worst" {
		t.Errorf("formats = %v", got)
	}
}

func TestInnerTubeBotguard(t *testing.T) {
	if botguard.Available {
		t.Skip("solver build: missing script is reported by the solver itself")
	}
	_, err := New("innertube", Deps{Botguard: botguard.Auto, BotguardScript: "/bg.js"})
	if err == nil {
		t.Fatal("expected error without a solver")
	}
}

func TestBotguardCache(t *testing.T) {
	filesystem.SetMemMapFs()
	t.Cleanup(filesystem.SetOsFs)

	if c, err := botguardCache(Deps{}); err != nil || c == nil {
		t.Errorf("memory cache: %v, %v", c, err)
	}
	if _, err := botguardCache(Deps{BotguardCache: "file"}); err == nil {
		t.Error("file cache without directory should fail")
	}
	if c, err := botguardCache(Deps{BotguardCache: "file", CacheDir: "/cache"}); err != nil || c == nil {
		t.Errorf("file cache: %v, %v", c, err)
	}
	if _, err := botguardCache(Deps{BotguardCache: "redis"}); err == nil {
		t.Error("unknown cache should fail")
	}
}
