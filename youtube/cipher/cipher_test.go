package cipher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/ytget/streamproxy/internal/filesystem"
)

const testPlayerJS = `
function decipher(a){return a.split('').reverse().join('');}
function ncode(n){return n + '_ok';}
`

func newPlayerServer(t *testing.T, script string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(script))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestDecipherer(t *testing.T) *Decipherer {
	t.Helper()
	filesystem.SetMemMapFs()
	t.Cleanup(filesystem.SetOsFs)
	return New(http.DefaultClient, WithCacheDir("/cache"))
}

func TestPlayerJSURL(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{
			name: "relative",
			page: `ytcfg.set({"jsUrl":"\/s\/player\/abc123\/player_ias.vflset\/en_US\/base.js"});`,
			want: "https://www.youtube.com/s/player/abc123/player_ias.vflset/en_US/base.js",
		},
		{
			name: "absolute",
			page: `{"jsUrl":"https://cdn.example.com/base.js"}`,
			want: "https://cdn.example.com/base.js",
		},
		{
			name:    "missing",
			page:    `<html></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlayerJSURL([]byte(tt.page))
			if (err != nil) != tt.wantErr {
				t.Fatalf("PlayerJSURL() err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !IsNotFound(err) {
				t.Errorf("expected not-found code, got %v", err)
			}
			if got != tt.want {
				t.Errorf("PlayerJSURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecipher(t *testing.T) {
	srv, hits := newPlayerServer(t, testPlayerJS)
	d := newTestDecipherer(t)
	ctx := context.Background()

	got, err := d.Decipher(ctx, srv.URL+"/base.js", "test_signature")
	if err != nil {
		t.Fatalf("Decipher: %v", err)
	}
	if got != "erutangis_tset" {
		t.Errorf("Decipher() = %q", got)
	}

	n, err := d.DecipherN(ctx, srv.URL+"/base.js", "abc")
	if err != nil {
		t.Fatalf("DecipherN: %v", err)
	}
	if n != "abc_ok" {
		t.Errorf("DecipherN() = %q", n)
	}

	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("player script should be fetched once, fetched %d times", got)
	}
}

func TestDecipher_Errors(t *testing.T) {
	srv, _ := newPlayerServer(t, "function nothing(){}")
	d := newTestDecipherer(t)
	ctx := context.Background()

	if _, err := d.Decipher(ctx, srv.URL+"/base.js", ""); !IsInvalid(err) {
		t.Errorf("empty signature: got %v", err)
	}
	if _, err := d.Decipher(ctx, srv.URL+"/base.js", "sig"); !IsNotFound(err) {
		t.Errorf("missing decipher function: got %v", err)
	}
	if _, err := d.Decipher(ctx, srv.URL+"/missing.js", "sig"); !IsNotFound(err) {
		t.Errorf("missing script: got %v", err)
	}

	n, err := d.DecipherN(ctx, srv.URL+"/base.js", "keep")
	if err != nil || n != "keep" {
		t.Errorf("DecipherN without ncode = %q, %v", n, err)
	}
}

func TestDecipher_BadScript(t *testing.T) {
	srv, _ := newPlayerServer(t, "function (")
	d := newTestDecipherer(t)

	if _, err := d.Decipher(context.Background(), srv.URL+"/base.js", "sig"); !IsJSError(err) {
		t.Errorf("expected JS error, got %v", err)
	}
}

func TestResolveURL(t *testing.T) {
	srv, _ := newPlayerServer(t, testPlayerJS)
	d := newTestDecipherer(t)
	ctx := context.Background()
	playerURL := srv.URL + "/base.js"

	t.Run("signature cipher", func(t *testing.T) {
		sc := url.Values{
			"s":   {"cba"},
			"sp":  {"sig"},
			"url": {"https://rr1.googlevideo.com/videoplayback?itag=18&n=xyz"},
		}.Encode()

		got, err := d.ResolveURL(ctx, "", sc, playerURL)
		if err != nil {
			t.Fatalf("ResolveURL: %v", err)
		}
		u, _ := url.Parse(got)
		q := u.Query()
		if q.Get("sig") != "abc" {
			t.Errorf("sig = %q", q.Get("sig"))
		}
		if q.Get("n") != "xyz_ok" {
			t.Errorf("n = %q", q.Get("n"))
		}
		if q.Get("ratebypass") != "yes" || q.Get("alr") != "yes" {
			t.Errorf("missing ratebypass/alr: %s", got)
		}
	})

	t.Run("direct url", func(t *testing.T) {
		got, err := d.ResolveURL(ctx, "https://rr1.googlevideo.com/videoplayback?itag=22", "", playerURL)
		if err != nil {
			t.Fatalf("ResolveURL: %v", err)
		}
		u, _ := url.Parse(got)
		if u.Query().Get("itag") != "22" || u.Query().Get("ratebypass") != "yes" {
			t.Errorf("unexpected url %s", got)
		}
	})

	t.Run("nothing to resolve", func(t *testing.T) {
		if _, err := d.ResolveURL(ctx, "", "", playerURL); !IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("cipher without signature", func(t *testing.T) {
		if _, err := d.ResolveURL(ctx, "", "url=https%3A%2F%2Fx", playerURL); !IsInvalid(err) {
			t.Errorf("expected invalid, got %v", err)
		}
	})
}
