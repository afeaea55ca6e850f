//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ytget/streamproxy"
	"github.com/ytget/streamproxy/extractor"
	"github.com/ytget/streamproxy/internal/server"
	"github.com/ytget/streamproxy/pkg/client"
)

func videoID() string {
	if id := os.Getenv("STREAMPROXY_E2E_VIDEO"); id != "" {
		return id
	}
	return "dQw4w9WgXcQ"
}

func backends() []string {
	if b := os.Getenv("STREAMPROXY_E2E_BACKENDS"); b != "" {
		return strings.Split(b, ",")
	}
	return extractor.Names()
}

func TestE2E_Resolve(t *testing.T) {
	if os.Getenv("STREAMPROXY_E2E") == "" {
		t.Skip("STREAMPROXY_E2E not set")
	}

	httpClient := client.NewWith(client.Config{InsecureSkipVerify: true})
	for _, name := range backends() {
		t.Run(name, func(t *testing.T) {
			ex, err := extractor.New(name, extractor.Deps{HTTPClient: httpClient.HTTPClient, CacheDir: t.TempDir()})
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			stream, err := streamproxy.New(ex).Resolve(ctx, videoID())
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if !strings.HasPrefix(stream.URL, "http") || strings.Contains(stream.URL, ".m3u8") {
				t.Errorf("unexpected stream url %q", stream.URL)
			}
			if stream.Title == "" || stream.Uploader == "" {
				t.Errorf("metadata not normalized: %+v", stream)
			}
		})
	}
}

func TestE2E_HTTP(t *testing.T) {
	if os.Getenv("STREAMPROXY_E2E") == "" {
		t.Skip("STREAMPROXY_E2E not set")
	}

	ex, err := extractor.New(extractor.Default, extractor.Deps{})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(server.New(streamproxy.New(ex), server.Config{}, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/get_stream/" + videoID())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/get_stream/xxxxxxxxxxx")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("nonexistent video status = %d", resp.StatusCode)
	}
}
