// Package extractor defines the extraction collaborator contract and builds
// the configured backend.
package extractor

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ytget/streamproxy/extractor/kkdai"
	"github.com/ytget/streamproxy/extractor/ytdlpcli"
	"github.com/ytget/streamproxy/internal/botguard"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/types"
	"github.com/ytget/streamproxy/youtube/cipher"
	"github.com/ytget/streamproxy/youtube/innertube"
)

// Extractor turns a watch URL into metadata and candidate formats.
//
// Implementations return errors wrapping the errs sentinels so callers can
// classify failures without matching on text.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, videoURL string, opts types.ExtractOptions) (*types.Metadata, error)
}

// Default is the backend used when none is configured.
const Default = ytdlpcli.Name

// Deps carries everything a backend may need. Zero values are fine.
type Deps struct {
	HTTPClient *http.Client
	Logger     *logger.Logger

	// yt-dlp
	Formats []string
	Proxy   string

	// innertube
	InnerTubeClient  string
	InnerTubeVersion string
	Botguard         botguard.Mode
	BotguardScript   string
	BotguardCache    string
	CacheDir         string
}

type factory func(Deps) (Extractor, error)

var registry = map[string]factory{
	ytdlpcli.Name: func(d Deps) (Extractor, error) {
		return ytdlpcli.New(
			ytdlpcli.WithFormats(d.Formats...),
			ytdlpcli.WithProxy(d.Proxy),
			ytdlpcli.WithLogger(d.Logger),
		), nil
	},
	innertube.Name: newInnerTube,
	kkdai.Name: func(d Deps) (Extractor, error) {
		return kkdai.New(d.HTTPClient, d.Logger), nil
	},
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend called name. An empty name selects Default.
func New(name string, deps Deps) (Extractor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = Default
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown extractor backend %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	return f(deps)
}

func newInnerTube(d Deps) (Extractor, error) {
	client := innertube.New(d.HTTPClient).
		WithClient(d.InnerTubeClient, d.InnerTubeVersion).
		WithLogger(d.Logger)

	if d.Botguard != botguard.Off {
		solver := botguard.NewSolver(d.BotguardScript)
		if solver == nil {
			return nil, fmt.Errorf("botguard mode %s needs a solver script and a build with the botguard tag", d.Botguard)
		}
		cache, err := botguardCache(d)
		if err != nil {
			return nil, err
		}
		client = client.WithBotguard(solver, d.Botguard, cache)
	}

	var opts []cipher.Option
	opts = append(opts, cipher.WithLogger(d.Logger))
	if d.CacheDir != "" {
		opts = append(opts, cipher.WithCacheDir(d.CacheDir))
	}
	return innertube.NewExtractor(client, cipher.New(d.HTTPClient, opts...), d.Logger), nil
}

func botguardCache(d Deps) (botguard.Cache, error) {
	switch strings.ToLower(strings.TrimSpace(d.BotguardCache)) {
	case "", "memory":
		return botguard.NewMemoryCache(), nil
	case "file":
		if d.CacheDir == "" {
			return nil, fmt.Errorf("botguard file cache needs a cache directory")
		}
		return botguard.NewFileCache(filepath.Join(d.CacheDir, "botguard"))
	}
	return nil, fmt.Errorf("unknown botguard cache %q", d.BotguardCache)
}
