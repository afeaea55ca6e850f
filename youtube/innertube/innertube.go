package innertube

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/botguard"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/youtube/cipher"
)

var (
	playerURL = "https://www.youtube.com/youtubei/v1/player"
	ytBase    = "https://www.youtube.com"
)

const (
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	headerContentTypeJSON = "application/json"
	headerBotguard        = "x-goog-ext-123-botguard"
	headerVisitorID       = "x-goog-visitor-id"
	clientNameWEB         = "WEB"
	clientNameAndroid     = "ANDROID"
	defaultClientVersion  = "2.20250312.04.00"
	visitorIDMaxAge       = 10 * time.Hour
	// errorBodyLimit bounds how much of a failed response ends up in errors.
	errorBodyLimit = 512
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_CREATOR":
		return "62"
	case "WEB_REMIX":
		return "67"
	case "TVHTML5_SIMPLY":
		return "75"
	case "TVHTML5_SIMPLY_EMBEDDED_PLAYER":
		return "85"
	default:
		return ""
	}
}

// Client for interacting with the YouTube InnerTube API. It is safe for
// concurrent use; scraped page values are shared between calls.
type Client struct {
	HTTPClient *http.Client

	mu          sync.Mutex
	apiKey      string
	clientVer   string
	clientName  string
	playerJSURL string
	visitorID   struct {
		value   string
		updated time.Time
	}

	// Optional Botguard integration
	bg struct {
		solver botguard.Solver
		mode   botguard.Mode
		cache  botguard.Cache
		ttl    time.Duration
		debug  bool
	}

	log   *logger.ComponentLogger
	bgLog *logger.ComponentLogger
}

// New creates a new InnerTube client. A nil httpClient gets a default one.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				DisableCompression:    true,
				ReadBufferSize:        16 * 1024,
				WriteBufferSize:       16 * 1024,
			},
			Timeout: 30 * time.Second,
		}
	}

	nop := logger.Nop()
	return &Client{
		HTTPClient: httpClient,
		clientName: clientNameWEB,
		log:        nop.WithComponent(logger.ComponentInnerTube),
		bgLog:      nop.WithComponent(logger.ComponentBotGuard),
	}
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = name
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = version
	}
	return c
}

// WithBotguard configures an optional Botguard solver and mode.
func (c *Client) WithBotguard(solver botguard.Solver, mode botguard.Mode, cache botguard.Cache) *Client {
	c.bg.solver = solver
	c.bg.mode = mode
	c.bg.cache = cache
	return c
}

// WithBotguardDebug logs every Botguard decision at info level instead of debug.
func (c *Client) WithBotguardDebug(debug bool) *Client {
	c.bg.debug = debug
	return c
}

// WithBotguardTTL sets a default TTL to apply when solver does not specify ExpiresAt.
func (c *Client) WithBotguardTTL(ttl time.Duration) *Client {
	c.bg.ttl = ttl
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *logger.Logger) *Client {
	if l != nil {
		c.log = l.WithComponent(logger.ComponentInnerTube)
		c.bgLog = l.WithComponent(logger.ComponentBotGuard)
	}
	return c
}

// PlayerJSURL returns the player script URL scraped from the last watch page,
// or "" if none was seen yet.
func (c *Client) PlayerJSURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerJSURL
}

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     StreamingData     `json:"streamingData"`
	VideoDetails      VideoDetails      `json:"videoDetails"`
}

// PlayabilityStatus tells whether the video can be played and why not.
type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// StreamingData lists the stream variants of a playable video.
type StreamingData struct {
	ExpiresInSeconds string   `json:"expiresInSeconds"`
	Formats          []Format `json:"formats"`
	AdaptiveFormats  []Format `json:"adaptiveFormats"`
	HLSManifestURL   string   `json:"hlsManifestUrl"`
	DashManifestURL  string   `json:"dashManifestUrl"`
}

// Format is one entry of formats or adaptiveFormats.
type Format struct {
	Itag            int    `json:"itag"`
	URL             string `json:"url"`
	SignatureCipher string `json:"signatureCipher"`
	// Cipher is the older name of SignatureCipher.
	Cipher        string `json:"cipher"`
	MimeType      string `json:"mimeType"`
	Bitrate       int    `json:"bitrate"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	QualityLabel  string `json:"qualityLabel"`
	ContentLength string `json:"contentLength"`
	AudioChannels int    `json:"audioChannels"`
}

// VideoDetails carries the descriptive metadata.
type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	LengthSeconds string `json:"lengthSeconds"`
	Author        string `json:"author"`
	ViewCount     string `json:"viewCount"`
	IsLiveContent bool   `json:"isLiveContent"`
	Thumbnail     struct {
		Thumbnails []Thumbnail `json:"thumbnails"`
	} `json:"thumbnail"`
}

// Thumbnail is one preview image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// pageValues are the values scraped from a YouTube HTML page.
type pageValues struct {
	apiKey      string
	clientVer   string
	playerJSURL string
}

// scrapePage walks the inline scripts of an HTML page looking for ytcfg
// values, and the player script reference.
func scrapePage(body []byte) (pageValues, error) {
	var v pageValues
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return v, fmt.Errorf("parse page: %w", err)
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok {
			if v.playerJSURL == "" && strings.Contains(src, "/player/") && strings.HasSuffix(src, "base.js") {
				v.playerJSURL = absoluteURL(src)
			}
			return true
		}
		text := s.Text()
		if v.apiKey == "" {
			if m := apiKeyRe.FindStringSubmatch(text); len(m) == 2 {
				v.apiKey = m[1]
			}
		}
		if v.clientVer == "" {
			if m := clientVerRe.FindStringSubmatch(text); len(m) == 2 {
				v.clientVer = m[1]
			}
		}
		return v.apiKey == "" || v.clientVer == "" || v.playerJSURL == ""
	})

	if v.playerJSURL == "" {
		if u, err := cipher.PlayerJSURL(body); err == nil {
			v.playerJSURL = u
		}
	}
	return v, nil
}

func absoluteURL(src string) string {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	default:
		return ytBase + src
	}
}

// ensureKey fills the API key, client version and player script URL from
// the watch page, falling back to the home page.
func (c *Client) ensureKey(ctx context.Context, videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiKey != "" && c.clientVer != "" && c.playerJSURL != "" {
		return
	}

	sources := []string{ytBase + "/watch?v=" + videoID, ytBase}
	for _, source := range sources {
		if c.apiKey != "" && c.clientVer != "" && c.playerJSURL != "" {
			break
		}
		if ctx.Err() != nil {
			return
		}

		body, err := c.fetchPage(ctx, source)
		if err != nil {
			c.log.Debug("page fetch failed", map[string]interface{}{"url": source, "error": err.Error()})
			continue
		}
		v, err := scrapePage(body)
		if err != nil {
			c.log.Debug("page scrape failed", map[string]interface{}{"url": source, "error": err.Error()})
			continue
		}

		if c.apiKey == "" {
			c.apiKey = v.apiKey
		}
		if c.clientVer == "" {
			c.clientVer = v.clientVer
		}
		if c.playerJSURL == "" {
			c.playerJSURL = v.playerJSURL
		}
	}

	if c.clientVer == "" {
		c.clientVer = defaultClientVersion
	}
	c.log.Trace("innertube page values", map[string]interface{}{
		"api_key_found": c.apiKey != "",
		"client":        c.clientName,
		"version":       c.clientVer,
		"player_js":     c.playerJSURL,
	})
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "max-age=0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return readBody(resp)
}

// readBody reads the response body, undoing gzip or brotli encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// PlayerRequest selects what GetPlayerResponse asks for.
type PlayerRequest struct {
	VideoID string
	// GL is the country the request pretends to come from, "" for none.
	GL string
}

// GetPlayerResponse fetches video data for the provided video ID using the
// InnerTube /player endpoint.
func (c *Client) GetPlayerResponse(ctx context.Context, in PlayerRequest) (*PlayerResponse, error) {
	if strings.TrimSpace(in.VideoID) == "" {
		return nil, errs.ErrInvalidID
	}

	c.ensureKey(ctx, in.VideoID)

	c.mu.Lock()
	apiKey, name, ver := c.apiKey, c.clientName, c.clientVer
	c.mu.Unlock()

	if apiKey == "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("innertube: api key not found")
	}

	// If a custom client name is set and version missing, use minimal default
	if name != clientNameWEB && ver == defaultClientVersion {
		ver = "2.0"
	}

	clientMap := map[string]any{
		"clientName":    name,
		"clientVersion": ver,
		"hl":            "en",
	}
	if in.GL != "" {
		clientMap["gl"] = in.GL
	}
	reqUserAgent := userAgentValue
	if strings.EqualFold(name, clientNameAndroid) {
		clientMap["androidSdkVersion"] = 30
		clientMap["osName"] = "Android"
		clientMap["osVersion"] = "11"
		ua := "com.google.android.youtube/" + ver + " (Linux; U; Android 11) gzip"
		clientMap["userAgent"] = ua
		reqUserAgent = ua
	}

	requestBody, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": clientMap,
		},
		"videoId":        in.VideoID,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL+"?key="+apiKey+"&prettyPrint=false", bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("User-Agent", reqUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Referer", ytBase+"/")
	req.Header.Set("Origin", ytBase)
	if code := clientCodeFromName(name); code != "" {
		req.Header.Set("X-YouTube-Client-Name", code)
	}
	req.Header.Set("X-YouTube-Client-Version", ver)

	if visitorID, err := c.getVisitorID(ctx); err == nil && visitorID != "" {
		req.Header.Set(headerVisitorID, visitorID)
	} else if err != nil {
		c.log.Debug("visitor id unavailable", map[string]interface{}{"error": err.Error()})
	}

	start := time.Now()
	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return nil, fmt.Errorf("innertube player request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	c.log.Debug("player response", map[string]interface{}{
		"video_id": in.VideoID,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).String(),
	})

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("innertube player: %w", errs.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("innertube player: unexpected status %d: %s", resp.StatusCode, truncate(body, errorBodyLimit))
	}

	var playerResponse PlayerResponse
	if err := json.Unmarshal(body, &playerResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &playerResponse, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func (c *Client) getVisitorID(ctx context.Context) (string, error) {
	c.mu.Lock()
	value, updated := c.visitorID.value, c.visitorID.updated
	c.mu.Unlock()

	if value != "" && time.Since(updated) <= visitorIDMaxAge {
		return value, nil
	}
	if err := c.refreshVisitorID(ctx); err != nil {
		return value, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visitorID.value, nil
}

// refreshVisitorID fetches a new visitor ID from YouTube's main page
func (c *Client) refreshVisitorID(ctx context.Context) error {
	const sep = "\nytcfg.set("

	body, err := c.fetchPage(ctx, ytBase)
	if err != nil {
		return err
	}

	_, rest, found := strings.Cut(string(body), sep)
	if !found {
		return errors.New("visitor ID not found in YouTube response")
	}

	var value struct {
		InnertubeContext struct {
			Client struct {
				VisitorData string `json:"visitorData"`
			} `json:"client"`
		} `json:"INNERTUBE_CONTEXT"`
	}
	if err := json.NewDecoder(strings.NewReader(rest)).Decode(&value); err != nil {
		return err
	}

	visitor := strings.ReplaceAll(value.InnertubeContext.Client.VisitorData, "%3D", "=")
	if visitor == "" {
		return errors.New("visitor ID empty in YouTube response")
	}

	c.mu.Lock()
	c.visitorID.value = visitor
	c.visitorID.updated = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) bgDebug(msg string, fields ...map[string]interface{}) {
	if c.bg.debug {
		c.bgLog.Info(msg, fields...)
		return
	}
	c.bgLog.Debug(msg, fields...)
}

// doWithBotguardRetry executes the request and, if configured in Auto/Force mode,
// attempts a single Botguard attestation on 403 to retry the same request with
// the obtained token applied as needed.
func (c *Client) doWithBotguardRetry(req *http.Request) (*http.Response, error) {
	if c.bg.solver == nil || c.bg.mode == botguard.Off {
		return c.HTTPClient.Do(req)
	}

	if c.bg.mode == botguard.Force {
		c.bgDebug("force mode preflight attestation")
		if err := c.maybeApplyBotguard(req); err != nil {
			c.bgLog.Warn("preflight attestation failed", map[string]interface{}{"error": err.Error()})
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}

	c.bgDebug("403 detected, attempting attestation and retry")
	if err := c.maybeApplyBotguard(req); err != nil {
		c.bgLog.Warn("attestation failed", map[string]interface{}{"error": err.Error()})
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		return resp, nil
	}
	_ = resp.Body.Close()
	return c.HTTPClient.Do(retry)
}

// rewind returns a copy of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

// maybeApplyBotguard runs the solver and applies the token to request headers.
func (c *Client) maybeApplyBotguard(req *http.Request) error {
	if c.bg.solver == nil {
		return nil
	}
	name := c.clientName
	if strings.TrimSpace(name) == "" {
		name = clientNameWEB
	}
	c.mu.Lock()
	ver := c.clientVer
	c.mu.Unlock()

	in := botguard.Input{
		UserAgent:     req.Header.Get("User-Agent"),
		PageURL:       ytBase + "/",
		ClientName:    name,
		ClientVersion: ver,
		VisitorID:     req.Header.Get(headerVisitorID),
	}
	key := botguard.KeyFromInput(in)
	if c.bg.cache != nil {
		if out, ok := c.bg.cache.Get(key); ok && !out.Expired(time.Now()) {
			c.bgDebug("cache hit: applying cached token")
			if out.Token != "" {
				req.Header.Set(headerBotguard, out.Token)
			}
			return nil
		}
		c.bgDebug("cache miss: computing token")
	}

	out, err := c.bg.solver.Attest(req.Context(), in)
	if err != nil {
		return err
	}
	if out.ExpiresAt.IsZero() && c.bg.ttl > 0 {
		out.ExpiresAt = time.Now().Add(c.bg.ttl)
	}
	if out.Token != "" {
		c.bgDebug("token obtained, applying to headers")
		req.Header.Set(headerBotguard, out.Token)
	}
	if c.bg.cache != nil {
		c.bg.cache.Set(key, out)
	}
	return nil
}
