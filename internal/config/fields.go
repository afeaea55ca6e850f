package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Configuration keys.
const (
	KeyServerHost            = "server.host"
	KeyServerPort            = "server.port"
	KeyServerCORSOrigins     = "server.cors_origins"
	KeyServerShutdownTimeout = "server.shutdown_timeout"

	KeyExtractorBackend          = "extractor.backend"
	KeyExtractorFormats          = "extractor.formats"
	KeyExtractorTimeout          = "extractor.timeout"
	KeyExtractorInnerTubeClient  = "extractor.innertube_client"
	KeyExtractorInnerTubeVersion = "extractor.innertube_version"
	KeyExtractorBotguardMode     = "extractor.botguard_mode"
	KeyExtractorBotguardScript   = "extractor.botguard_script"
	KeyExtractorBotguardCache    = "extractor.botguard_cache"

	KeySelectionPolicy            = "selection.policy"
	KeySelectionPreferProgressive = "selection.prefer_progressive"

	KeyHTTPTimeout     = "http.timeout"
	KeyHTTPRetries     = "http.retries"
	KeyHTTPUserAgent   = "http.user_agent"
	KeyHTTPProxy       = "http.proxy"
	KeyHTTPInsecure    = "http.insecure"
	KeyHTTPFingerprint = "http.fingerprint"

	KeyLogLevel              = "log.level"
	KeyLogFormat             = "log.format"
	KeyLogOutput             = "log.output"
	KeyLogComponents         = "log.components"
	KeyLogTimestamp          = "log.timestamp"
	KeyLogCaller             = "log.caller"
	KeyLogRotationMaxSize    = "log.rotation.max_size"
	KeyLogRotationMaxAge     = "log.rotation.max_age"
	KeyLogRotationMaxBackups = "log.rotation.max_backups"
	KeyLogRotationCompress   = "log.rotation.compress"

	KeyCacheDir = "cache_dir"
)

// PortEnv is the plain environment variable that sets the listen port.
const PortEnv = "PORT"

// Field describes one configuration key.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the prefixed environment variable for the field.
func (f Field) Env() string {
	return strings.ToUpper(EnvPrefix + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Default holds every known field by key.
var Default = make(map[string]Field)

func register(k string, v any, desc string) {
	if _, exists := Default[k]; exists {
		panic("duplicate config key: " + k)
	}
	Default[k] = Field{Key: k, Value: v, Description: desc}
}

// Keys returns all field keys, sorted.
func Keys() []string {
	keys := lo.Keys(Default)
	sort.Strings(keys)
	return keys
}

// DefaultCacheDir is where player scripts and attestation tokens are kept.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "streamproxy")
}

func init() {
	register(KeyServerHost, "0.0.0.0", "Address to bind")
	register(KeyServerPort, 5000, "Port to listen on. The PORT variable also sets it")
	register(KeyServerCORSOrigins, []string{"*"}, "Allowed CORS origins")
	register(KeyServerShutdownTimeout, 10*time.Second, "Grace period for in-flight requests on shutdown")

	register(KeyExtractorBackend, "ytdlp", "Extraction backend: ytdlp, innertube or kkdai")
	register(KeyExtractorFormats, []string{"best[ext=mp4]", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best", "best"}, "yt-dlp format selectors, tried in order")
	register(KeyExtractorTimeout, time.Duration(0), "Upper bound for one resolve, 0 disables it")
	register(KeyExtractorInnerTubeClient, "ANDROID", "InnerTube client name")
	register(KeyExtractorInnerTubeVersion, "20.10.38", "InnerTube client version")
	register(KeyExtractorBotguardMode, "off", "Botguard attestation: off, auto or force")
	register(KeyExtractorBotguardScript, "", "Path to the botguard solver script")
	register(KeyExtractorBotguardCache, "memory", "Botguard token cache: memory or file")

	register(KeySelectionPolicy, "closest=720", "Format selection policy, e.g. closest=720, highest, best, last")
	register(KeySelectionPreferProgressive, false, "Only consider mp4 formats carrying both audio and video when any exist")

	register(KeyHTTPTimeout, 30*time.Second, "Outbound request timeout")
	register(KeyHTTPRetries, 3, "Outbound retries on 5xx and network errors")
	register(KeyHTTPUserAgent, "", "Outbound User-Agent, empty uses desktop Chrome")
	register(KeyHTTPProxy, "", "Outbound proxy URL")
	register(KeyHTTPInsecure, true, "Skip certificate validation on outbound requests")
	register(KeyHTTPFingerprint, false, "Dial TLS with a Chrome ClientHello")

	register(KeyLogLevel, "info", "Log level: trace, debug, info, warn, error")
	register(KeyLogFormat, "text", "Log format: text, json or color")
	register(KeyLogOutput, "stdout", "Log output: stdout, stderr, null or file:<path>")
	register(KeyLogComponents, []string{"all"}, "Enabled log components")
	register(KeyLogTimestamp, true, "Include timestamps in log lines")
	register(KeyLogCaller, false, "Include the calling file and line")
	register(KeyLogRotationMaxSize, "100MB", "Rotate log files past this size")
	register(KeyLogRotationMaxAge, "7d", "Delete rotated files older than this")
	register(KeyLogRotationMaxBackups, 3, "Rotated files to keep")
	register(KeyLogRotationCompress, true, "Gzip rotated files")

	register(KeyCacheDir, DefaultCacheDir(), "Directory for cached player scripts")
}
