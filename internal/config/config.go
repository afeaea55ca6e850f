// Package config loads the service settings from defaults, an optional
// TOML file, environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/ytget/streamproxy/extractor"
	"github.com/ytget/streamproxy/internal/botguard"
	"github.com/ytget/streamproxy/internal/filesystem"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/pkg/client"
	"github.com/ytget/streamproxy/youtube/formats"
)

// Name is the config file base name and the environment prefix.
const Name = "streamproxy"

// EnvPrefix prefixes every environment variable except PORT.
const EnvPrefix = "STREAMPROXY"

// EnvKeyReplacer maps config keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the decoded service configuration.
type Config struct {
	Server    Server
	Extractor Extractor
	Selection Selection
	HTTP      HTTP
	Log       logger.LogConfig
	CacheDir  string
}

// Server holds listener settings.
type Server struct {
	Host            string
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Extractor holds backend settings.
type Extractor struct {
	Backend          string
	Formats          []string
	Timeout          time.Duration
	InnerTubeClient  string
	InnerTubeVersion string
	BotguardMode     string
	BotguardScript   string
	BotguardCache    string
}

// Selection holds the format selection policy.
type Selection struct {
	Policy            string
	PreferProgressive bool
}

// HTTP holds outbound client settings.
type HTTP struct {
	Timeout     time.Duration
	Retries     int
	UserAgent   string
	Proxy       string
	Insecure    bool
	Fingerprint bool
}

// NewViper returns a viper instance with defaults, environment bindings and
// the config file applied. An empty configFile searches the working
// directory and the user config directory; a missing file is not an error
// then. An explicit configFile must exist.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(filesystem.API())
	v.SetConfigType("toml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, Name))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, key := range Keys() {
		// BindEnv appends, so the port is bound once below with PORT first.
		if key == KeyServerPort {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv(KeyServerPort, PortEnv, Default[KeyServerPort].Env()); err != nil {
		return nil, err
	}

	v.SetTypeByDefaultValue(true)
	for name, field := range Default {
		v.SetDefault(name, field.Value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// Decode reads a Config out of v.
func Decode(v *viper.Viper) *Config {
	return &Config{
		Server: Server{
			Host:            v.GetString(KeyServerHost),
			Port:            v.GetInt(KeyServerPort),
			CORSOrigins:     list(v, KeyServerCORSOrigins),
			ShutdownTimeout: v.GetDuration(KeyServerShutdownTimeout),
		},
		Extractor: Extractor{
			Backend:          v.GetString(KeyExtractorBackend),
			Formats:          list(v, KeyExtractorFormats),
			Timeout:          v.GetDuration(KeyExtractorTimeout),
			InnerTubeClient:  v.GetString(KeyExtractorInnerTubeClient),
			InnerTubeVersion: v.GetString(KeyExtractorInnerTubeVersion),
			BotguardMode:     v.GetString(KeyExtractorBotguardMode),
			BotguardScript:   v.GetString(KeyExtractorBotguardScript),
			BotguardCache:    v.GetString(KeyExtractorBotguardCache),
		},
		Selection: Selection{
			Policy:            v.GetString(KeySelectionPolicy),
			PreferProgressive: v.GetBool(KeySelectionPreferProgressive),
		},
		HTTP: HTTP{
			Timeout:     v.GetDuration(KeyHTTPTimeout),
			Retries:     v.GetInt(KeyHTTPRetries),
			UserAgent:   v.GetString(KeyHTTPUserAgent),
			Proxy:       v.GetString(KeyHTTPProxy),
			Insecure:    v.GetBool(KeyHTTPInsecure),
			Fingerprint: v.GetBool(KeyHTTPFingerprint),
		},
		Log: logger.LogConfig{
			Level:      v.GetString(KeyLogLevel),
			Format:     v.GetString(KeyLogFormat),
			Output:     v.GetString(KeyLogOutput),
			Components: list(v, KeyLogComponents),
			ShowCaller: v.GetBool(KeyLogCaller),
			Timestamp:  v.GetBool(KeyLogTimestamp),
			Rotation: &logger.RotationConfig{
				MaxSize:    v.GetString(KeyLogRotationMaxSize),
				MaxAge:     v.GetString(KeyLogRotationMaxAge),
				MaxBackups: v.GetInt(KeyLogRotationMaxBackups),
				Compress:   v.GetBool(KeyLogRotationCompress),
			},
		},
		CacheDir: v.GetString(KeyCacheDir),
	}
}

// Load builds, decodes and validates the configuration.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	cfg := Decode(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// list accepts both TOML arrays and comma separated environment values.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return lo.Compact(out)
}

// Validate checks that all values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be non-negative, got %s", c.Server.ShutdownTimeout)
	}

	backend := strings.ToLower(strings.TrimSpace(c.Extractor.Backend))
	if backend != "" && !lo.Contains(extractor.Names(), backend) {
		return fmt.Errorf("extractor.backend must be one of %s, got %q", strings.Join(extractor.Names(), ", "), c.Extractor.Backend)
	}
	if c.Extractor.Timeout < 0 {
		return fmt.Errorf("extractor.timeout must be non-negative, got %s", c.Extractor.Timeout)
	}
	if _, err := botguard.ParseMode(c.Extractor.BotguardMode); err != nil {
		return fmt.Errorf("extractor.botguard_mode: %w", err)
	}
	switch strings.ToLower(c.Extractor.BotguardCache) {
	case "", "memory", "file":
	default:
		return fmt.Errorf("extractor.botguard_cache must be memory or file, got %q", c.Extractor.BotguardCache)
	}

	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("selection.policy: %w", err)
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be non-negative, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries must be non-negative, got %d", c.HTTP.Retries)
	}

	if err := c.Log.ValidateConfig(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprint(c.Server.Port))
}

// Policy parses the selection policy. PreferProgressive applies unless the
// policy string sets progressive itself.
func (c *Config) Policy() (formats.Policy, error) {
	p, err := formats.ParsePolicy(c.Selection.Policy)
	if err != nil {
		return formats.Policy{}, err
	}
	if !strings.Contains(strings.ToLower(c.Selection.Policy), "progressive") {
		p.PreferProgressive = c.Selection.PreferProgressive
	}
	return p, nil
}

// ClientConfig returns the outbound client settings.
func (c *Config) ClientConfig(l *logger.Logger) client.Config {
	return client.Config{
		Timeout:            c.HTTP.Timeout,
		Retries:            c.HTTP.Retries,
		UserAgent:          c.HTTP.UserAgent,
		ProxyURL:           c.HTTP.Proxy,
		InsecureSkipVerify: c.HTTP.Insecure,
		Fingerprint:        c.HTTP.Fingerprint,
		Logger:             l,
	}
}

// ExtractorDeps returns the backend dependencies.
func (c *Config) ExtractorDeps(cl *client.Client, l *logger.Logger) (extractor.Deps, error) {
	mode, err := botguard.ParseMode(c.Extractor.BotguardMode)
	if err != nil {
		return extractor.Deps{}, err
	}
	return extractor.Deps{
		HTTPClient:       cl.HTTPClient,
		Logger:           l,
		Formats:          c.Extractor.Formats,
		Proxy:            c.HTTP.Proxy,
		InnerTubeClient:  c.Extractor.InnerTubeClient,
		InnerTubeVersion: c.Extractor.InnerTubeVersion,
		Botguard:         mode,
		BotguardScript:   c.Extractor.BotguardScript,
		BotguardCache:    c.Extractor.BotguardCache,
		CacheDir:         c.CacheDir,
	}, nil
}

// Render writes the effective settings of v as TOML.
func Render(w io.Writer, v *viper.Viper) error {
	doc := make(map[string]any)
	for _, key := range Keys() {
		value := v.Get(key)
		switch x := value.(type) {
		case time.Duration:
			value = x.String()
		case []string:
			value = list(v, key)
		}
		set(doc, strings.Split(key, "."), value)
	}
	return toml.NewEncoder(w).Encode(doc)
}

func set(doc map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[p] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}
