package cipher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/ytget/streamproxy/internal/logger"
)

const (
	userAgentValue   = "Mozilla/5.0"
	ytBase           = "https://www.youtube.com"
	playerJSURLRe    = `"jsUrl":"([^"]+)"`
	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"
	jsURLGroupIndex  = 1 // capture group index for jsUrl
)

var playerJSURLRegex = regexp.MustCompile(playerJSURLRe)

// Decipherer turns protected stream URLs into playable ones using the
// player script. Scripts are cached per URL together with what was parsed
// out of them.
type Decipherer struct {
	httpClient *http.Client
	cache      *scriptCache
	log        *logger.ComponentLogger
}

// Option configures a Decipherer.
type Option func(*Decipherer)

// WithCacheDir sets where player scripts are cached.
func WithCacheDir(dir string) Option {
	return func(d *Decipherer) {
		d.cache = newScriptCache(dir, playerJSTTL)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Decipherer) {
		d.log = l.WithComponent(logger.ComponentCipher)
	}
}

// New returns a Decipherer fetching scripts with httpClient.
func New(httpClient *http.Client, opts ...Option) *Decipherer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	d := &Decipherer{
		httpClient: httpClient,
		log:        logger.Nop().WithComponent(logger.ComponentCipher),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = newScriptCache(filepath.Join(os.TempDir(), "streamproxy"), playerJSTTL)
	}
	return d
}

// PlayerJSURL scrapes the "jsUrl" field from a watch page body.
func PlayerJSURL(page []byte) (string, error) {
	matches := playerJSURLRegex.FindSubmatch(page)
	if len(matches) <= jsURLGroupIndex || len(matches[jsURLGroupIndex]) == 0 {
		return "", NewError(ErrCodePlayerJSNotFound, "could not find player js url in video page")
	}

	playerJSURL := strings.ReplaceAll(string(matches[jsURLGroupIndex]), `\/`, `/`)
	if strings.HasPrefix(playerJSURL, "http://") || strings.HasPrefix(playerJSURL, "https://") {
		return playerJSURL, nil
	}
	return ytBase + playerJSURL, nil
}

func (d *Decipherer) playerJS(ctx context.Context, playerJSURL string) (playerScript, error) {
	if ps, ok := d.cache.get(playerJSURL); ok {
		d.log.Trace("player script cache hit", map[string]interface{}{"url": playerJSURL})
		return ps, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playerJSURL, nil)
	if err != nil {
		return playerScript{}, NewError(ErrCodePlayerJSDownload, "build player script request", err.Error())
	}
	req.Header.Set("User-Agent", userAgentValue)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return playerScript{}, NewError(ErrCodePlayerJSDownload, "download player script", err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return playerScript{}, NewError(ErrCodePlayerJSNotFound, "player script not found", playerJSURL)
	}
	if resp.StatusCode != http.StatusOK {
		return playerScript{}, NewError(ErrCodePlayerJSDownload, "download player script", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return playerScript{}, NewError(ErrCodePlayerJSDownload, "read player script", err.Error())
	}

	ps := playerScript{Body: string(body), NFunc: parseNFunc(string(body))}
	ps.Steps, _ = parseSteps(ps.Body)

	d.log.Debug("fetched player script", map[string]interface{}{
		"url":      playerJSURL,
		"bytes":    len(body),
		"steps":    len(ps.Steps),
		"nfunc":    ps.NFunc != "",
		"duration": time.Since(start).String(),
	})

	if err := d.cache.put(playerJSURL, ps); err != nil {
		d.log.Warn("cache player script", map[string]interface{}{"error": err.Error()})
	}
	return ps, nil
}

// Session resolves any number of formats against one player script. The
// script is fetched and parsed once, and each JS runtime is built at most
// once. A Session is not safe for concurrent use.
type Session struct {
	log    *logger.ComponentLogger
	script playerScript

	full    *otto.Otto
	fullErr error
	loaded  bool

	nrt   *otto.Otto
	nMemo map[string]string
}

// Session fetches the player script at playerJSURL.
func (d *Decipherer) Session(ctx context.Context, playerJSURL string) (*Session, error) {
	ps, err := d.playerJS(ctx, playerJSURL)
	if err != nil {
		return nil, err
	}
	return &Session{log: d.log, script: ps, nMemo: make(map[string]string)}, nil
}

// runtime loads the whole script into otto on first use. Only scripts that
// defeat parsing need it.
func (s *Session) runtime() (*otto.Otto, error) {
	if !s.loaded {
		s.loaded = true
		s.full = otto.New()
		if _, err := s.full.Run(s.script.Body); err != nil {
			s.full = nil
			s.fullErr = NewError(ErrCodeJSParsingFailed, "run player script", err.Error())
		}
	}
	return s.full, s.fullErr
}

// callString calls a JS function value and converts its result.
func callString(fn otto.Value, name, arg string) (string, error) {
	value, err := fn.Call(otto.UndefinedValue(), arg)
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("call %s", name), err.Error())
	}
	result, err := value.ToString()
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("%s did not return a string", name), err.Error())
	}
	return result, nil
}

// Decipher descrambles a signature. Parsed steps are replayed in Go;
// otherwise the script must define a global decipher function.
func (s *Session) Decipher(signature string) (string, error) {
	if signature == "" {
		return "", NewError(ErrCodeSignatureInvalid, "empty signature")
	}
	if len(s.script.Steps) > 0 {
		return applySteps(signature, s.script.Steps), nil
	}

	rt, err := s.runtime()
	if err != nil {
		return "", err
	}
	fn, err := rt.Get(decipherFuncName)
	if err != nil || !fn.IsFunction() {
		return "", NewError(ErrCodeSignatureNotFound, "player script has no decipher function")
	}
	out, err := callString(fn, decipherFuncName, signature)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", NewError(ErrCodeSignatureDecipher, "decipher returned an empty signature")
	}
	return out, nil
}

// DecipherN decodes the throttling n parameter. Scripts without a
// recognisable n function leave the value unchanged.
func (s *Session) DecipherN(nval string) (string, error) {
	if out, ok := s.nMemo[nval]; ok {
		return out, nil
	}

	fn, err := s.nFunction()
	if err != nil {
		return "", err
	}
	if !fn.IsFunction() {
		return nval, nil
	}
	out, err := callString(fn, ncodeFuncName, nval)
	if err != nil {
		return "", err
	}
	s.nMemo[nval] = out
	return out, nil
}

func (s *Session) nFunction() (otto.Value, error) {
	if s.script.NFunc != "" {
		if s.nrt == nil {
			s.nrt = otto.New()
			if _, err := s.nrt.Run("var " + ncodeFuncName + " = " + s.script.NFunc + ";"); err != nil {
				s.nrt = nil
				return otto.UndefinedValue(), NewError(ErrCodeJSParsingFailed, "load n function", err.Error())
			}
		}
		return s.nrt.Get(ncodeFuncName)
	}

	rt, err := s.runtime()
	if err != nil {
		return otto.UndefinedValue(), err
	}
	fn, err := rt.Get(ncodeFuncName)
	if err != nil {
		return otto.UndefinedValue(), nil
	}
	return fn, nil
}

// ResolveURL builds the playable URL of a stream. A direct rawURL only gets
// its n parameter decoded; otherwise signatureCipher is deciphered and the
// signature appended under its sp name.
func (s *Session) ResolveURL(rawURL, signatureCipher string) (string, error) {
	if strings.TrimSpace(rawURL) != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("parse direct url: %w", err)
		}
		q := u.Query()
		s.applyN(q)
		finishQuery(q)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	sig, sp, cipherURL, err := splitCipher(signatureCipher)
	if err != nil {
		return "", err
	}
	decoded, err := s.Decipher(sig)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(cipherURL)
	if err != nil {
		return "", fmt.Errorf("parse cipher url: %w", err)
	}
	q := u.Query()
	q.Set(sp, decoded)
	s.applyN(q)
	finishQuery(q)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// applyN rewrites n in place. Failures keep the original value: the URL
// still plays, only throttled.
func (s *Session) applyN(q url.Values) {
	nval := q.Get("n")
	if nval == "" {
		return
	}
	out, err := s.DecipherN(nval)
	if err != nil {
		s.log.Debug("n parameter left as is", map[string]interface{}{"error": err.Error()})
		return
	}
	if out != "" {
		q.Set("n", out)
	}
}

func splitCipher(signatureCipher string) (sig, sp, cipherURL string, err error) {
	if strings.TrimSpace(signatureCipher) == "" {
		return "", "", "", NewError(ErrCodeSignatureNotFound, "no url or signatureCipher")
	}
	parsed, perr := url.ParseQuery(signatureCipher)
	if perr != nil {
		return "", "", "", NewError(ErrCodeSignatureInvalid, "parse signatureCipher", perr.Error())
	}
	sig, sp, cipherURL = parsed.Get("s"), parsed.Get("sp"), parsed.Get("url")
	if sp == "" {
		sp = "signature"
	}
	if cipherURL == "" || sig == "" {
		return "", "", "", NewError(ErrCodeSignatureInvalid, "signatureCipher missing signature or url")
	}
	return sig, sp, cipherURL, nil
}

// Decipher is a one-off Session.Decipher.
func (d *Decipherer) Decipher(ctx context.Context, playerJSURL, signature string) (string, error) {
	if signature == "" {
		return "", NewError(ErrCodeSignatureInvalid, "empty signature")
	}
	s, err := d.Session(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	return s.Decipher(signature)
}

// DecipherN is a one-off Session.DecipherN.
func (d *Decipherer) DecipherN(ctx context.Context, playerJSURL, nval string) (string, error) {
	s, err := d.Session(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	return s.DecipherN(nval)
}

// ResolveURL is a one-off Session.ResolveURL. Without a playerJSURL a
// direct rawURL is returned with only the fixed query parameters added.
func (d *Decipherer) ResolveURL(ctx context.Context, rawURL, signatureCipher, playerJSURL string) (string, error) {
	if playerJSURL == "" {
		if strings.TrimSpace(rawURL) == "" {
			if _, _, _, err := splitCipher(signatureCipher); err != nil {
				return "", err
			}
			return "", NewError(ErrCodePlayerJSNotFound, "no player script for signatureCipher")
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("parse direct url: %w", err)
		}
		q := u.Query()
		finishQuery(q)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	s, err := d.Session(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	return s.ResolveURL(rawURL, signatureCipher)
}

func finishQuery(q url.Values) {
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	if q.Get("alr") == "" {
		q.Set("alr", "yes")
	}
}
