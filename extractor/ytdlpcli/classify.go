package ytdlpcli

import (
	"fmt"
	"strings"

	"github.com/ytget/streamproxy/errs"
)

// stderrRule maps a yt-dlp message fragment to a sentinel. Rules are
// checked in order, first match wins.
type stderrRule struct {
	fragment string
	sentinel error
}

var stderrRules = []stderrRule{
	{"private video", errs.ErrPrivate},
	{"video is private", errs.ErrPrivate},
	{"sign in to confirm your age", errs.ErrAgeRestricted},
	{"age-restricted", errs.ErrAgeRestricted},
	{"age restricted", errs.ErrAgeRestricted},
	{"inappropriate for some users", errs.ErrAgeRestricted},
	{"sign in to confirm", errs.ErrLoginRequired},
	{"login required", errs.ErrLoginRequired},
	{"available in your country", errs.ErrGeoBlocked},
	{"geo restrict", errs.ErrGeoBlocked},
	{"geo-restrict", errs.ErrGeoBlocked},
	{"video unavailable", errs.ErrVideoUnavailable},
	{"this video is unavailable", errs.ErrVideoUnavailable},
	{"does not exist", errs.ErrVideoUnavailable},
	{"http error 404", errs.ErrVideoUnavailable},
	{"incomplete youtube id", errs.ErrInvalidID},
	{"http error 429", errs.ErrRateLimited},
}

// classifyStderr returns a sentinel-wrapped error for recognized yt-dlp
// failures, nil otherwise.
func classifyStderr(stderr string) error {
	lower := strings.ToLower(stderr)
	for _, r := range stderrRules {
		if strings.Contains(lower, r.fragment) {
			msg := lastErrorLine(stderr)
			if msg == "" {
				return r.sentinel
			}
			return fmt.Errorf("%w: %s", r.sentinel, msg)
		}
	}
	return nil
}

// lastErrorLine returns the last "ERROR:" line without its prefix, or the
// last non-empty line when there is none.
func lastErrorLine(stderr string) string {
	var last, lastErr string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		if rest, ok := strings.CutPrefix(line, "ERROR:"); ok {
			lastErr = strings.TrimSpace(rest)
		}
	}
	if lastErr != "" {
		return lastErr
	}
	return last
}
