// Package botguard attaches attestation tokens to InnerTube requests when
// YouTube starts refusing anonymous player calls.
package botguard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode defines how Botguard solving is used.
type Mode int

const (
	// Off disables Botguard usage entirely.
	Off Mode = iota
	// Auto attests only after the player endpoint answered 403.
	Auto
	// Force attests before every player request.
	Force
)

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Force:
		return "force"
	default:
		return "off"
	}
}

// ParseMode parses "off", "auto" or "force".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "false":
		return Off, nil
	case "auto":
		return Auto, nil
	case "force", "on", "true":
		return Force, nil
	}
	return Off, fmt.Errorf("unknown botguard mode %q", s)
}

// Input describes the client a token is requested for.
type Input struct {
	UserAgent        string            `json:"userAgent"`
	PageURL          string            `json:"pageUrl"`
	ClientName       string            `json:"clientName"`
	ClientVersion    string            `json:"clientVersion"`
	VisitorID        string            `json:"visitorId"`
	AdditionalParams map[string]string `json:"additionalParams,omitempty"`
}

// Output is the token sent with player requests. A zero ExpiresAt never
// expires.
type Output struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the output has a deadline that has passed.
func (o Output) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// Solver produces tokens.
type Solver interface {
	Attest(ctx context.Context, input Input) (Output, error)
}

// Cache stores outputs keyed by KeyFromInput.
type Cache interface {
	Get(key string) (Output, bool)
	Set(key string, value Output)
}

// KeyFromInput keys a cache entry by the fields a token is bound to.
func KeyFromInput(in Input) string {
	return in.UserAgent + "|" + in.ClientName + "|" + in.ClientVersion + "|" + in.VisitorID
}
