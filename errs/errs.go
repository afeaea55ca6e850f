package errs

import (
	"errors"
	"fmt"
)

// Collaborator failures. Extractor backends wrap one of these so callers
// classify with errors.Is instead of matching message text.
var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrLoginRequired indicates the video needs a signed-in session.
	ErrLoginRequired = errors.New("login required")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoStream indicates extraction succeeded but nothing was playable.
	ErrNoStream = errors.New("no playable stream")
	// ErrInvalidID indicates an empty or malformed video identifier.
	ErrInvalidID = errors.New("invalid video id")
)

// Kind is the caller-facing failure class of a resolve.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAccessDenied
	KindExtractionFailure
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindNotFound:          "not_found",
	KindAccessDenied:      "access_denied",
	KindExtractionFailure: "extraction_failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error carries a Kind, a message safe to show to API clients and the
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Classify maps a collaborator error to a Kind using the sentinels above.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrVideoUnavailable),
		errors.Is(err, ErrPrivate),
		errors.Is(err, ErrNoStream),
		errors.Is(err, ErrInvalidID):
		return KindNotFound
	case errors.Is(err, ErrAgeRestricted),
		errors.Is(err, ErrLoginRequired),
		errors.Is(err, ErrGeoBlocked):
		return KindAccessDenied
	}
	// Rate limiting, cipher failures, timeouts and anything unrecognized.
	return KindExtractionFailure
}

// KindOf returns the Kind carried by err, falling back to Classify.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
