package cipher

import (
	"errors"
	"strings"

	"github.com/ytget/streamproxy/errs"
)

// Code identifies the stage of signature resolution that failed.
type Code string

const (
	ErrCodePlayerJSNotFound  Code = "PLAYER_JS_NOT_FOUND"
	ErrCodePlayerJSDownload  Code = "PLAYER_JS_DOWNLOAD_FAILED"
	ErrCodeSignatureDecipher Code = "SIGNATURE_DECIPHER_FAILED"
	ErrCodeSignatureInvalid  Code = "SIGNATURE_INVALID"
	ErrCodeSignatureNotFound Code = "SIGNATURE_NOT_FOUND"
	ErrCodeJSExecutionFailed Code = "JS_EXECUTION_FAILED"
	ErrCodeJSParsingFailed   Code = "JS_PARSING_FAILED"
)

// Error is returned by every Decipherer operation. It matches
// errs.ErrCipherFailed so the resolver reports it as an extraction failure.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == errs.ErrCipherFailed
}

// NewError builds an *Error. Extra detail strings are joined with "; ".
func NewError(code Code, message string, detail ...string) *Error {
	return &Error{Code: code, Message: message, Detail: strings.Join(detail, "; ")}
}

func codeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports a missing player script or signature source.
func IsNotFound(err error) bool {
	switch codeOf(err) {
	case ErrCodePlayerJSNotFound, ErrCodeSignatureNotFound:
		return true
	}
	return false
}

func IsInvalid(err error) bool { return codeOf(err) == ErrCodeSignatureInvalid }

// IsJSError reports a failure inside the JavaScript runtime.
func IsJSError(err error) bool {
	switch codeOf(err) {
	case ErrCodeJSExecutionFailed, ErrCodeJSParsingFailed:
		return true
	}
	return false
}
