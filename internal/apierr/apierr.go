// Package apierr holds the error taxonomy shared by the parameter model, the
// response parsers and the batch client.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

var (
	// ErrValidation marks malformed caller input or malformed service responses.
	ErrValidation = errors.New("validation failed")
	// ErrRemote marks an unexpected status code or an inconsistent response.
	ErrRemote = errors.New("remote error")
)

// ValidationError describes what was wrong with a configuration or response.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Subject, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(subject, format string, args ...any) error {
	return &ValidationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// UnknownKeys returns a ValidationError listing keys of m that are not in allowed,
// or nil when every key is recognized.
func UnknownKeys(subject string, m map[string]any, allowed map[string]struct{}) error {
	var extra []string
	for k := range m {
		if _, ok := allowed[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return Invalid(subject, "unexpected parameters provided: %s", strings.Join(extra, ", "))
}

// RemoteError carries the status code and decoded body of an unexpected response.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       any
	Reason     string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: server status code %d", e.Op, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Body != nil {
		msg += fmt.Sprintf("; response: %v", e.Body)
	}
	return msg
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// Code is a coarse error class used as a log attribute.
type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeValidation Code = "validation"
	CodeRemote     Code = "remote"
	CodeNetwork    Code = "network"
	CodeCancel     Code = "cancel"
)

// Classify maps err onto a Code using sentinels and error types only.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, ErrValidation) {
		return CodeValidation
	}
	if errors.Is(err, ErrRemote) {
		return CodeRemote
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}
