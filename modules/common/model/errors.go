package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind - failure taxonomy surfaced on a failed Job
type ErrorKind string

const (
	KindInput       ErrorKind = "input"
	KindTransport   ErrorKind = "transport"
	KindNoResult    ErrorKind = "no_result"
	KindSessionLost ErrorKind = "session_lost"
	KindTimeout     ErrorKind = "timeout"
)

// InputError - no usable media supplied
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	if e.Msg == "" {
		return "no image source found"
	}
	return e.Msg
}

// TransportError - network/HTTP/remote failure at submit, poll or fetch time
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoResultError - the remote call completed without a usable asset
type NoResultError struct {
	Kind JobKind
}

func (e *NoResultError) Error() string {
	if e.Kind == KindVideoGenerate {
		return "remote service finished without a video; try again or change the image"
	}
	return "remote service returned no image for this instruction; try rephrasing it"
}

// SessionLostError - credential/session invalidated mid-job; user must resubmit
type SessionLostError struct {
	Err error
}

func (e *SessionLostError) Error() string {
	return "API key session was lost; select a key and submit again"
}

func (e *SessionLostError) Unwrap() error { return e.Err }

// TimeoutError - poll loop exceeded its attempt or wall-clock ceiling
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video generation did not finish after %d polls (%s)", e.Attempts, e.Elapsed.Round(time.Second))
}

// KindOf - classify err into the taxonomy; unknown errors count as transport
func KindOf(err error) ErrorKind {
	var (
		inputErr    *InputError
		noResultErr *NoResultError
		sessionErr  *SessionLostError
		timeoutErr  *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inputErr):
		return KindInput
	case errors.As(err, &noResultErr):
		return KindNoResult
	case errors.As(err, &sessionErr):
		return KindSessionLost
	case errors.As(err, &timeoutErr):
		return KindTimeout
	default:
		return KindTransport
	}
}
