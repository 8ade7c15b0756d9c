// Package voice defines the capability-provider interfaces the session
// engine consumes for audio output and speech capture, together with the
// typed failure reasons every call site must be prepared to handle.
package voice

import (
	"context"
	"errors"
	"time"
)

// Profile selects a synthesis voice.
type Profile struct {
	Name string
	Lang string
}

// Rate is a named playback speed tier.
type Rate string

const (
	RateSlower Rate = "slower"
	RateSlow   Rate = "slow"
	RateNormal Rate = "normal"
)

// Output converts text to audible speech.
//
// Speak returns once playback (or server-side synthesis) has completed.
// Stop cancels any in-flight playback and is safe to call when nothing is
// playing.
type Output interface {
	Speak(ctx context.Context, text string, profile Profile, rate Rate) error
	Stop()
	Available() bool
}

// CaptureOptions bounds a speech capture. The engine always sets Timeout;
// capture is never unbounded.
type CaptureOptions struct {
	Timeout        time.Duration
	SilenceTimeout time.Duration
	Interim        func(transcript string)
}

// CaptureResult is the best-effort transcript of one capture.
type CaptureResult struct {
	Transcript string
	Final      bool
}

// Input captures speech and returns a transcript.
//
// StartCapture resolves on speech end, silence timeout or explicit stop, and
// fails with one of the typed errors below. StopCapture is safe to call when
// no capture is in progress.
type Input interface {
	StartCapture(ctx context.Context, opts CaptureOptions) (CaptureResult, error)
	StopCapture()
	Available() bool
}

// Typed capture/playback failure reasons. Call sites classify with errors.Is.
var (
	ErrUnavailable      = errors.New("voice: capability unavailable")
	ErrPermissionDenied = errors.New("voice: microphone permission denied")
	ErrNotSecureContext = errors.New("voice: not a secure context")
	ErrNoSpeech         = errors.New("voice: no speech detected")
	ErrCaptureTimeout   = errors.New("voice: capture timed out")
)

// Fatal reports whether a capture error means capture cannot work at all for
// this session, as opposed to a transient empty capture.
func Fatal(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotSecureContext)
}
