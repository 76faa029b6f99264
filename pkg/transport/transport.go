// Package transport bridges the repository's asynchronous HTTP surface and
// callers that expect synchronous results.
//
// The Transport interface is the non-blocking "fire and poll" primitive: the
// first Attempt for a given request starts it, later identical Attempts poll
// for completion. Caller drives a Transport in a tight poll loop bounded by
// a wall-clock deadline, yielding to the host scheduler between attempts, and
// returns every outcome as an envelope.Result.
package transport

import "time"

// Header carries request metadata for a Transport attempt.
type Header map[string]string

// Transport is the non-blocking call primitive. Attempt either starts the
// request or polls a previously started identical request. It returns
// done=false while the request is still pending; once done, raw holds the
// parsed response. Attempt must be safe to call repeatedly with identical
// arguments until it resolves.
//
// A nil body means GET; a non-nil body means POST. The repository surface
// needs no other verbs.
type Transport interface {
	Attempt(path string, body []byte, h Header) (raw any, done bool, err error)
}

// Clock abstracts wall-clock access so the poll loop's deadline handling is
// testable without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }
