package transport

import (
	"fmt"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/edms-forge/starstore/pkg/envelope"
)

// CallerConfig configures a Caller.
type CallerConfig struct {
	// Transport performs the non-blocking attempts. Required.
	Transport Transport

	// Timeout bounds one Call from the first observed yield.
	// Default: 30 seconds.
	Timeout time.Duration

	// PollInterval is slept between attempts. Default: 10ms.
	PollInterval time.Duration

	// ClockSampleEvery controls how often the wall clock is re-read: once
	// every N attempts rather than every iteration. Default: 16.
	ClockSampleEvery int

	// Clock supplies time. Default: the system clock.
	Clock Clock

	// Yield hands control back to the host scheduler after every attempt.
	// Default: runtime.Gosched.
	Yield func()

	// Logger (optional).
	Logger hclog.Logger
}

// Validate checks the configuration.
func (c *CallerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Transport, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ClockSampleEvery, validation.Min(0)),
	)
}

// Caller presents a Transport's fire-and-poll primitive as a synchronous
// call. Exactly one Call may be in flight per Caller; issuing a second
// before the first resolves must be serialized by the caller.
type Caller struct {
	transport   Transport
	timeout     time.Duration
	interval    time.Duration
	sampleEvery int
	clock       Clock
	yield       func()
	logger      hclog.Logger
}

// NewCaller creates a Caller, applying defaults for unset fields.
func NewCaller(cfg CallerConfig) (*Caller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid caller config: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.ClockSampleEvery == 0 {
		cfg.ClockSampleEvery = 16
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Yield == nil {
		cfg.Yield = runtime.Gosched
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Caller{
		transport:   cfg.Transport,
		timeout:     cfg.Timeout,
		interval:    cfg.PollInterval,
		sampleEvery: cfg.ClockSampleEvery,
		clock:       cfg.Clock,
		yield:       cfg.Yield,
		logger:      cfg.Logger.Named("caller"),
	}, nil
}

// Call drives the transport until it resolves or the deadline passes, then
// normalizes the outcome. A transport-level failure or an expired deadline
// is returned as an error envelope, never raised, so callers can tell
// "remote responded with an error" from "no response arrived".
//
// The deadline is anchored at the first yield inside the loop rather than at
// Call entry: a caller that was parked inside a long host tick before
// reaching the loop still gets its full budget. The real clock is read only
// every ClockSampleEvery attempts to keep per-iteration overhead down; in
// between, a virtual now advances by PollInterval per slept iteration so the
// deadline is still compared on every pass and expiry is detected within one
// polling interval. The poll is otherwise tight, with no backoff, because
// attempts are cheap and non-blocking. On expiry the underlying operation is
// abandoned, not cancelled.
func (c *Caller) Call(path string, body []byte, h Header) envelope.Result {
	var (
		attempts int
		now      time.Time
		deadline time.Time
	)
	for {
		raw, done, err := c.transport.Attempt(path, body, h)
		if err != nil {
			c.logger.Debug("transport attempt failed", "path", path, "attempts", attempts, "error", err)
			return envelope.NewError(err.Error())
		}
		if done {
			c.logger.Debug("call resolved", "path", path, "attempts", attempts)
			return envelope.Normalize(raw)
		}

		attempts++
		c.yield()
		c.clock.Sleep(c.interval)

		if deadline.IsZero() {
			now = c.clock.Now()
			deadline = now.Add(c.timeout)
			continue
		}

		now = now.Add(c.interval)
		if attempts%c.sampleEvery == 0 {
			// Periodic re-sync keeps the virtual now honest when sleeps
			// overshoot their interval.
			now = c.clock.Now()
		}
		if !now.Before(deadline) {
			c.logger.Warn("call timed out", "path", path, "attempts", attempts, "timeout", c.timeout)
			return envelope.Timeout(fmt.Sprintf("no response from %s within %s", path, c.timeout))
		}
	}
}
