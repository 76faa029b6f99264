// Package starstore is a client for a hierarchical document repository of
// the SIU-star family. It exposes the repository's folders, versioned
// documents (irv), metadata type descriptors (tir) and file attachments as
// synchronous domain operations built on the transport poll loop and the
// envelope normal form.
//
// One call is in flight per Client at a time; the execution model is
// cooperative and single-threaded, so operations never overlap unless the
// caller makes them.
package starstore

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	gocache "github.com/patrickmn/go-cache"

	"github.com/edms-forge/starstore/pkg/envelope"
	"github.com/edms-forge/starstore/pkg/transport"
)

// Config configures a Client.
type Config struct {
	// Caller drives the repository transport. Required.
	Caller *transport.Caller

	// NotFoundMarker is the substring of a remote error message that
	// signals "object does not exist" (as opposed to a real failure).
	// Default: "not found", matched case-insensitively.
	NotFoundMarker string

	// FileNameSeparator joins multiple file names into the repository's
	// single flat field. Default: ";". Names containing the separator are
	// rejected rather than silently corrupted.
	FileNameSeparator string

	// DescriptorCacheTTL bounds the type-descriptor cache. Descriptors
	// are read-only once fetched, so caching is safe. Default: 5 minutes.
	DescriptorCacheTTL time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Caller, validation.Required),
		validation.Field(&c.DescriptorCacheTTL, validation.Min(time.Duration(0))),
	)
}

// Client is the repository client. All operations are synchronous from the
// caller's point of view; blocking behavior and timeouts live in the Caller.
type Client struct {
	caller      *transport.Caller
	notFound    string
	sep         string
	descriptors *gocache.Cache
	logger      hclog.Logger
}

// NewClient creates a Client, applying defaults for unset fields.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if cfg.NotFoundMarker == "" {
		cfg.NotFoundMarker = "not found"
	}
	if cfg.FileNameSeparator == "" {
		cfg.FileNameSeparator = ";"
	}
	if cfg.DescriptorCacheTTL == 0 {
		cfg.DescriptorCacheTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Client{
		caller:      cfg.Caller,
		notFound:    cfg.NotFoundMarker,
		sep:         cfg.FileNameSeparator,
		descriptors: gocache.New(cfg.DescriptorCacheTTL, cfg.DescriptorCacheTTL),
		logger:      cfg.Logger.Named("starstore"),
	}, nil
}

// call marshals body (when non-nil) and drives the transport.
func (c *Client) call(op, path string, body any, h transport.Header) (envelope.Result, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return envelope.Result{}, inputErr(op, "unmarshalable request body: %v", err)
		}
	}
	return c.caller.Call(path, payload, h), nil
}

// callRecord performs a call whose expected outcome is a single record.
func (c *Client) callRecord(op, path string, body any) (envelope.Record, error) {
	res, err := c.call(op, path, body, nil)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, remoteErr(op, res)
	}
	rec, err := res.AsRecord()
	if err != nil {
		return nil, shapeErr(op, err)
	}
	return rec, nil
}

// callRecordList performs a call whose expected outcome is a record list.
func (c *Client) callRecordList(op, path string, body any) ([]envelope.Record, error) {
	res, err := c.call(op, path, body, nil)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, remoteErr(op, res)
	}
	records, err := res.AsRecordList()
	if err != nil {
		return nil, shapeErr(op, err)
	}
	return records, nil
}

// CurrentUser fetches the record of the session's authenticated user.
func (c *Client) CurrentUser() (envelope.Record, error) {
	return c.callRecord("CurrentUser", "/user/current", nil)
}
