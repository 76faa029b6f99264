// Package envelope normalizes repository responses into a single tagged
// representation.
//
// The remote repository answers with several payload shapes: a bare scalar,
// a single record wrapped under a "contents" key, a list of (possibly
// wrapped) records, or an error object. Normalize folds all of them into one
// Result so call sites narrow on the tag instead of probing raw JSON at every
// use.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Wire-level keys used by the repository.
const (
	wrapperKey = "contents"
	errorKey   = "error"
)

// Kind identifies which payload a Result carries.
type Kind int

const (
	KindScalar Kind = iota
	KindRecord
	KindRecordList
	KindError
)

// String returns the kind name for error messages and logs.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindRecord:
		return "record"
	case KindRecordList:
		return "record list"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record is a single repository record as decoded from JSON.
type Record map[string]any

// String returns the value under key rendered as a string, and whether the
// key was present at all.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

// Result is the normalized form of a repository response. Exactly one of the
// payloads is populated, indicated by Kind.
type Result struct {
	kind    Kind
	record  Record
	records []Record
	scalar  any
	errMsg  string
	timeout bool
}

// NewRecord builds a Record-tagged Result.
func NewRecord(r Record) Result {
	return Result{kind: KindRecord, record: r}
}

// NewRecordList builds a RecordList-tagged Result. Order is preserved.
func NewRecordList(rs []Record) Result {
	return Result{kind: KindRecordList, records: rs}
}

// NewScalar builds a Scalar-tagged Result.
func NewScalar(v any) Result {
	return Result{kind: KindScalar, scalar: v}
}

// NewError builds an Error-tagged Result carrying the remote's message.
func NewError(msg string) Result {
	return Result{kind: KindError, errMsg: msg}
}

// Timeout builds an Error-tagged Result marked as a timeout, so callers can
// distinguish "remote responded with an error" from "no response arrived".
func Timeout(msg string) Result {
	return Result{kind: KindError, errMsg: msg, timeout: true}
}

// Kind reports which payload this Result carries.
func (r Result) Kind() Kind { return r.kind }

// IsError reports whether the Result carries an error payload.
func (r Result) IsError() bool { return r.kind == KindError }

// IsTimeout reports whether the Result is the distinguished timeout error.
func (r Result) IsTimeout() bool { return r.kind == KindError && r.timeout }

// ErrMessage returns the error payload message. Empty for non-error kinds.
func (r Result) ErrMessage() string { return r.errMsg }

// AsRecord narrows to the single-record payload. Narrowing any other kind is
// an error, never a coercion.
func (r Result) AsRecord() (Record, error) {
	if r.kind != KindRecord {
		return nil, fmt.Errorf("expected record, got %s", r.kind)
	}
	return r.record, nil
}

// AsRecordList narrows to the record-list payload.
func (r Result) AsRecordList() ([]Record, error) {
	if r.kind != KindRecordList {
		return nil, fmt.Errorf("expected record list, got %s", r.kind)
	}
	return r.records, nil
}

// AsScalar narrows to the scalar payload.
func (r Result) AsScalar() (any, error) {
	if r.kind != KindScalar {
		return nil, fmt.Errorf("expected scalar, got %s", r.kind)
	}
	return r.scalar, nil
}

// Normalize folds a decoded repository response into its tagged form.
//
// Rules, in order: a map carrying an error field becomes an Error regardless
// of other fields; a "contents" wrapper is unwrapped (map to Record, list to
// RecordList); a bare map is a Record; a list becomes a RecordList with
// order preserved, unwrapping each element; anything else passes through as
// a Scalar.
func Normalize(raw any) Result {
	switch v := raw.(type) {
	case map[string]any:
		if e, ok := v[errorKey]; ok && e != nil {
			return NewError(fmt.Sprintf("%v", e))
		}
		if inner, ok := v[wrapperKey]; ok {
			switch iv := inner.(type) {
			case map[string]any:
				return NewRecord(Record(iv))
			case []any:
				return NewRecordList(toRecords(iv))
			default:
				return NewScalar(inner)
			}
		}
		return NewRecord(Record(v))
	case []any:
		return NewRecordList(toRecords(v))
	case Record:
		return Normalize(map[string]any(v))
	default:
		return NewScalar(raw)
	}
}

// NormalizeJSON decodes a JSON body and normalizes it. A body that is not
// valid JSON is a transport anomaly and maps to an Error.
func NormalizeJSON(body []byte) Result {
	if len(body) == 0 {
		return NewScalar(nil)
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return NewError(fmt.Sprintf("unparseable response: %v", err))
	}
	return Normalize(raw)
}

// toRecords converts list elements to Records, unwrapping per-element
// "contents" wrappers. Length and order always match the input; a non-record
// element is carried under a "value" key so positional information survives.
func toRecords(items []any) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		switch iv := item.(type) {
		case map[string]any:
			if inner, ok := iv[wrapperKey].(map[string]any); ok {
				out = append(out, Record(inner))
				continue
			}
			out = append(out, Record(iv))
		default:
			out = append(out, Record{"value": item})
		}
	}
	return out
}
