package starstore

import (
	"fmt"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/edms-forge/starstore/pkg/envelope"
)

// Metadata value-type codes used by the repository. Only date kinds get
// coerced; every other code passes values through unchanged.
const (
	TypeCodeDate     = 5
	TypeCodeDateTime = 6
)

// Wire formats the repository expects for date-kinded metadata.
const (
	dateLayout     = "02.01.2006"
	dateTimeLayout = "02.01.2006 15:04"
)

// MetadataDescriptor describes one allowed metadata field of a document
// type. Read-only once fetched.
type MetadataDescriptor struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	TypeCode int    `mapstructure:"typeCode"`
}

// MetadataValue is one metadata field value attached at document creation.
// Values are write-once; there is no update path.
type MetadataValue struct {
	ID       string
	Name     string
	TypeCode int
	Value    any
}

// TypeDescriptors lists the metadata descriptors of a unit's document type,
// keyed by descriptor name. Full records are kept because metadata
// construction later needs the type code, not just the id. Results are
// cached; descriptors never change once fetched.
func (c *Client) TypeDescriptors(nauID string) (map[string]MetadataDescriptor, error) {
	const op = "TypeDescriptors"
	if nauID == "" {
		return nil, inputErr(op, "unit id is required")
	}

	if cached, ok := c.descriptors.Get(nauID); ok {
		return cached.(map[string]MetadataDescriptor), nil
	}

	path := fmt.Sprintf("/nau/%s/tirs?depth=1", url.PathEscape(nauID))
	records, err := c.callRecordList(op, path, nil)
	if err != nil {
		return nil, err
	}

	descriptors := make(map[string]MetadataDescriptor, len(records))
	for _, rec := range records {
		var d MetadataDescriptor
		if err := decodeRecord(rec, &d); err != nil {
			c.logger.Warn("skipping malformed descriptor record", "unit", nauID, "error", err)
			continue
		}
		if d.Name == "" {
			continue
		}
		descriptors[d.Name] = d
	}

	c.descriptors.SetDefault(nauID, descriptors)
	return descriptors, nil
}

// CoerceValue converts a metadata value to its wire form based on the type
// code: dates become dd.MM.yyyy, date-times dd.MM.yyyy HH:mm, everything
// else is passed through unchanged.
func CoerceValue(typeCode int, value any) (any, error) {
	switch typeCode {
	case TypeCodeDate:
		t, err := parseTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format(dateLayout), nil
	case TypeCodeDateTime:
		t, err := parseTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format(dateTimeLayout), nil
	default:
		return value, nil
	}
}

// parseTime accepts time.Time or a textual timestamp. The common ISO forms
// are tried first; anything else goes through dateparse's format detection.
func parseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{
			"2006-01-02T15:04:05",
			"2006-01-02T15:04",
			"2006-01-02 15:04",
			"2006-01-02",
			dateTimeLayout,
			dateLayout,
		} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable date value %q: %w", v, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("date value must be a string or time.Time, got %T", value)
	}
}

// BuildMetadataSubmission shapes metadata values into the nested envelope
// the repository expects for a type descriptor. Pure data shaping; no
// network call. All values are validated and coerced; independent failures
// are reported together.
func BuildMetadataSubmission(values []MetadataValue, typeID string) (map[string]any, error) {
	const op = "BuildMetadataSubmission"
	if typeID == "" {
		return nil, inputErr(op, "type descriptor id is required")
	}

	var errs *multierror.Error
	metas := make([]map[string]any, 0, len(values))
	for i, v := range values {
		if v.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("value %d (%s): descriptor id is required", i, v.Name))
			continue
		}
		coerced, err := CoerceValue(v.TypeCode, v.Value)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("value %d (%s): %w", i, v.Name, err))
			continue
		}
		metas = append(metas, map[string]any{
			"timId":    v.ID,
			"name":     v.Name,
			"typeCode": v.TypeCode,
			"value":    coerced,
		})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, inputErr(op, "%v", err)
	}

	return map[string]any{
		"operationGetTypeData": map[string]any{
			"typeIOId": typeID,
			"typeIOMetaList": map[string]any{
				"typeIOMeta": metas,
			},
		},
	}, nil
}

// SubmitMetadata builds and posts a metadata submission for typeID.
func (c *Client) SubmitMetadata(typeID string, values []MetadataValue) (envelope.Record, error) {
	const op = "SubmitMetadata"
	body, err := BuildMetadataSubmission(values, typeID)
	if err != nil {
		return nil, err
	}
	return c.callRecord(op, fmt.Sprintf("/tir/%s/metas", url.PathEscape(typeID)), body)
}

// decodeRecord maps a loosely typed record onto a struct, tolerating the
// string/number drift that JSON responses carry.
func decodeRecord(rec envelope.Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(rec))
}
