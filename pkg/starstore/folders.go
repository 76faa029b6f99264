package starstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/edms-forge/starstore/pkg/envelope"
)

// ChildUnits lists the child units of a folder as a name→id map. Duplicate
// names overwrite last-wins; the repository guarantees nothing here and
// neither do we.
func (c *Client) ChildUnits(parentID string) (map[string]string, error) {
	const op = "ChildUnits"
	if parentID == "" {
		return nil, inputErr(op, "parent folder id is required")
	}

	path := fmt.Sprintf("/folder/%s/childs", url.PathEscape(parentID))
	records, err := c.callRecordList(op, path, nil)
	if err != nil {
		return nil, err
	}

	units := make(map[string]string, len(records))
	for _, rec := range records {
		name, okName := rec.String("name")
		id, okID := rec.String("id")
		if !okName || !okID {
			continue
		}
		units[name] = id
	}
	return units, nil
}

// EnsureFolder returns the folder named name under parentID, creating it if
// the repository reports it as absent. Only a remote error whose message
// contains the configured not-found marker triggers creation; any other
// error propagates unchanged. Calling twice with the same arguments yields
// the same folder id and at most one create request.
func (c *Client) EnsureFolder(parentID, name, description string) (envelope.Record, error) {
	const op = "EnsureFolder"
	if parentID == "" {
		return nil, inputErr(op, "parent folder id is required")
	}
	if name == "" {
		return nil, inputErr(op, "folder name is required")
	}

	findPath := fmt.Sprintf("/folder/%s/childs/find", url.PathEscape(parentID))
	res, err := c.call(op, findPath, map[string]any{"name": name}, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case res.IsError():
		if res.IsTimeout() || !c.isNotFound(res.ErrMessage()) {
			return nil, remoteErr(op, res)
		}
		// Absent: fall through to create.
	default:
		if found := c.matchByName(res, name); found != nil {
			c.logger.Debug("folder exists", "name", name, "parent", parentID)
			return found, nil
		}
		// A successful search that yields no exact match also means absent.
	}

	c.logger.Debug("creating folder", "name", name, "parent", parentID)
	createPath := fmt.Sprintf("/folder/%s/childs", url.PathEscape(parentID))
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	return c.callRecord(op, createPath, body)
}

// matchByName extracts the record matching name exactly from a find result,
// which may come back as a single record or a list.
func (c *Client) matchByName(res envelope.Result, name string) envelope.Record {
	if rec, err := res.AsRecord(); err == nil {
		if n, _ := rec.String("name"); n == name {
			return rec
		}
		return nil
	}
	if records, err := res.AsRecordList(); err == nil {
		for _, rec := range records {
			if n, _ := rec.String("name"); n == name {
				return rec
			}
		}
	}
	return nil
}

// isNotFound reports whether a remote error message is the repository's
// "object does not exist" signal. Substring match against the configured
// marker, case-insensitive; the remote has no structured error kinds.
func (c *Client) isNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), strings.ToLower(c.notFound))
}
