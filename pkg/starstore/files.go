package starstore

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/url"
	"unicode/utf8"

	"github.com/edms-forge/starstore/pkg/transport"
)

// FileInfo describes a file attachment of a versioned document. The file id
// is its own identity, distinct from the owning document, and is never
// reused across attachments.
type FileInfo struct {
	ID           string
	Name         string
	UploadStatus string
}

// Upload statuses reported by /file/{id}/status.
const (
	UploadStatusNew        = "NEW"
	UploadStatusInProgress = "IN_PROGRESS"
	UploadStatusUploaded   = "UPLOADED"
	UploadStatusError      = "ERROR"
)

// UploadStatusTerminal reports whether a status will not change anymore.
func UploadStatusTerminal(status string) bool {
	return status == UploadStatusUploaded || status == UploadStatusError
}

// fileInfoFromRecord extracts a FileInfo from a repository record. The file
// id arrives as either "id" or the legacy "irvfId".
func fileInfoFromRecord(rec map[string]any) (FileInfo, error) {
	get := func(key string) string {
		if v, ok := rec[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}

	id := get("id")
	if id == "" {
		id = get("irvfId")
	}
	if id == "" {
		return FileInfo{}, fmt.Errorf("file record has no id")
	}

	name := get("name")
	if name == "" {
		name = get("fileName")
	}

	return FileInfo{
		ID:           id,
		Name:         name,
		UploadStatus: get("uploadStatus"),
	}, nil
}

// WriteFile pushes content to a file attachment. A CRC-32 checksum over the
// exact bytes sent rides along as a query parameter so the remote can verify
// the transfer; identical content always produces an identical checksum.
// The content type follows the payload kind: UTF-8 text goes as text, the
// rest as octets.
func (c *Client) WriteFile(fileID, name string, content []byte) error {
	const op = "WriteFile"
	if fileID == "" {
		return inputErr(op, "file id is required")
	}
	if name == "" {
		return inputErr(op, "file name is required")
	}

	crc := crc32.ChecksumIEEE(content)
	path := fmt.Sprintf("/file/%s/write?fileName=%s&crc=%d",
		url.PathEscape(fileID), url.QueryEscape(name), crc)

	contentType := "application/octet-stream"
	if utf8.Valid(content) {
		contentType = "text/plain; charset=utf-8"
	}

	c.logger.Debug("writing file", "file", fileID, "name", name, "bytes", len(content), "crc", crc)

	res := c.caller.Call(path, content, transport.Header{"Content-Type": contentType})
	if res.IsError() {
		return remoteErr(op, res)
	}
	return nil
}

// ReadFile fetches a file attachment's content. Value-producing: a remote
// or timeout error envelope here is fatal and surfaces as an error, never a
// silent empty result. Structured responses are re-serialized so callers
// always get the textual content.
func (c *Client) ReadFile(fileID string) (string, error) {
	const op = "ReadFile"
	if fileID == "" {
		return "", inputErr(op, "file id is required")
	}

	res := c.caller.Call(fmt.Sprintf("/file/%s/read", url.PathEscape(fileID)), nil, nil)
	if res.IsError() {
		return "", remoteErr(op, res)
	}

	if v, err := res.AsScalar(); err == nil {
		switch s := v.(type) {
		case string:
			return s, nil
		case nil:
			return "", nil
		default:
			return fmt.Sprintf("%v", s), nil
		}
	}

	// JSON attachments parse into records on the way in; hand back their
	// serialized form.
	if rec, err := res.AsRecord(); err == nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return "", shapeErr(op, err)
		}
		return string(data), nil
	}
	records, err := res.AsRecordList()
	if err != nil {
		return "", shapeErr(op, err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", shapeErr(op, err)
	}
	return string(data), nil
}

// FileStatus polls the upload status of a file attachment.
func (c *Client) FileStatus(fileID string) (string, error) {
	const op = "FileStatus"
	if fileID == "" {
		return "", inputErr(op, "file id is required")
	}

	rec, err := c.callRecord(op, fmt.Sprintf("/file/%s/status", url.PathEscape(fileID)), nil)
	if err != nil {
		return "", err
	}
	status, ok := rec.String("uploadStatus")
	if !ok {
		return "", shapeErr(op, fmt.Errorf("status record has no uploadStatus field"))
	}
	return status, nil
}
